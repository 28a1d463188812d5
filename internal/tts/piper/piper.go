// Package piper is the on-device synthesis runtime: a client for a Piper
// server speaking the Wyoming protocol.
//
// Piper is a fast, local neural text-to-speech system. The linuxserver/piper
// container exposes the Wyoming protocol on TCP port 10200; an accelerated
// instance runs the same protocol on its own port.
//
// Wyoming protocol format (per event):
//
//	<json_length> <payload_length>\n
//	<json_bytes>\n
//	<payload_bytes>   (if payload_length > 0)
package piper

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/nadzzz/voicestudio/internal/config"
	"github.com/nadzzz/voicestudio/internal/tts"
)

// defaultModels maps ISO-639-1 language codes to Piper voice model names.
var defaultModels = map[string]string{
	"en": "en_US-lessac-medium",
	"fr": "fr_FR-siwis-medium",
	"es": "es_ES-mls_10246-low",
	"de": "de_DE-thorsten-medium",
	"it": "it_IT-riccardo-x_low",
	"pt": "pt_BR-faber-medium",
	"nl": "nl_NL-mls-medium",
	"vi": "vi_VN-vais1000-medium",
	"ja": "ja_JP-amitaro-medium",
	"zh": "zh_CN-huayan-medium",
}

const warmupText = "Ready."

// Runtime synthesizes speech through a Piper Wyoming server.
type Runtime struct {
	endpoint  string            // default host:port
	endpoints map[string]string // language -> host:port
	models    map[string]string // studio voice or language -> Piper model
	dialer    net.Dialer
}

// New creates a runtime from config.
func New(cfg config.PiperConfig) *Runtime {
	models := make(map[string]string, len(defaultModels)+len(cfg.Voices))
	for k, v := range defaultModels {
		models[k] = v
	}
	for k, v := range cfg.Voices {
		models[strings.ToLower(k)] = v
	}

	endpoints := make(map[string]string, len(cfg.Endpoints))
	for lang, ep := range cfg.Endpoints {
		endpoints[lang] = cleanEndpoint(ep)
	}

	return &Runtime{
		endpoint:  cleanEndpoint(cfg.Endpoint),
		endpoints: endpoints,
		models:    models,
		dialer:    net.Dialer{Timeout: 10 * time.Second},
	}
}

func cleanEndpoint(ep string) string {
	ep = strings.TrimPrefix(ep, "tcp://")
	return strings.TrimPrefix(ep, "http://")
}

// Warm synthesizes a short phrase so that the server has its model loaded
// before the first real request.
func (r *Runtime) Warm(ctx context.Context, language string) error {
	_, err := r.Synthesize(ctx, tts.Request{Text: warmupText, Language: language})
	return err
}

// Synthesize sends one request and returns the audio as WAV.
//
// The studio voice picks the model when Voices maps it; otherwise the
// language default is used and the studio voice is passed as the speaker
// name for multi-speaker models. Speed maps onto the length scale.
func (r *Runtime) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	if req.Text == "" {
		return nil, errors.New("empty text for synthesis")
	}

	voice := map[string]any{}
	if m, ok := r.models[strings.ToLower(req.Voice)]; ok && req.Voice != "" {
		voice["name"] = m
	} else {
		m := r.models[req.Language]
		if m == "" {
			m = r.models["en"]
		}
		voice["name"] = m
		if req.Voice != "" {
			voice["speaker"] = req.Voice
		}
	}

	endpoint := r.endpoints[req.Language]
	if endpoint == "" {
		endpoint = r.endpoint
	}
	if endpoint == "" {
		return nil, fmt.Errorf("no piper endpoint configured for language %q", req.Language)
	}

	slog.Debug("piper synthesize", "text_length", len(req.Text), "voice", voice["name"], "language", req.Language, "endpoint", endpoint)

	conn, err := r.dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to piper: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(60 * time.Second))
	}

	data := map[string]any{"text": req.Text, "voice": voice}
	if req.Speed > 0 {
		data["synthesize_options"] = map[string]any{"length_scale": 1 / req.Speed}
	}
	if err := writeEvent(conn, event{Type: "synthesize", Data: data}, nil); err != nil {
		return nil, fmt.Errorf("sending synthesize event: %w", err)
	}

	return readAudio(bufio.NewReader(conn))
}

// Close is a no-op: connections are per request.
func (r *Runtime) Close() error { return nil }

// readAudio consumes audio-start, audio-chunk* and audio-stop events and
// wraps the collected PCM in a WAV container.
func readAudio(br *bufio.Reader) ([]byte, error) {
	var (
		pcm      bytes.Buffer
		rate     = 22050
		channels = 1
		width    = 2
	)
	for {
		evt, payload, err := readEvent(br)
		if err != nil {
			return nil, fmt.Errorf("reading piper event: %w", err)
		}

		switch evt.Type {
		case "audio-start":
			rate = intField(evt.Data, "rate", rate)
			channels = intField(evt.Data, "channels", channels)
			width = intField(evt.Data, "width", width)
		case "audio-chunk":
			pcm.Write(payload)
		case "audio-stop":
			slog.Debug("piper audio-stop", "pcm_bytes", pcm.Len(), "rate", rate)
			return pcmToWAV(pcm.Bytes(), rate, channels, width), nil
		case "error":
			msg, _ := evt.Data["text"].(string)
			if msg == "" {
				msg = "unknown error"
			}
			return nil, fmt.Errorf("piper error: %s", msg)
		default:
			slog.Debug("piper unknown event", "type", evt.Type)
		}
	}
}

func intField(m map[string]any, key string, def int) int {
	if f, ok := m[key].(float64); ok {
		return int(f)
	}
	return def
}

type event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

func writeEvent(w io.Writer, evt event, payload []byte) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d\n", len(body), len(payload))
	buf.Write(body)
	buf.WriteByte('\n')
	buf.Write(payload)
	_, err = w.Write(buf.Bytes())
	return err
}

func readEvent(br *bufio.Reader) (*event, []byte, error) {
	header, err := br.ReadString('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}
	fields := strings.Fields(header)
	if len(fields) != 2 {
		return nil, nil, fmt.Errorf("invalid wyoming header: %q", header)
	}
	jsonLen, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, nil, fmt.Errorf("parsing json_length: %w", err)
	}
	payloadLen, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, nil, fmt.Errorf("parsing payload_length: %w", err)
	}

	body := make([]byte, jsonLen+1) // trailing newline
	if _, err := io.ReadFull(br, body); err != nil {
		return nil, nil, fmt.Errorf("reading json: %w", err)
	}
	var evt event
	if err := json.Unmarshal(body[:jsonLen], &evt); err != nil {
		return nil, nil, fmt.Errorf("unmarshalling event: %w", err)
	}

	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(br, payload); err != nil {
			return nil, nil, fmt.Errorf("reading payload: %w", err)
		}
	}
	return &evt, payload, nil
}

// pcmToWAV wraps little-endian PCM in a 44-byte canonical WAV header.
func pcmToWAV(pcm []byte, rate, channels, width int) []byte {
	hdr := struct {
		Riff          [4]byte
		Size          uint32
		Wave          [4]byte
		Fmt           [4]byte
		FmtSize       uint32
		Format        uint16
		Channels      uint16
		Rate          uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Data          [4]byte
		DataSize      uint32
	}{
		Riff: [4]byte{'R', 'I', 'F', 'F'}, Size: uint32(36 + len(pcm)), Wave: [4]byte{'W', 'A', 'V', 'E'},
		Fmt: [4]byte{'f', 'm', 't', ' '}, FmtSize: 16, Format: 1,
		Channels: uint16(channels), Rate: uint32(rate),
		ByteRate: uint32(rate * channels * width), BlockAlign: uint16(channels * width),
		BitsPerSample: uint16(width * 8),
		Data:          [4]byte{'d', 'a', 't', 'a'}, DataSize: uint32(len(pcm)),
	}
	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	_ = binary.Write(buf, binary.LittleEndian, hdr)
	buf.Write(pcm)
	return buf.Bytes()
}
