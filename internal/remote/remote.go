// Package remote is the HTTP client for the remote synthesis service and its
// emotion library.
//
// Endpoints consumed:
//
//	POST   /v1/audio/speech          synthesize one clip (raw WAV response)
//	GET    /v1/voices                voice catalog
//	POST   /v1/voices/upload         register a cloned voice (multipart)
//	GET    /v1/emotions              list presets
//	POST   /v1/emotions              create preset, returns {id}
//	PUT    /v1/emotions/{id}         replace preset
//	DELETE /v1/emotions/{id}         delete preset
//	DELETE /v1/emotions/all          delete every preset
//	POST   /v1/emotions/import       bulk replace (multipart)
//	GET    /v1/emotions/export       download library file
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nadzzz/voicestudio/internal/config"
	"github.com/nadzzz/voicestudio/internal/emotion"
	"github.com/nadzzz/voicestudio/internal/tts"
	"github.com/nadzzz/voicestudio/internal/voice"
)

// ServiceError is a network or service failure on a remote call. It is
// surfaced to the caller and never retried automatically.
type ServiceError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Body       string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote %s failed (status %d): %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("remote %s failed: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// IsServiceError reports whether err carries a ServiceError.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

// Client talks to the remote service.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New creates a client from config. A zero timeout means none.
func New(cfg config.RemoteConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string { return c.baseURL }

type speechRequest struct {
	Input        string  `json:"input"`
	Exaggeration float64 `json:"exaggeration"`
	CFGWeight    float64 `json:"cfg_weight"`
	Temperature  float64 `json:"temperature"`
	Speed        float64 `json:"speed"`
	Emotion      string  `json:"emotion,omitempty"`
	VoiceID      string  `json:"voice_id,omitempty"`
}

// Speech synthesizes one clip and returns the raw audio and its content type.
func (c *Client) Speech(ctx context.Context, r tts.Request) ([]byte, string, error) {
	body, err := json.Marshal(speechRequest{
		Input:        r.Text,
		Exaggeration: r.Exaggeration,
		CFGWeight:    r.CFGWeight,
		Temperature:  r.Temperature,
		Speed:        r.Speed,
		Emotion:      r.Emotion,
		VoiceID:      r.Voice,
	})
	if err != nil {
		return nil, "", fmt.Errorf("marshalling speech request: %w", err)
	}

	slog.Debug("remote speech request", "text_length", len(r.Text), "voice", r.Voice, "emotion", r.Emotion)

	resp, err := c.do(ctx, "speech", http.MethodPost, "/v1/audio/speech", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &ServiceError{Op: "speech", Err: fmt.Errorf("reading audio: %w", err)}
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "audio/wav"
	}
	return audio, ct, nil
}

// Voices returns the remote voice catalog.
func (c *Client) Voices(ctx context.Context) ([]voice.Info, error) {
	var out struct {
		Count  int          `json:"count"`
		Voices []voice.Info `json:"voices"`
	}
	if err := c.getJSON(ctx, "voices", "/v1/voices", &out); err != nil {
		return nil, err
	}
	return out.Voices, nil
}

// UploadVoice registers a cloned voice from an audio sample. name is optional.
func (c *Client) UploadVoice(ctx context.Context, filename string, sample io.Reader, name string) (map[string]any, error) {
	fields := map[string]string{}
	if name != "" {
		fields["name"] = name
	}
	body, ct, err := multipartBody(filename, sample, fields)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, "voice upload", http.MethodPost, "/v1/voices/upload", ct, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ServiceError{Op: "voice upload", Err: fmt.Errorf("decoding response: %w", err)}
	}
	return out, nil
}

// List implements emotion.Store.
func (c *Client) List(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.getJSON(ctx, "list emotions", "/v1/emotions", &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// Create implements emotion.Store.
func (c *Client) Create(ctx context.Context, rec emotion.Record) (string, error) {
	rec.ID = ""
	var out struct {
		ID string `json:"id"`
	}
	if err := c.sendJSON(ctx, "create emotion", http.MethodPost, "/v1/emotions", rec, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// Update implements emotion.Store.
func (c *Client) Update(ctx context.Context, id string, rec emotion.Record) error {
	rec.ID = id
	return c.sendJSON(ctx, "update emotion", http.MethodPut, "/v1/emotions/"+url.PathEscape(id), rec, nil)
}

// Delete implements emotion.Store.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.discard(ctx, "delete emotion", http.MethodDelete, "/v1/emotions/"+url.PathEscape(id))
}

// DeleteAll implements emotion.Store.
func (c *Client) DeleteAll(ctx context.Context) error {
	return c.discard(ctx, "delete all emotions", http.MethodDelete, "/v1/emotions/all")
}

// Import implements emotion.Store.
func (c *Client) Import(ctx context.Context, filename string, r io.Reader) error {
	body, ct, err := multipartBody(filename, r, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, "import emotions", http.MethodPost, "/v1/emotions/import", ct, body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Export implements emotion.Store.
func (c *Client) Export(ctx context.Context) ([]byte, error) {
	resp, err := c.do(ctx, "export emotions", http.MethodGet, "/v1/emotions/export", "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ServiceError{Op: "export emotions", Err: err}
	}
	return b, nil
}

var _ emotion.Store = (*Client)(nil)

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	resp, err := c.do(ctx, op, http.MethodGet, path, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ServiceError{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

func (c *Client) sendJSON(ctx context.Context, op, method, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshalling %s request: %w", op, err)
	}
	resp, err := c.do(ctx, op, method, path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ServiceError{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

func (c *Client) discard(ctx context.Context, op, method, path string) error {
	resp, err := c.do(ctx, op, method, path, "", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// do sends a request and turns transport errors and non-2xx responses into
// ServiceErrors. On success the caller owns the response body.
func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader) (*http.Response, error) {
	if c.baseURL == "" {
		return nil, &ServiceError{Op: op, Err: errors.New("remote base URL is not configured")}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ServiceError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		return nil, &ServiceError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return resp, nil
}

func multipartBody(filename string, r io.Reader, fields map[string]string) (io.Reader, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, "", fmt.Errorf("writing form file: %w", err)
	}
	for k, v := range fields {
		_ = writer.WriteField(k, v)
	}
	writer.Close()
	return body, writer.FormDataContentType(), nil
}
