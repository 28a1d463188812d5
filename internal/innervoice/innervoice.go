// Package innervoice applies the "inner voice" post-processing to WAV clips:
// a single-tap echo, an optional low-pass, and a wet/dry blend.
//
// Style parameters:
//
//	light   echo 400 ms, decay 0.3
//	deep    echo 800 ms, decay 0.6, low-pass 3 kHz
//	dreamy  pre-gain 0.8, echo 1900 ms, decay 0.8, low-pass 3 kHz
//
// The output is longer than the input by the echo delay so the tail is kept.
package innervoice

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/wav"

	"github.com/nadzzz/voicestudio/internal/tts"
)

// ErrNotWAV is returned for audio that is not a RIFF/WAVE file.
var ErrNotWAV = errors.New("inner voice: audio is not WAV")

type params struct {
	preGain   float64
	inGain    float64
	outGain   float64
	delay     time.Duration
	decay     float64
	lowpassHz float64 // 0 disables the filter
}

var styles = map[tts.InnerVoiceStyle]params{
	tts.InnerVoiceLight:  {preGain: 1, inGain: 0.5, outGain: 0.3, delay: 400 * time.Millisecond, decay: 0.3},
	tts.InnerVoiceDeep:   {preGain: 1, inGain: 0.7, outGain: 0.6, delay: 800 * time.Millisecond, decay: 0.6, lowpassHz: 3000},
	tts.InnerVoiceDreamy: {preGain: 0.8, inGain: 0.6, outGain: 0.8, delay: 1900 * time.Millisecond, decay: 0.8, lowpassHz: 3000},
}

// Apply processes a WAV clip. The mix volume of iv sets the share of the
// processed signal in the output, from 0 (dry only) to 1 (processed only).
func Apply(audio []byte, iv tts.InnerVoice) ([]byte, error) {
	if len(audio) < 12 || string(audio[0:4]) != "RIFF" || string(audio[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}
	p, ok := styles[iv.Style]
	if !ok {
		return nil, fmt.Errorf("inner voice: unknown style %q", iv.Style)
	}

	stream, format, err := wav.Decode(bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("decoding wav: %w", err)
	}
	defer stream.Close()

	dry, err := readAll(stream)
	if err != nil {
		return nil, fmt.Errorf("reading samples: %w", err)
	}

	delay := format.SampleRate.N(p.delay)
	total := len(dry) + delay
	wet := echo(dry, total, delay, p)
	if p.lowpassHz > 0 {
		lowpass(wet, float64(format.SampleRate), p.lowpassHz)
	}
	dry = append(dry, make([][2]float64, total-len(dry))...)

	mix := math.Min(math.Max(iv.MixVolume, 0), 1)
	out := beep.Take(total, beep.Mix(
		gain(&samples{data: dry}, 1-mix),
		gain(&samples{data: wet}, mix),
	))

	if format.Precision < 1 || format.Precision > 3 {
		format.Precision = 2
	}
	var ws writeSeeker
	if err := wav.Encode(&ws, out, format); err != nil {
		return nil, fmt.Errorf("encoding wav: %w", err)
	}
	return ws.buf, nil
}

// echo computes out = (pre*in[i]*inGain + pre*in[i-delay]*decay) * outGain.
func echo(in [][2]float64, total, delay int, p params) [][2]float64 {
	out := make([][2]float64, total)
	for i := range out {
		for c := 0; c < 2; c++ {
			var v float64
			if i < len(in) {
				v += in[i][c] * p.inGain
			}
			if j := i - delay; j >= 0 && j < len(in) {
				v += in[j][c] * p.decay
			}
			out[i][c] = v * p.preGain * p.outGain
		}
	}
	return out
}

// lowpass is a one-pole IIR filter applied in place.
func lowpass(s [][2]float64, sampleRate, cutoff float64) {
	rc := 1 / (2 * math.Pi * cutoff)
	dt := 1 / sampleRate
	alpha := dt / (rc + dt)
	var prev [2]float64
	for i := range s {
		for c := 0; c < 2; c++ {
			prev[c] += alpha * (s[i][c] - prev[c])
			s[i][c] = prev[c]
		}
	}
}

// gain scales a streamer linearly; effects.Volume is exponential, so the
// linear factor is expressed as a power of two.
func gain(s beep.Streamer, g float64) beep.Streamer {
	if g <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Silent: true}
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(g)}
}

func readAll(s beep.Streamer) ([][2]float64, error) {
	var out [][2]float64
	buf := make([][2]float64, 4096)
	for {
		n, ok := s.Stream(buf)
		out = append(out, buf[:n]...)
		if !ok {
			break
		}
	}
	return out, s.Err()
}

// samples streams an in-memory sample slice.
type samples struct {
	data [][2]float64
	pos  int
}

func (s *samples) Stream(out [][2]float64) (int, bool) {
	if s.pos >= len(s.data) {
		return 0, false
	}
	n := copy(out, s.data[s.pos:])
	s.pos += n
	return n, true
}

func (s *samples) Err() error { return nil }

// writeSeeker is an in-memory io.WriteSeeker; wav.Encode seeks back to
// patch the header sizes.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	if end := w.pos + len(p); end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	n := copy(w.buf[w.pos:], p)
	w.pos += n
	return n, nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(w.pos) + offset
	case io.SeekEnd:
		abs = int64(len(w.buf)) + offset
	default:
		return 0, errors.New("writeSeeker: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("writeSeeker: negative position")
	}
	w.pos = int(abs)
	return abs, nil
}
