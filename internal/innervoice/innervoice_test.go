package innervoice

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"

	"github.com/nadzzz/voicestudio/internal/tts"
)

const rate = beep.SampleRate(8000)

func sineWAV(t *testing.T, n int) []byte {
	t.Helper()
	data := make([][2]float64, n)
	for i := range data {
		v := 0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(rate))
		data[i] = [2]float64{v, v}
	}
	var ws writeSeeker
	format := beep.Format{SampleRate: rate, NumChannels: 1, Precision: 2}
	if err := wav.Encode(&ws, &samples{data: data}, format); err != nil {
		t.Fatal(err)
	}
	return ws.buf
}

func decode(t *testing.T, b []byte) [][2]float64 {
	t.Helper()
	s, _, err := wav.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out, err := readAll(s)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestApply_AddsEchoTail(t *testing.T) {
	in := sineWAV(t, 4000)
	for _, style := range []tts.InnerVoiceStyle{tts.InnerVoiceLight, tts.InnerVoiceDeep, tts.InnerVoiceDreamy} {
		t.Run(string(style), func(t *testing.T) {
			out, err := Apply(in, tts.InnerVoice{Style: style, MixVolume: 0.5})
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			got := decode(t, out)
			want := 4000 + rate.N(styles[style].delay)
			if len(got) != want {
				t.Errorf("samples = %d, want %d", len(got), want)
			}
			// The tail past the dry signal carries only the echo.
			peak := 0.0
			for _, s := range got[4000:] {
				peak = math.Max(peak, math.Abs(s[0]))
			}
			if peak < 0.01 {
				t.Errorf("echo tail is silent (peak %v)", peak)
			}
		})
	}
}

func TestApply_DryMixKeepsSignal(t *testing.T) {
	in := sineWAV(t, 800)
	out, err := Apply(in, tts.InnerVoice{Style: tts.InnerVoiceLight, MixVolume: 0})
	if err != nil {
		t.Fatal(err)
	}
	src, got := decode(t, in), decode(t, out)
	for i := range src {
		if math.Abs(src[i][0]-got[i][0]) > 1e-3 {
			t.Fatalf("sample %d: %v != %v", i, got[i][0], src[i][0])
		}
	}
	for i := len(src); i < len(got); i++ {
		if got[i][0] != 0 {
			t.Fatalf("dry-only output has signal in the tail at %d", i)
		}
	}
}

func TestApply_Errors(t *testing.T) {
	if _, err := Apply([]byte("ID3\x03mp3data"), tts.InnerVoice{Style: tts.InnerVoiceLight}); !errors.Is(err, ErrNotWAV) {
		t.Errorf("err = %v, want ErrNotWAV", err)
	}
	if _, err := Apply(sineWAV(t, 10), tts.InnerVoice{Style: "echoey"}); err == nil {
		t.Error("unknown style accepted")
	}
}

func TestWriteSeeker(t *testing.T) {
	var ws writeSeeker
	_, _ = ws.Write([]byte("hello world"))
	if _, err := ws.Seek(0, 0); err != nil {
		t.Fatal(err)
	}
	_, _ = ws.Write([]byte("J"))
	if string(ws.buf) != "Jello world" {
		t.Errorf("buf = %q", ws.buf)
	}
	if _, err := ws.Seek(-1, 0); err == nil {
		t.Error("negative seek accepted")
	}
}
