package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nadzzz/voicestudio/internal/config"
	svc "github.com/nadzzz/voicestudio/internal/remote"
	"github.com/nadzzz/voicestudio/internal/tts"
)

func TestProbe(t *testing.T) {
	if err := New(svc.New(config.RemoteConfig{})).Probe(context.Background()); !errors.Is(err, tts.ErrCapabilityUnavailable) {
		t.Errorf("unconfigured err = %v", err)
	}
	if err := New(svc.New(config.RemoteConfig{BaseURL: "http://127.0.0.1:1"})).Probe(context.Background()); err != nil {
		t.Errorf("configured err = %v", err)
	}
}

func TestSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFF"))
	}))
	defer srv.Close()

	b := New(svc.New(config.RemoteConfig{BaseURL: srv.URL}))
	res, err := b.Synthesize(context.Background(), tts.Request{Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Backend != Name || string(res.Audio) != "RIFF" || res.ContentType != "audio/wav" {
		t.Errorf("res = %+v", res)
	}
}

func TestSynthesize_ErrorsAreNotInvocationFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(svc.New(config.RemoteConfig{BaseURL: srv.URL})).Synthesize(context.Background(), tts.Request{Text: "x"})
	if err == nil || tts.IsInvocationFailure(err) || !svc.IsServiceError(err) {
		t.Errorf("err = %v", err)
	}
}
