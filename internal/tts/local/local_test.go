package local

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"

	"github.com/nadzzz/voicestudio/internal/tts"
)

type fakeRuntime struct {
	err error
}

func (f *fakeRuntime) Synthesize(_ context.Context, req tts.Request) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("wav:" + req.Text), nil
}

func (f *fakeRuntime) Close() error { return nil }

func TestProbe_LoadsOnce(t *testing.T) {
	var loads atomic.Int32
	b := New(CPU, nil, func(context.Context) (Runtime, error) {
		loads.Add(1)
		return &fakeRuntime{}, nil
	})
	for i := 0; i < 3; i++ {
		if err := b.Probe(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if loads.Load() != 1 {
		t.Errorf("loaded %d times", loads.Load())
	}
	res, err := b.Synthesize(context.Background(), tts.Request{Text: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Audio) != "wav:hi" || res.Backend != CPU {
		t.Errorf("res = %+v", res)
	}
}

func TestProbe_CapabilityUnavailable(t *testing.T) {
	loaded := false
	b := New(Accelerated, func() error { return errors.New("no gpu") }, func(context.Context) (Runtime, error) {
		loaded = true
		return &fakeRuntime{}, nil
	})
	err := b.Probe(context.Background())
	if !errors.Is(err, tts.ErrCapabilityUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if loaded {
		t.Error("capability failure must not load the runtime")
	}

	failing := New(CPU, nil, func(context.Context) (Runtime, error) { return nil, errors.New("oom") })
	if err := failing.Probe(context.Background()); !errors.Is(err, tts.ErrCapabilityUnavailable) {
		t.Errorf("load failure err = %v", err)
	}
}

func TestSynthesize_InvocationError(t *testing.T) {
	b := New(CPU, nil, func(context.Context) (Runtime, error) { return &fakeRuntime{err: errors.New("unsupported op")}, nil })
	if _, err := b.Synthesize(context.Background(), tts.Request{Text: "x"}); !tts.IsInvocationFailure(err) {
		t.Errorf("unprobed err = %v", err)
	}
	if err := b.Probe(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Synthesize(context.Background(), tts.Request{Text: "x"}); !tts.IsInvocationFailure(err) {
		t.Errorf("err = %v", err)
	}
}

func TestAcceleratorCheck(t *testing.T) {
	missing := func(string) (os.FileInfo, error) { return nil, os.ErrNotExist }
	noPath := func(string) (string, error) { return "", errors.New("not found") }
	base := env{getenv: func(string) string { return "" }, stat: missing, lookPath: noPath, goos: "linux", goarch: "amd64"}

	if err := base.accelerator(); err == nil {
		t.Error("bare linux host should have no accelerator")
	}

	withDev := base
	withDev.stat = func(p string) (os.FileInfo, error) {
		if p == "/dev/nvidia0" {
			return nil, nil
		}
		return nil, os.ErrNotExist
	}
	if err := withDev.accelerator(); err != nil {
		t.Errorf("nvidia device: %v", err)
	}

	hidden := withDev
	hidden.getenv = func(string) string { return "-1" }
	if err := hidden.accelerator(); err == nil {
		t.Error("CUDA_VISIBLE_DEVICES=-1 should hide the device")
	}

	mac := base
	mac.goos, mac.goarch = "darwin", "arm64"
	if err := mac.accelerator(); err != nil {
		t.Errorf("apple silicon: %v", err)
	}
}
