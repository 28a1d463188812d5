package local

import (
	"context"

	"github.com/nadzzz/voicestudio/internal/config"
	"github.com/nadzzz/voicestudio/internal/tts/piper"
)

// PiperLoader returns a Loader that connects to a Piper server and warms it
// with a short phrase in the given language.
func PiperLoader(cfg config.PiperConfig, language string) Loader {
	return func(ctx context.Context) (Runtime, error) {
		rt := piper.New(cfg)
		if err := rt.Warm(ctx, language); err != nil {
			return nil, err
		}
		return rt, nil
	}
}
