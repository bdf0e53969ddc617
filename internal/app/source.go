package app

import (
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/nerrad567/mqtt-client-app/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-client-app/internal/payload"
)

// NewSource builds the payload source selected by cfg.
//
// Precedence follows validation, which allows at most one of message, file
// and stdin_lines; none selects the simulated sensor. Errors wrap ErrConfig.
func NewSource(cfg config.PayloadConfig, stdin io.Reader, rng *rand.Rand) (payload.Source, error) {
	switch {
	case cfg.Message != "":
		return payload.NewMessage(cfg.Message), nil

	case cfg.File != "":
		src, err := payload.NewFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("%w: payload file: %w", ErrConfig, err)
		}
		return src, nil

	case cfg.StdinLines:
		if stdin == nil {
			return nil, fmt.Errorf("%w: stdin_lines set without an input stream", ErrConfig)
		}
		return payload.NewLines(stdin, cfg.Delimiter, cfg.MaxLength), nil

	default:
		format, err := payload.ParseFormat(cfg.Format)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
		return payload.NewSensor(format, rng), nil
	}
}
