package sensor

import (
	"bufio"
	"io"
	"os"
	"strings"

	"codeberg.org/mutker/pulsemon/internal/errors"
	"codeberg.org/mutker/pulsemon/internal/logger"
	"codeberg.org/mutker/pulsemon/internal/pulse"
)

// Replay yields recorded samples, one decimal value per line, one sample per
// Read. It returns io.EOF once the input is exhausted.
type Replay struct {
	scanner *bufio.Scanner
	closer  io.Closer
	log     logger.Logger
	line    int
}

// OpenReplay opens a recording file. The path "-" reads standard input.
func OpenReplay(path string, log logger.Logger) (*Replay, error) {
	if path == "-" {
		return NewReplay(io.NopCloser(os.Stdin), log), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New().WithData(ErrOpenFailed, struct {
			Path  string
			Error string
		}{
			Path:  path,
			Error: err.Error(),
		})
	}

	log.Info().Str("path", path).Msg("Replaying recorded samples")

	return NewReplay(f, log), nil
}

func NewReplay(r io.ReadCloser, log logger.Logger) *Replay {
	return &Replay{
		scanner: bufio.NewScanner(r),
		closer:  r,
		log:     log,
	}
}

func (r *Replay) Read() (pulse.Sample, error) {
	for r.scanner.Scan() {
		r.line++

		text := strings.TrimSpace(r.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		sample, err := ParseSample(text)
		if err != nil {
			r.log.Debug().Int("line", r.line).Str("text", text).Msg("Skipping malformed sample")
			continue
		}
		return sample, nil
	}

	if err := r.scanner.Err(); err != nil {
		return 0, errors.New().Wrap(ErrReadFailed, err)
	}
	return 0, io.EOF
}

func (r *Replay) Close() error {
	if err := r.closer.Close(); err != nil {
		return errors.New().Wrap(ErrCloseFailed, err)
	}
	return nil
}
