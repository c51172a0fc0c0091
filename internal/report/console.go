package report

import (
	"context"
	"fmt"
	"io"

	"codeberg.org/mutker/pulsemon/internal/errors"
)

// Console writes one "BPM: n" line per reading.
type Console struct {
	w io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Report(_ context.Context, r Reading) error {
	if _, err := fmt.Fprintln(c.w, r.String()); err != nil {
		return errors.New().Wrap(ErrWriteFailed, err)
	}
	return nil
}

func (*Console) Close() error {
	return nil
}
