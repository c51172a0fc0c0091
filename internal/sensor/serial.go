package sensor

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"codeberg.org/mutker/pulsemon/internal/errors"
	"codeberg.org/mutker/pulsemon/internal/logger"
	"codeberg.org/mutker/pulsemon/internal/pulse"
	"go.bug.st/serial"
)

// PortOptions describes the serial connection parameters of the sensor board.
type PortOptions struct {
	BaudRate int    `mapstructure:"baud_rate"`
	DataBits int    `mapstructure:"data_bits"`
	StopBits int    `mapstructure:"stop_bits"`
	Parity   string `mapstructure:"parity"`
}

// Normalize validates the options and applies defaults for any unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch strings.TrimSpace(strings.ToUpper(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}

	return opts, nil
}

// SerialMode converts the options into the mode used to open the port.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}

	return mode, nil
}

// Serial reads newline-terminated decimal samples from a serial port. A
// background reader keeps the most recent sample; Read returns it without
// waiting.
type Serial struct {
	port    io.ReadCloser
	log     logger.Logger
	latest  atomic.Uint32
	seen    atomic.Bool
	mu      sync.Mutex
	err     error
	done    chan struct{}
	skipped atomic.Int64
}

// OpenSerial opens the port at path and starts reading samples from it.
func OpenSerial(path string, opts PortOptions, log logger.Logger) (*Serial, error) {
	errFactory := errors.New()

	mode, err := opts.SerialMode()
	if err != nil {
		return nil, errFactory.Wrap(ErrInvalidPortOpts, err)
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, errFactory.WithData(ErrOpenFailed, struct {
			Path  string
			Error string
		}{
			Path:  path,
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", path).
		Int("baud_rate", mode.BaudRate).
		Msg("Serial sensor opened")

	return NewSerial(port, log), nil
}

// NewSerial starts reading samples from an already open port.
func NewSerial(port io.ReadCloser, log logger.Logger) *Serial {
	s := &Serial{
		port: port,
		log:  log,
		done: make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *Serial) readLoop() {
	defer close(s.done)

	scanner := bufio.NewScanner(s.port)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		sample, err := ParseSample(line)
		if err != nil {
			s.skipped.Add(1)
			s.log.Debug().Str("line", line).Msg("Skipping malformed sensor line")
			continue
		}

		s.latest.Store(uint32(sample))
		s.seen.Store(true)
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}

	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Read returns the most recent sample. Before the first sample arrives it
// returns zero. Once the port has failed or closed it returns the error.
func (s *Serial) Read() (pulse.Sample, error) {
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()

	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, err
		}
		return 0, errors.New().Wrap(ErrReadFailed, err)
	}

	return pulse.Sample(s.latest.Load()), nil
}

// Ready reports whether at least one sample has been received.
func (s *Serial) Ready() bool {
	return s.seen.Load()
}

func (s *Serial) Close() error {
	err := s.port.Close()
	<-s.done
	s.log.Debug().Int64("skipped_lines", s.skipped.Load()).Msg("Serial sensor closed")
	if err != nil {
		return errors.New().Wrap(ErrCloseFailed, err)
	}
	return nil
}
