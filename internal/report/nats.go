package report

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"codeberg.org/mutker/pulsemon/internal/errors"
	"codeberg.org/mutker/pulsemon/internal/logger"
	"github.com/nats-io/nats.go"
)

const (
	defaultNATSURL     = "nats://127.0.0.1:4222"
	defaultNATSSubject = "pulse.bpm"
	connectTimeout     = 3 * time.Second
	reconnectWait      = 500 * time.Millisecond
)

type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:     defaultNATSURL,
		Subject: defaultNATSSubject,
	}
}

func (c NATSConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.URL == "" || c.Subject == "" {
		return errors.New().WithData(ErrInvalidConfig, struct {
			URL     string
			Subject string
		}{
			URL:     c.URL,
			Subject: c.Subject,
		})
	}
	return nil
}

// Message is the JSON payload published for every reading.
type Message struct {
	Subject   string   `json:"subject"`
	Ts        int64    `json:"ts"`
	ElapsedMs int64    `json:"elapsed_ms"`
	BPM       *float64 `json:"bpm"`
	Available bool     `json:"available"`
}

// NewMessage builds the payload for r. BPM is null when unavailable and
// rounded to one decimal otherwise.
func NewMessage(subject string, at time.Time, r Reading) Message {
	msg := Message{
		Subject:   subject,
		Ts:        at.UnixMilli(),
		ElapsedMs: int64(r.Elapsed),
		Available: r.Available,
	}
	if r.Available {
		bpm := math.Round(float64(r.BPM)*10) / 10
		msg.BPM = &bpm
	}
	return msg
}

type publisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATS publishes readings as JSON messages.
type NATS struct {
	conn    publisher
	subject string
	log     logger.Logger
	now     func() time.Time
}

// ConnectNATS connects to the server and returns a reporter publishing to
// cfg.Subject.
func ConnectNATS(cfg NATSConfig, log logger.Logger) (*NATS, error) {
	nc, err := nats.Connect(
		cfg.URL,
		nats.Name("pulsemon"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, errors.New().WithData(ErrConnectFailed, struct {
			URL   string
			Error string
		}{
			URL:   cfg.URL,
			Error: err.Error(),
		})
	}

	log.Info().
		Str("url", cfg.URL).
		Str("subject", cfg.Subject).
		Msg("Publishing heart rate to NATS")

	return newNATS(nc, cfg.Subject, log), nil
}

func newNATS(conn publisher, subject string, log logger.Logger) *NATS {
	return &NATS{
		conn:    conn,
		subject: subject,
		log:     log,
		now:     time.Now,
	}
}

func (n *NATS) Report(ctx context.Context, r Reading) error {
	errFactory := errors.New()

	select {
	case <-ctx.Done():
		return errFactory.Wrap(errors.ErrTimeout, ctx.Err())
	default:
	}

	b, err := json.Marshal(NewMessage(n.subject, n.now(), r))
	if err != nil {
		return errFactory.Wrap(ErrEncodeFailed, err)
	}

	if err := n.conn.Publish(n.subject, b); err != nil {
		return errFactory.Wrap(ErrPublishFailed, err)
	}

	return nil
}

// Close drains pending messages and closes the connection.
func (n *NATS) Close() error {
	if err := n.conn.Drain(); err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}
	n.log.Debug().Msg("NATS connection drained")
	return nil
}
