package realtime

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Envelope is one push as it travels between processes.
type Envelope struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Frame   json.RawMessage `json:"frame"`
}

// Bus fans pushes out to every process serving sockets.
type Bus interface {
	Publish(env Envelope) error
	Subscribe(deliver func(Envelope)) error
	Close() error
}

// NATSBus is a Bus over a single NATS subject. Every process subscribes to
// the subject without a queue group, so each receives every push.
type NATSBus struct {
	nc      *nats.Conn
	subject string
	sub     *nats.Subscription
	log     *zap.Logger
}

// ConnectNATS dials url and returns a bus publishing on subject.
func ConnectNATS(url, subject string, logger *zap.Logger) (*NATSBus, error) {
	if subject == "" {
		return nil, errors.New("realtime: empty NATS subject")
	}
	nc, err := nats.Connect(url,
		nats.Name("taskhub"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}
	logger.Info("nats connected",
		zap.String("url", nc.ConnectedUrl()),
		zap.String("subject", subject))
	return &NATSBus{nc: nc, subject: subject, log: logger}, nil
}

// Publish sends env to every subscribed process.
func (b *NATSBus) Publish(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.nc.Publish(b.subject, data)
}

// Subscribe calls deliver for every envelope on the subject. Malformed
// messages are logged and skipped.
func (b *NATSBus) Subscribe(deliver func(Envelope)) error {
	sub, err := b.nc.Subscribe(b.subject, func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			b.log.Warn("nats: malformed envelope", zap.Error(err))
			return
		}
		deliver(env)
	})
	if err != nil {
		return err
	}
	b.sub = sub
	return nil
}

// Close drains the subscription and the connection.
func (b *NATSBus) Close() error {
	if b.nc == nil {
		return nil
	}
	return b.nc.Drain()
}
