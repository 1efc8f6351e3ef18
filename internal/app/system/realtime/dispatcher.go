package realtime

import (
	"context"
	"encoding/json"

	"github.com/dalemusser/taskhub/internal/app/system/metrics"
	"github.com/dalemusser/taskhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// NotificationStore persists notifications. *notificationstore.Store satisfies it.
type NotificationStore interface {
	Create(ctx context.Context, n models.Notification) (models.Notification, error)
}

// Dispatcher turns domain events into pushes. Pushes are best effort:
// a failed or dropped push is logged and never reported to the caller.
// Notifications are persisted before anything is pushed.
type Dispatcher struct {
	reg     *Registry
	notes   NotificationStore
	bus     Bus
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewDispatcher builds a Dispatcher delivering to sessions in reg.
// m may be nil.
func NewDispatcher(reg *Registry, notes NotificationStore, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{reg: reg, notes: notes, metrics: m, log: logger}
}

// UseBus routes every push through b so sessions connected to other
// processes receive it too. Frames arriving from the bus, including this
// process's own, are delivered to local sessions.
func (d *Dispatcher) UseBus(b Bus) error {
	if err := b.Subscribe(func(env Envelope) {
		d.deliverLocal(env.Channel, env.Event, env.Frame)
	}); err != nil {
		return err
	}
	d.bus = b
	return nil
}

// Notify persists n and then pushes it to the recipient's sessions.
// The stored notification is returned; a storage error is returned as is
// and nothing is pushed.
func (d *Dispatcher) Notify(ctx context.Context, n models.Notification) (models.Notification, error) {
	stored, err := d.notes.Create(ctx, n)
	if err != nil {
		return models.Notification{}, err
	}
	d.metrics.NotificationStored(string(stored.Type))
	d.Emit(UserChannel(stored.Recipient), EventNewNotification, stored)
	return stored, nil
}

// EmitToUsers pushes one event to the private channel of each user.
func (d *Dispatcher) EmitToUsers(users []primitive.ObjectID, name string, data any) {
	frame, ok := d.encode(name, data)
	if !ok {
		return
	}
	for _, u := range users {
		d.publish(UserChannel(u), name, frame)
	}
}

// Emit pushes an event to every session subscribed to channel.
func (d *Dispatcher) Emit(channel, name string, data any) {
	frame, ok := d.encode(name, data)
	if !ok {
		return
	}
	d.publish(channel, name, frame)
}

func (d *Dispatcher) encode(name string, data any) ([]byte, bool) {
	ev, err := NewEvent(name, data)
	if err != nil {
		d.log.Warn("realtime: encode event failed", zap.String("event", name), zap.Error(err))
		return nil, false
	}
	frame, err := json.Marshal(ev)
	if err != nil {
		d.log.Warn("realtime: encode frame failed", zap.String("event", name), zap.Error(err))
		return nil, false
	}
	return frame, true
}

func (d *Dispatcher) publish(channel, name string, frame []byte) {
	if d.bus != nil {
		err := d.bus.Publish(Envelope{Channel: channel, Event: name, Frame: frame})
		if err == nil {
			return
		}
		d.log.Warn("realtime: bus publish failed, delivering locally",
			zap.String("channel", channel),
			zap.String("event", name),
			zap.Error(err))
	}
	d.deliverLocal(channel, name, frame)
}

func (d *Dispatcher) deliverLocal(channel, name string, frame []byte) {
	for _, s := range d.reg.Targets(channel) {
		if s.Send(frame) {
			d.metrics.Pushed(name)
			continue
		}
		d.metrics.PushDropped()
		d.log.Debug("realtime: push dropped",
			zap.String("channel", channel),
			zap.String("event", name))
	}
}
