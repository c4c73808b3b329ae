package changefeed

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/rs/xid"
)

// Subject is the NATS subject carrying change events between instances.
const Subject = "socialhub.changes"

// changeEvent is the wire payload published on Subject.
type changeEvent struct {
	Origin     string `json:"origin"`
	Collection string `json:"collection"`
}

// publisher is the part of *nats.Conn the bridge writes through.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSBridge fans local changes out over NATS and replays changes made by
// other instances into the local Hub. Events that originate here are not
// replayed twice.
type NATSBridge struct {
	local  *Hub
	pub    publisher
	sub    *nats.Subscription
	origin string
	logger *slog.Logger
}

var _ Notifier = (*NATSBridge)(nil)

// NewNATSBridge subscribes to Subject on nc and returns a Notifier that
// publishes to both the local hub and NATS.
func NewNATSBridge(nc *nats.Conn, local *Hub, logger *slog.Logger) (*NATSBridge, error) {
	b := newBridge(nc, local, logger)

	sub, err := nc.Subscribe(Subject, func(msg *nats.Msg) {
		b.handle(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("changefeed: subscribing to %s: %w", Subject, err)
	}
	b.sub = sub

	logger.Info("change bridge connected",
		slog.String("subject", Subject),
		slog.String("origin", b.origin),
	)
	return b, nil
}

func newBridge(pub publisher, local *Hub, logger *slog.Logger) *NATSBridge {
	return &NATSBridge{
		local:  local,
		pub:    pub,
		origin: xid.New().String(),
		logger: logger,
	}
}

func (b *NATSBridge) Publish(collection string) {
	b.local.Publish(collection)

	data, err := json.Marshal(changeEvent{Origin: b.origin, Collection: collection})
	if err != nil {
		b.logger.Warn("encoding change event", slog.String("error", err.Error()))
		return
	}
	// A lost event only delays remote watchers until the next write.
	if err := b.pub.Publish(Subject, data); err != nil {
		b.logger.Warn("publishing change event",
			slog.String("collection", collection),
			slog.String("error", err.Error()),
		)
	}
}

func (b *NATSBridge) Subscribe(collection string, fn func()) func() {
	return b.local.Subscribe(collection, fn)
}

func (b *NATSBridge) handle(data []byte) {
	var ev changeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		b.logger.Warn("dropping malformed change event", slog.String("error", err.Error()))
		return
	}
	if ev.Origin == b.origin || ev.Collection == "" {
		return
	}
	b.local.Publish(ev.Collection)
}

// Close unsubscribes from NATS. The connection itself belongs to the caller.
func (b *NATSBridge) Close() error {
	if b.sub == nil {
		return nil
	}
	return b.sub.Unsubscribe()
}
