package server

import (
	"context"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"relaychat/internal/model"
	"relaychat/internal/outbox"
	"relaychat/internal/protocol"
	"relaychat/internal/registry"
	"relaychat/internal/utils/log"
)

type (
	// Coordinator moves a message from sender intent to confirmed
	// receipt. Each accepted message is stored in the outbox before any
	// delivery attempt and removed only on the recipient's
	// acknowledgment, so direct delivery and queued redelivery share
	// one removal path.
	Coordinator struct {
		registry *registry.Registry
		outbox   outbox.Store
	}
)

func NewCoordinator(reg *registry.Registry, ob outbox.Store) *Coordinator {
	return &Coordinator{
		registry: reg,
		outbox:   ob,
	}
}

// Submit accepts a send request from sender. The frame must carry a
// client message id, recipient and body; anything less is dropped with
// a log line and no state is created.
//
// A failed forward write is not retried: the outbox entry plus the
// recipient's next connect drain achieve delivery eventually, which
// means delivery latency is unbounded until the recipient reconnects.
func (c *Coordinator) Submit(ctx context.Context, sender string, f *protocol.Frame) {
	if f.ClientMsgID == "" || f.To == "" || f.Body == "" {
		log.Info("dropping invalid send request",
			zap.String("from", sender),
			zap.String("clientMsgId", f.ClientMsgID),
			zap.String("to", f.To))
		return
	}

	m := &model.Message{
		ServerMsgID: ulid.Make().String(),
		ClientMsgID: f.ClientMsgID,
		From:        sender,
		To:          f.To,
		Body:        f.Body,
		Timestamp:   f.Timestamp,
	}

	if err := c.outbox.Add(ctx, m); err != nil {
		log.Error("outbox add failed", zap.String("serverMsgId", m.ServerMsgID), zap.Error(err))
		return
	}

	if h, ok := c.registry.Lookup(m.To); ok {
		if err := h.WriteFrame(protocol.Incoming(m)); err != nil {
			// entry stays queued; the next connect drain resends it
			log.Debug("direct forward failed", zap.String("to", m.To), zap.Error(err))
		}
	}

	// transport receipt: the server accepted the message. Not a
	// delivery confirmation.
	if h, ok := c.registry.Lookup(sender); ok {
		if err := h.WriteFrame(protocol.Receipt(m.ServerMsgID, m.ClientMsgID, m.To)); err != nil {
			log.Debug("receipt write failed", zap.String("to", sender), zap.Error(err))
		}
	}
}

// Acknowledge processes a recipient's delivery acknowledgment. Unknown
// ids are tolerated: duplicate or late acks arrive in normal operation
// and must never be fatal. A mismatched acker is logged and otherwise
// ignored; removal already happened and removal is the intended effect.
func (c *Coordinator) Acknowledge(ctx context.Context, acker string, serverMsgID string) {
	m, err := c.outbox.Remove(ctx, serverMsgID)
	if err != nil {
		log.Error("outbox remove failed", zap.String("serverMsgId", serverMsgID), zap.Error(err))
		return
	}
	if m == nil {
		log.Debug("ack for unknown or already-acked message", zap.String("serverMsgId", serverMsgID))
		return
	}
	if m.To != acker {
		log.Info("ack from wrong identity",
			zap.String("serverMsgId", serverMsgID),
			zap.String("expected", m.To),
			zap.String("got", acker))
		return
	}

	// relay the delivery confirmation to the original sender. The frame
	// carries only the server id; the sender matches it against the id
	// recorded on its pending marker.
	if h, ok := c.registry.Lookup(m.From); ok {
		if err := h.WriteFrame(protocol.Ack(serverMsgID)); err != nil {
			log.Debug("ack relay failed", zap.String("to", m.From), zap.Error(err))
		}
	}
}

// OnConnect registers the new handle, announces presence and resends
// everything still queued for identity as one batch. The batch is not
// acknowledged atomically; the client acks each contained message.
func (c *Coordinator) OnConnect(ctx context.Context, identity string, h registry.Handle) {
	c.registry.Register(identity, h)
	c.broadcastPresence(identity, protocol.StatusOnline)

	queued, err := c.outbox.DrainFor(ctx, identity)
	if err != nil {
		log.Error("outbox drain failed", zap.String("identity", identity), zap.Error(err))
		return
	}
	if len(queued) == 0 {
		return
	}
	if err := h.WriteFrame(protocol.UndeliveredBatch(queued)); err != nil {
		log.Debug("undelivered batch write failed", zap.String("identity", identity), zap.Error(err))
	}
}

// OnDisconnect unregisters identity, but only while h is still the
// registered handle: a replacement connection may already have taken
// over, and the old reader's teardown must not knock it offline.
func (c *Coordinator) OnDisconnect(_ context.Context, identity string, h registry.Handle) {
	current, ok := c.registry.Lookup(identity)
	if !ok || current != h {
		return
	}
	c.registry.Unregister(identity)
	c.broadcastPresence(identity, protocol.StatusOffline)
}

func (c *Coordinator) broadcastPresence(subject, status string) {
	f := protocol.Presence(subject, status)
	for _, identity := range c.registry.ListOnline() {
		if identity == subject {
			continue
		}
		if h, ok := c.registry.Lookup(identity); ok {
			if err := h.WriteFrame(f); err != nil {
				log.Debug("presence write failed", zap.String("to", identity), zap.Error(err))
			}
		}
	}
}
