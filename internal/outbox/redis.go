package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"relaychat/internal/model"
	redisSvc "relaychat/internal/service/redis"
)

const (
	entriesKey = "outbox:entries"
)

type (
	// Redis is a Store backed by redis: one hash of serialized entries
	// keyed by server message id, plus a per-recipient list of ids
	// preserving insertion order. Unlike Memory it survives a server
	// restart.
	Redis struct {
		svc *redisSvc.RedisService
	}
)

func NewRedis(svc *redisSvc.RedisService) *Redis {
	return &Redis{svc: svc}
}

func recipientKey(identity string) string {
	return fmt.Sprintf("outbox:to:%s", identity)
}

func (s *Redis) Add(ctx context.Context, m *model.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal outbox entry: %w", err)
	}

	set, err := s.svc.HSetNX(ctx, entriesKey, m.ServerMsgID, data)
	if err != nil {
		return err
	}
	if !set {
		return fmt.Errorf("outbox: duplicate server message id %q", m.ServerMsgID)
	}
	return s.svc.RPush(ctx, recipientKey(m.To), m.ServerMsgID)
}

func (s *Redis) Remove(ctx context.Context, serverMsgID string) (*model.Message, error) {
	v, err := s.svc.HGet(ctx, entriesKey, serverMsgID)
	if redisSvc.IsNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var m model.Message
	if err := json.Unmarshal([]byte(v), &m); err != nil {
		return nil, fmt.Errorf("unmarshal outbox entry: %w", err)
	}

	if err := s.svc.HDel(ctx, entriesKey, serverMsgID); err != nil {
		return nil, err
	}
	if err := s.svc.LRem(ctx, recipientKey(m.To), serverMsgID); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Redis) DrainFor(ctx context.Context, identity string) ([]model.Message, error) {
	ids, err := s.svc.LRange(ctx, recipientKey(identity))
	if err != nil {
		return nil, err
	}

	var out []model.Message
	for _, id := range ids {
		v, err := s.svc.HGet(ctx, entriesKey, id)
		if redisSvc.IsNil(err) {
			continue
		}
		if err != nil {
			return nil, err
		}

		var m model.Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("unmarshal outbox entry: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}
