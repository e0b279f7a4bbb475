package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/oshitechglobal/creatordeck/internal/config"
)

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is one row-level change pushed to subscribed clients.
// Version lets a consumer drop events older than the row it already holds.
type ChangeEvent struct {
	Type    ChangeType      `json:"type"`
	Table   string          `json:"table"`
	OwnerID string          `json:"owner_id"`
	Version uint            `json:"version"`
	Row     json.RawMessage `json:"row"`
}

func NewChangeEvent(typ ChangeType, table, ownerID string, version uint, row interface{}) ChangeEvent {
	raw, err := json.Marshal(row)
	if err != nil {
		raw = nil
	}
	return ChangeEvent{
		Type:    typ,
		Table:   table,
		OwnerID: ownerID,
		Version: version,
		Row:     raw,
	}
}

// Feed is the realtime change-feed bus. Publish fans a change out to every
// subscriber of the row's owner, across server replicas when backed by
// Redis.
type Feed interface {
	Publish(ctx context.Context, ev ChangeEvent) error
	Subscribe(ownerID string) (<-chan ChangeEvent, func())
	Start(ctx context.Context) error
	Close() error
}

// subscriberHub is the process-local fanout: owner id -> open SSE streams.
type subscriberHub struct {
	mu   sync.RWMutex
	subs map[string]map[chan ChangeEvent]struct{}
}

func newSubscriberHub() *subscriberHub {
	return &subscriberHub{subs: make(map[string]map[chan ChangeEvent]struct{})}
}

func (h *subscriberHub) subscribe(ownerID string) (<-chan ChangeEvent, func()) {
	ch := make(chan ChangeEvent, 64)

	h.mu.Lock()
	if h.subs[ownerID] == nil {
		h.subs[ownerID] = make(map[chan ChangeEvent]struct{})
	}
	h.subs[ownerID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[ownerID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, ownerID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *subscriberHub) dispatch(ev ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.OwnerID] {
		select {
		case ch <- ev:
		default:
			// slow consumer, drop rather than block the feed
		}
	}
}

// localFeed serves a single-node deployment without Redis.
type localFeed struct {
	hub *subscriberHub
}

func NewLocalFeed() Feed {
	return &localFeed{hub: newSubscriberHub()}
}

func (f *localFeed) Publish(_ context.Context, ev ChangeEvent) error {
	f.hub.dispatch(ev)
	return nil
}

func (f *localFeed) Subscribe(ownerID string) (<-chan ChangeEvent, func()) {
	return f.hub.subscribe(ownerID)
}

func (f *localFeed) Start(context.Context) error { return nil }
func (f *localFeed) Close() error                { return nil }

// redisFeed publishes through a Redis channel so multiple server replicas
// see every change; a forwarder goroutine feeds the local hub.
type redisFeed struct {
	logger  *zap.Logger
	rdb     *goredis.Client
	channel string
	hub     *subscriberHub
}

func NewRedisFeed(cfg *config.RedisConfig, logger *zap.Logger) (Feed, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisFeed{
		logger:  logger,
		rdb:     rdb,
		channel: cfg.Channel,
		hub:     newSubscriberHub(),
	}, nil
}

func (f *redisFeed) Publish(ctx context.Context, ev ChangeEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return f.rdb.Publish(ctx, f.channel, raw).Err()
}

func (f *redisFeed) Subscribe(ownerID string) (<-chan ChangeEvent, func()) {
	return f.hub.subscribe(ownerID)
}

func (f *redisFeed) Start(ctx context.Context) error {
	sub := f.rdb.Subscribe(ctx, f.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var ev ChangeEvent
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					f.logger.Warn("Bad change-feed payload", zap.Error(err))
					continue
				}
				f.hub.dispatch(ev)
			}
		}
	}()

	return nil
}

func (f *redisFeed) Close() error {
	return f.rdb.Close()
}
