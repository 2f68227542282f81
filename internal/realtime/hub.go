// Package realtime turns postgres NOTIFY traffic into in-process change
// subscriptions. The database triggers publish every row change on a single
// channel; the hub decodes each payload and fans it out to subscribers
// filtered by (schema, table, row predicate).
package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Maken-HQ-Team/meetmate/internal/config"
	"github.com/Maken-HQ-Team/meetmate/internal/models"
)

const subscriptionBuffer = 100

// listener abstracts *pq.Listener so hub tests can inject a fake source
type listener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// FilterFunc narrows a subscription to the rows a subscriber cares about.
// A nil filter matches every event on the (schema, table) pair.
type FilterFunc func(models.ChangeEvent) bool

// Subscription is a live feed of change events. Receive from C; call
// Unsubscribe when done. Slow consumers lose events rather than stall
// the hub.
type Subscription struct {
	C chan models.ChangeEvent

	id     int64
	schema string
	table  string
	filter FilterFunc
	hub    *Hub
}

// Events exposes the feed for callers that hold the subscription behind
// an interface
func (s *Subscription) Events() <-chan models.ChangeEvent {
	return s.C
}

// Unsubscribe detaches the subscription and closes C
func (s *Subscription) Unsubscribe() {
	s.hub.remove(s.id)
}

// Hub listens on the notification channel and dispatches decoded change
// events to matching subscriptions
type Hub struct {
	listener listener
	channel  string
	pingEvry time.Duration
	logger   *zap.Logger

	mu     sync.RWMutex
	subs   map[int64]*Subscription
	nextID int64
	closed bool
}

// NewHub connects a notification listener to the configured channel.
// Reconnection backoff is handled by the pq listener itself.
func NewHub(dsn string, cfg *config.RealtimeConfig, logger *zap.Logger) *Hub {
	l := pq.NewListener(dsn, cfg.MinReconnect, cfg.MaxReconnect, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			logger.Info("realtime listener connected")
		case pq.ListenerEventReconnected:
			logger.Info("realtime listener reconnected")
		case pq.ListenerEventDisconnected:
			logger.Warn("realtime listener disconnected", zap.Error(err))
		case pq.ListenerEventConnectionAttemptFailed:
			logger.Warn("realtime listener connection attempt failed", zap.Error(err))
		}
	})

	return newHub(l, cfg, logger)
}

func newHub(l listener, cfg *config.RealtimeConfig, logger *zap.Logger) *Hub {
	return &Hub{
		listener: l,
		channel:  cfg.Channel,
		pingEvry: cfg.PingInterval,
		logger:   logger,
		subs:     make(map[int64]*Subscription),
	}
}

// Run listens for notifications until the context is cancelled. A nil
// notification from pq signals a reconnect; subscribers should treat the
// stream as at-most-once and refetch on doubt.
func (h *Hub) Run(ctx context.Context) error {
	if err := h.listener.Listen(h.channel); err != nil {
		return fmt.Errorf("failed to listen on channel %s: %w", h.channel, err)
	}

	h.logger.Info("realtime hub started", zap.String("channel", h.channel))

	pingTicker := time.NewTicker(h.pingEvry)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("stopping realtime hub")
			return nil

		case n := <-h.listener.NotificationChannel():
			if n == nil {
				// connection was re-established; notifications may
				// have been missed in between
				h.logger.Warn("realtime listener resumed after reconnect")
				continue
			}
			h.dispatch(n.Extra)

		case <-pingTicker.C:
			if err := h.listener.Ping(); err != nil {
				h.logger.Warn("realtime listener ping failed", zap.Error(err))
			}
		}
	}
}

// Subscribe registers a feed for changes on (schema, table) passing filter
func (h *Hub) Subscribe(schema, table string, filter FilterFunc) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		C:      make(chan models.ChangeEvent, subscriptionBuffer),
		id:     h.nextID,
		schema: schema,
		table:  table,
		filter: filter,
		hub:    h,
	}
	h.subs[sub.id] = sub

	h.logger.Debug("subscription added",
		zap.String("schema", schema),
		zap.String("table", table),
		zap.Int64("subscription_id", sub.id),
	)

	return sub
}

func (h *Hub) remove(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.C)
}

// dispatch decodes a notification payload and fans it out
func (h *Hub) dispatch(payload string) {
	event, err := models.DecodeChangeEvent([]byte(payload))
	if err != nil {
		h.logger.Warn("failed to decode change notification",
			zap.Error(err),
			zap.String("payload", payload),
		)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.schema != event.Schema || sub.table != event.Table {
			continue
		}
		if sub.filter != nil && !sub.filter(event) {
			continue
		}

		// non-blocking send to avoid stalling the listener loop on
		// slow consumers
		select {
		case sub.C <- event:
		default:
			h.logger.Warn("subscription channel full, dropping event",
				zap.String("table", event.Table),
				zap.Int64("subscription_id", sub.id),
			)
		}
	}
}

// SubscriptionCount reports the number of live subscriptions
func (h *Hub) SubscriptionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Shutdown closes the listener and every subscription channel
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	for id, sub := range h.subs {
		close(sub.C)
		delete(h.subs, id)
	}

	if err := h.listener.Close(); err != nil {
		return fmt.Errorf("failed to close listener: %w", err)
	}

	h.logger.Info("realtime hub shut down")
	return nil
}
