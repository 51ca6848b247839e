// Package events mirrors catalog changes onto Redis pub/sub so that other
// sessions viewing the same scope can refresh.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"trail-go/internal/config"
	"trail-go/internal/trail"
)

// Message is the payload published for one catalog change.
type Message struct {
	Origin  string             `json:"origin"`
	Scope   string             `json:"scope"`
	Reason  trail.ChangeReason `json:"reason"`
	TrailID string             `json:"trail_id,omitempty"`
	Count   int                `json:"count"`
	At      time.Time          `json:"at"`
}

// ConnectRedis returns a client for cfg, or nil when events are disabled.
func ConnectRedis(cfg config.EventsConfig) *redis.Client {
	if cfg.Type != "redis" || cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}

// Publisher publishes catalog changes made by one session.
type Publisher struct {
	client *redis.Client
	prefix string
	origin string
	clock  trail.Clock
	logger trail.Logger
}

// NewPublisher creates a Publisher. origin identifies the publishing
// session so it can ignore its own messages when following.
func NewPublisher(client *redis.Client, prefix, origin string, logger trail.Logger) *Publisher {
	if prefix == "" {
		prefix = config.DefaultChannelPrefix
	}
	if logger == nil {
		logger = trail.NewNopLogger()
	}
	return &Publisher{client: client, prefix: prefix, origin: origin, clock: trail.RealClock{}, logger: logger}
}

// Channel returns the channel name for scope: <prefix>:<scope>:changed.
func (p *Publisher) Channel(scope string) string {
	return p.prefix + ":" + scope + ":changed"
}

func (p *Publisher) scopeFromChannel(ch string) string {
	const suffix = ":changed"
	head := p.prefix + ":"
	if !strings.HasPrefix(ch, head) || !strings.HasSuffix(ch, suffix) || len(ch) < len(head)+len(suffix) {
		return ""
	}
	return ch[len(head) : len(ch)-len(suffix)]
}

// Publish sends ev. Plain refreshes are not published: they change
// nothing in the store.
func (p *Publisher) Publish(ctx context.Context, ev trail.ListChanged) error {
	if ev.Reason == trail.ChangeRefreshed {
		return nil
	}
	payload, err := json.Marshal(Message{
		Origin:  p.origin,
		Scope:   ev.Scope,
		Reason:  ev.Reason,
		TrailID: ev.TrailID,
		Count:   len(ev.Records),
		At:      p.clock.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding change event: %w", err)
	}
	if err := p.client.Publish(ctx, p.Channel(ev.Scope), payload).Err(); err != nil {
		return fmt.Errorf("publishing change event: %w", err)
	}
	return nil
}

// Attach publishes every change of catalog until the returned function is
// called. Publish failures are logged and otherwise ignored.
func (p *Publisher) Attach(catalog *trail.Catalog) (detach func()) {
	return catalog.Subscribe(func(ev trail.ListChanged) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := p.Publish(ctx, ev); err != nil {
			p.logger.Warn("redis publish failed", "scope", ev.Scope, "error", err)
		}
	})
}

// Follow refreshes catalog whenever another session publishes a change for
// scope. It blocks until ctx is cancelled.
func (p *Publisher) Follow(ctx context.Context, scope string, catalog *trail.Catalog) error {
	sub := p.client.Subscribe(ctx, p.Channel(scope))
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", p.Channel(scope), err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m Message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				p.logger.Warn("ignoring malformed change event", "channel", msg.Channel, "error", err)
				continue
			}
			if m.Origin == p.origin || p.scopeFromChannel(msg.Channel) != scope {
				continue
			}
			p.logger.Debug("remote catalog change", "origin", m.Origin, "reason", string(m.Reason), "id", m.TrailID)
			if err := catalog.Refresh(ctx); err != nil {
				p.logger.Warn("refresh after remote change failed", "error", err)
			}
		}
	}
}
