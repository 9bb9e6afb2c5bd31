// Package realtime listens for bookmark change notifications published by the
// database triggers and fans them out to in-process subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/moolinks/backend/internal/metrics"
)

// DefaultChannel is the notification channel the triggers publish to.
const DefaultChannel = "bookmark_changes"

const (
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second
)

// Event describes a single committed change to a user's folders or links.
type Event struct {
	Table  string `json:"table"`
	Op     string `json:"op"`
	UserID string `json:"user_id"`
}

// ErrInvalidPayload is returned when a notification payload cannot be decoded.
var ErrInvalidPayload = errors.New("invalid change payload")

// ParseEvent decodes a trigger payload.
func ParseEvent(payload string) (Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if event.UserID == "" {
		return Event{}, fmt.Errorf("%w: missing user_id", ErrInvalidPayload)
	}
	return event, nil
}

// Conn is the slice of *pgx.Conn the listener needs.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// DialFunc opens a dedicated connection for listening.
type DialFunc func(ctx context.Context) (Conn, error)

// PgxDialer returns a DialFunc connecting to dsn with pgx.
func PgxDialer(dsn string) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Subscriber receives decoded events. It runs on the listener goroutine and
// must not block.
type Subscriber func(Event)

// Listener holds a LISTEN connection open and reconnects with capped
// exponential backoff when it drops.
type Listener struct {
	Channel string
	Dial    DialFunc
	Logger  *slog.Logger

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// OnConnect runs after every successful LISTEN. Notifications sent while
	// disconnected are lost, so callers use it to drop derived state.
	OnConnect func()

	mu          sync.RWMutex
	subscribers []Subscriber
}

// NewListener constructs a listener on channel using dial.
func NewListener(channel string, dial DialFunc, logger *slog.Logger) *Listener {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{Channel: channel, Dial: dial, Logger: logger}
}

// Subscribe registers fn for every subsequent event.
func (l *Listener) Subscribe(fn Subscriber) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.subscribers = append(l.subscribers, fn)
	l.mu.Unlock()
}

// Run listens until ctx is cancelled. It only returns ctx.Err().
func (l *Listener) Run(ctx context.Context) error {
	if l.Dial == nil {
		return errors.New("realtime listener has no dialer")
	}

	backoff := l.initialBackoff()
	for {
		err := l.listenOnce(ctx, func() { backoff = l.initialBackoff() })
		if ctx.Err() != nil {
			return ctx.Err()
		}

		l.logger().Warn("realtime listener disconnected", "channel", l.Channel, "error", err, "retryIn", backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = nextBackoff(backoff, l.maxBackoff())
	}
}

func (l *Listener) listenOnce(ctx context.Context, connected func()) error {
	conn, err := l.Dial(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.Channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	connected()
	l.logger().Info("realtime listener connected", "channel", l.Channel)
	if l.OnConnect != nil {
		l.OnConnect()
	}

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		l.handle(notification)
	}
}

func (l *Listener) handle(notification *pgconn.Notification) {
	if notification == nil || notification.Channel != l.Channel {
		return
	}

	event, err := ParseEvent(notification.Payload)
	if err != nil {
		l.logger().Warn("realtime payload rejected", "payload", notification.Payload, "error", err)
		return
	}
	metrics.ObserveRealtimeEvent(event.Table)

	l.mu.RLock()
	subscribers := append([]Subscriber(nil), l.subscribers...)
	l.mu.RUnlock()

	for _, fn := range subscribers {
		fn(event)
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max || next <= 0 {
		return max
	}
	return next
}

func (l *Listener) initialBackoff() time.Duration {
	if l.InitialBackoff > 0 {
		return l.InitialBackoff
	}
	return defaultInitialBackoff
}

func (l *Listener) maxBackoff() time.Duration {
	if l.MaxBackoff > 0 {
		return l.MaxBackoff
	}
	return defaultMaxBackoff
}

func (l *Listener) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}
