// Package notify publishes user-facing notification events (withdrawal
// confirmations and the like) to a message channel. Delivery is best
// effort: a failed publish is logged and never fails the operation that
// triggered it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/stellarkeeper/internal/logging"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Event types.
const (
	TypeWithdrawal     = "send:withdrawal:email"
	TypeFiatWithdrawal = "send:fiat:withdrawal:email"
)

// TxDateLayout formats Event.TxDate, e.g. "March 1, 2025 at 12:00 PM".
const TxDateLayout = "January 2, 2006 at 3:04 PM"

// Event is the payload consumed by the mailer.
type Event struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	To              string `json:"to"`
	Subject         string `json:"subject"`
	AppName         string `json:"app_name"`
	Username        string `json:"username"`
	Email           string `json:"email,omitempty"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	UserAddress     string `json:"user_address"`
	ReceiverAddress string `json:"receiver_address"`
	TxHash          string `json:"tx_hash"`
	TxDate          string `json:"tx_date"`
	AccountNumber   string `json:"account_number,omitempty"`
	AccountName     string `json:"account_name,omitempty"`
	BankName        string `json:"bank_name,omitempty"`
}

// Publisher delivers one event.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// RedisPublisher publishes JSON encoded events on a Redis channel.
type RedisPublisher struct {
	client  redis.Cmdable
	channel string
}

func NewRedisPublisher(client redis.Cmdable, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, b).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	logger logging.Logger
}

func NewLogPublisher(l logging.Logger) *LogPublisher {
	return &LogPublisher{logger: l.With("module", "notify")}
}

func (p *LogPublisher) Publish(ctx context.Context, ev Event) error {
	p.logger.Info(ctx, "notification", "id", ev.ID, "type", ev.Type, "currency", ev.Currency, "tx_hash", ev.TxHash)
	return nil
}

// Notifier publishes events in the background with a bounded timeout.
type Notifier struct {
	pub     Publisher
	timeout time.Duration
	logger  logging.Logger
	wg      sync.WaitGroup
}

func NewNotifier(pub Publisher, timeout time.Duration, l logging.Logger) *Notifier {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{pub: pub, timeout: timeout, logger: l.With("module", "notify")}
}

// Notify schedules ev for delivery and returns immediately.
func (n *Notifier) Notify(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		if err := n.pub.Publish(ctx, ev); err != nil {
			n.logger.Warn(ctx, "notification not delivered", "id", ev.ID, "type", ev.Type, "error", err)
		}
	}()
}

// Wait blocks until every scheduled event has been handled.
func (n *Notifier) Wait() { n.wg.Wait() }
