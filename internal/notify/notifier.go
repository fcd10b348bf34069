// Package notify delivers operator notifications for stake activity.
// Notifications fan out to all registered senders (Telegram, Discord) and
// are filtered by event type so operators receive only the alerts they care
// about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pricepoolhq/poolbot/internal/domain"
)

// Event types emitted by the service layer and the resolution watcher.
const (
	EventStakeSubmitted = "stake_submitted"
	EventPoolResolved   = "pool_resolved"
	EventDeposit        = "deposit"
	EventWithdrawal     = "withdrawal"
	EventError          = "error"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender.
	Name() string
}

// Notifier dispatches notifications to one or more Senders. It maintains a
// set of allowed event types; Notify only forwards messages whose event type
// is in the allowed set.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only
// events whose type appears in the events slice are forwarded by Notify; an
// empty slice allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends a notification to all senders if the event type is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}

	return n.dispatch(ctx, title, message)
}

// StakeSubmitted announces a confirmed stake.
func (n *Notifier) StakeSubmitted(ctx context.Context, receipt *domain.PredictionReceipt) error {
	title := "Stake submitted"
	message := fmt.Sprintf("%s %s %s, %s %s base units\ntx %s",
		receipt.Input.Asset, receipt.Input.Direction, formatThreshold(receipt.Input.Threshold),
		receipt.Input.Amount, receipt.Input.Token, receipt.TxHash,
	)
	return n.Notify(ctx, EventStakeSubmitted, title, message)
}

// StakeSettled announces a pending stake that just resolved.
func (n *Notifier) StakeSettled(ctx context.Context, rec domain.StakeRecord) error {
	title := fmt.Sprintf("Stake settled: %s", strings.ToUpper(string(rec.Result)))
	message := fmt.Sprintf("%s %s %s settled at %s for %s",
		rec.Asset, rec.Direction, formatThreshold(rec.Threshold),
		formatThreshold(rec.FinalPrice), domain.ShortAddress(rec.Wallet),
	)
	return n.Notify(ctx, EventPoolResolved, title, message)
}

func formatThreshold(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

// dispatch fans the notification out to every sender. Errors are collected;
// one failing sender never blocks delivery to the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
