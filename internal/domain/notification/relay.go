package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/metrics"
	"github.com/carelink/carelink/internal/platform/websocket"
)

// Relay delivers notifications to users. Delivery is best-effort: failures
// are logged and counted, never propagated to the caller, so a failed
// notification cannot fail the operation that triggered it.
type Relay struct {
	repo      Repository
	publisher websocket.EventPublisher
	log       zerolog.Logger
}

func NewRelay(repo Repository, publisher websocket.EventPublisher, log zerolog.Logger) *Relay {
	return &Relay{repo: repo, publisher: publisher, log: log}
}

// Notify persists a notification for the recipient and pushes it over the
// websocket hub. Always returns; errors are swallowed after logging.
func (r *Relay) Notify(ctx context.Context, recipientID uuid.UUID, typ, title, message string, actionURL *string, metadata map[string]string) {
	n := &Notification{
		RecipientUserID: recipientID,
		Type:            typ,
		Title:           title,
		Message:         message,
		ActionURL:       actionURL,
		Metadata:        metadata,
	}

	if err := r.repo.Create(ctx, n); err != nil {
		metrics.NotificationFailures.Inc()
		r.log.Error().Err(err).
			Str("recipient", recipientID.String()).
			Str("type", typ).
			Msg("failed to persist notification")
		return
	}

	r.push(ctx, n)
}

func (r *Relay) push(ctx context.Context, n *Notification) {
	if r.publisher == nil {
		return
	}
	data, err := json.Marshal(n)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to marshal notification for push")
		return
	}
	event := websocket.Event{
		Type:           fmt.Sprintf("notification.%s", n.Type),
		Topic:          websocket.UserTopic(n.RecipientUserID),
		NotificationID: n.ID.String(),
		Timestamp:      time.Now().UTC(),
		Data:           data,
	}
	if err := r.publisher.Publish(ctx, event); err != nil {
		metrics.NotificationFailures.Inc()
		r.log.Warn().Err(err).
			Str("recipient", n.RecipientUserID.String()).
			Msg("failed to push notification")
	}
}

// List returns the recipient's notifications, newest first.
func (r *Relay) List(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]*Notification, int, error) {
	return r.repo.ListByRecipient(ctx, recipientID, limit, offset)
}

// MarkRead marks a notification as read. Only the recipient may do so.
func (r *Relay) MarkRead(ctx context.Context, id, callerID uuid.UUID) error {
	n, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("notification not found")
	}
	if n.RecipientUserID != callerID {
		return fmt.Errorf("notification belongs to a different user")
	}
	return r.repo.MarkRead(ctx, id)
}

// UnreadCount returns the number of unread notifications for the recipient.
func (r *Relay) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int, error) {
	return r.repo.UnreadCount(ctx, recipientID)
}
