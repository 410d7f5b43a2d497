package asynq

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

// Enqueuer is the producer side of *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

const (
	TypeNotificationCreate = "notification:create"
	TypeTradeConfirm       = "trade:confirm"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

type NotificationPayload struct {
	ID        string         `json:"id"`
	SteamID   string         `json:"steam_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type TradeConfirmPayload struct {
	ClaimID string `json:"claim_id"`
	OfferID string `json:"offer_id"`
}
