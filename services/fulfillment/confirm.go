package fulfillment

import (
	"context"
	"encoding/json"
	"time"

	asynqtask "giveaway-fulfillment/pkg/asynq"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const confirmTimeout = 30 * time.Second

// Confirmer accepts the mobile confirmation of a freshly sent offer in the
// background. The caller never waits on it and the claim status never depends on it.
type Confirmer interface {
	Dispatch(ctx context.Context, claimID, offerID string)
}

// OfferConfirmer is the Steam side of a confirmation.
type OfferConfirmer interface {
	ConfirmOffer(ctx context.Context, offerID string) (bool, error)
}

// TaskConfirmer enqueues a trade:confirm task, or confirms from a detached goroutine
// when no queue is configured.
type TaskConfirmer struct {
	queue asynqtask.Enqueuer
	steam OfferConfirmer
}

func NewTaskConfirmer(queue asynqtask.Enqueuer, steam OfferConfirmer) *TaskConfirmer {
	return &TaskConfirmer{queue: queue, steam: steam}
}

func (c *TaskConfirmer) Dispatch(ctx context.Context, claimID, offerID string) {
	payload := asynqtask.TradeConfirmPayload{ClaimID: claimID, OfferID: offerID}

	if c.queue != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			zap.L().Error("[Confirm] failed to encode payload", zap.String("claim_id", claimID), zap.Error(err))
			return
		}
		task := asynq.NewTask(asynqtask.TypeTradeConfirm, raw,
			asynq.Queue(asynqtask.QueueDefault),
			asynq.MaxRetry(0),
			asynq.Timeout(confirmTimeout),
		)
		if _, err := c.queue.EnqueueContext(ctx, task); err != nil {
			zap.L().Error("[Confirm] failed to enqueue",
				zap.String("claim_id", claimID),
				zap.String("offer_id", offerID),
				zap.Error(err),
			)
		}
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), confirmTimeout)
		defer cancel()
		c.confirm(ctx, payload)
	}()
}

func (c *TaskConfirmer) confirm(ctx context.Context, p asynqtask.TradeConfirmPayload) {
	log := zap.L().With(zap.String("claim_id", p.ClaimID), zap.String("offer_id", p.OfferID))

	ok, err := c.steam.ConfirmOffer(ctx, p.OfferID)
	if err != nil {
		log.Warn("[Confirm] confirmation failed", zap.Error(err))
		return
	}
	if !ok {
		log.Info("[Confirm] no matching confirmation")
		return
	}
	log.Info("[Confirm] offer confirmed")
}

// HandleConfirm is the asynq handler for trade:confirm. It never asks for a retry.
func (c *TaskConfirmer) HandleConfirm(ctx context.Context, t *asynq.Task) error {
	var p asynqtask.TradeConfirmPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		zap.L().Error("[Confirm] malformed payload", zap.Error(err))
		return nil
	}
	c.confirm(ctx, p)
	return nil
}
