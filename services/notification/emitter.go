package notification

import (
	"context"
	"encoding/json"
	"time"

	asynqtask "giveaway-fulfillment/pkg/asynq"
	"giveaway-fulfillment/pkg/clock"
	"giveaway-fulfillment/pkg/gen"
	"giveaway-fulfillment/services/claim"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const inlineTimeout = 10 * time.Second

// Emitter delivers user notifications without ever blocking or failing the caller.
type Emitter struct {
	queue asynqtask.Enqueuer
	store claim.Store
	ids   *gen.SnowflakeNode
	clock clock.Clock
}

func NewEmitter(queue asynqtask.Enqueuer, store claim.Store, ids *gen.SnowflakeNode, clk clock.Clock) *Emitter {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Emitter{queue: queue, store: store, ids: ids, clock: clk}
}

// Notify dispatches a notification:create task, or writes the row from a detached
// goroutine when no queue is configured. Errors are logged only.
func (e *Emitter) Notify(ctx context.Context, steamID, typ, title, message string, meta map[string]any) {
	payload := asynqtask.NotificationPayload{
		ID:        e.ids.GenerateID().String(),
		SteamID:   steamID,
		Type:      typ,
		Title:     title,
		Message:   message,
		Meta:      meta,
		CreatedAt: e.clock.Now(),
	}
	log := zap.L().With(zap.String("type", typ), zap.String("steam_id", steamID), zap.String("notification_id", payload.ID))

	if e.queue != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			log.Error("[Notification] failed to encode payload", zap.Error(err))
			return
		}
		task := asynq.NewTask(asynqtask.TypeNotificationCreate, raw,
			asynq.Queue(asynqtask.QueueLow),
			asynq.MaxRetry(3),
			asynq.Timeout(inlineTimeout),
		)
		if _, err := e.queue.EnqueueContext(ctx, task); err != nil {
			log.Error("[Notification] failed to enqueue", zap.Error(err))
		}
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), inlineTimeout)
		defer cancel()
		if err := e.write(ctx, payload); err != nil {
			log.Error("[Notification] failed to write", zap.Error(err))
		}
	}()
}

func (e *Emitter) write(ctx context.Context, p asynqtask.NotificationPayload) error {
	n, ok := Build(p.ID, p.SteamID, p.Type, p.Title, p.Message, p.Meta, p.CreatedAt)
	if !ok {
		zap.L().Debug("[Notification] dropped, invalid recipient", zap.String("steam_id", p.SteamID))
		return nil
	}
	return e.store.InsertNotification(ctx, n)
}

// HandleCreate is the asynq handler for notification:create.
func (e *Emitter) HandleCreate(ctx context.Context, t *asynq.Task) error {
	var p asynqtask.NotificationPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		zap.L().Error("[Notification] malformed payload", zap.Error(err))
		return nil
	}
	return e.write(ctx, p)
}

func (e *Emitter) TradeSent(ctx context.Context, c *claim.Claim, offerID string) {
	e.Notify(ctx, c.SteamID, TypeTradeSent, "Trade Offer Sent",
		"Your giveaway trade offer was sent. Please check your Steam trade offers.",
		map[string]any{"giveawayId": c.GiveawayID, "steamTradeOfferId": offerID})
}

func (e *Emitter) TradeAccepted(ctx context.Context, c *claim.Claim, offerID string) {
	e.Notify(ctx, c.SteamID, TypeTradeAccepted, "Prize Delivered",
		"Your giveaway trade offer was accepted. Enjoy your prize!",
		map[string]any{"giveawayId": c.GiveawayID, "steamTradeOfferId": offerID})
}

func (e *Emitter) TradeFailed(ctx context.Context, c *claim.Claim, reason string) {
	e.Notify(ctx, c.SteamID, TypeTradeFailed, "Trade Failed",
		"We could not send your giveaway trade. Please try claiming again in the Giveaways page.",
		map[string]any{"giveawayId": c.GiveawayID, "reason": reason})
}
