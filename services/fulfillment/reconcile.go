package fulfillment

import (
	"context"
	"errors"

	"giveaway-fulfillment/pkg/clock"
	"giveaway-fulfillment/services/claim"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Notifier is the notification side of a claim transition.
type Notifier interface {
	TradeSent(ctx context.Context, c *claim.Claim, offerID string)
	TradeAccepted(ctx context.Context, c *claim.Claim, offerID string)
	TradeFailed(ctx context.Context, c *claim.Claim, reason string)
}

// Reconciler applies the two terminal transitions shared by the driver and the poller.
type Reconciler struct {
	store    claim.Store
	notifier Notifier
	clock    clock.Clock
}

func NewReconciler(store claim.Store, notifier Notifier, clk clock.Clock) *Reconciler {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Reconciler{store: store, notifier: notifier, clock: clk}
}

// Commit marks a SENT claim delivered along with its stock unit and winner entry.
// A claim that is no longer SENT is left alone and nobody is notified.
func (r *Reconciler) Commit(ctx context.Context, c *claim.Claim, offerID string) error {
	applied, err := r.store.Succeed(ctx, c.ID, offerID, r.clock.Now())
	if err != nil {
		zap.L().Error("[Reconcile] commit failed",
			zap.String("claim_id", c.ID),
			zap.String("offer_id", offerID),
			zap.Error(err),
		)
		return err
	}
	if !applied {
		zap.L().Debug("[Reconcile] commit skipped, claim not SENT", zap.String("claim_id", c.ID))
		return nil
	}

	transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(claim.TradeStatusSuccess))))
	zap.L().Info("[Reconcile] claim delivered",
		zap.String("claim_id", c.ID),
		zap.String("giveaway_id", c.GiveawayID),
		zap.String("steam_id", c.SteamID),
		zap.String("offer_id", offerID),
	)
	if r.notifier != nil {
		r.notifier.TradeAccepted(ctx, c, offerID)
	}
	return nil
}

// Rollback fails a PENDING or SENT claim and returns its stock unit and winner entry
// to the pool. offerState is the raw terminal offer state, if one was observed.
// Rolling back an already terminal claim is a no-op. Only the poller rolls back
// SENT claims; the driver uses RollbackLeased.
func (r *Reconciler) Rollback(ctx context.Context, c *claim.Claim, reason string, offerState *int) error {
	return r.rollback(ctx, c, claim.Failure{Reason: reason, OfferState: offerState})
}

// RollbackLeased fails a PENDING claim only while c.LockOwner still holds its lease.
// It returns claim.ErrLeaseLost and changes nothing when the lease has passed to
// another worker or the claim has already been sent.
func (r *Reconciler) RollbackLeased(ctx context.Context, c *claim.Claim, reason string) error {
	if c.LockOwner == "" {
		return claim.ErrLeaseLost
	}
	return r.rollback(ctx, c, claim.Failure{Reason: reason, Owner: c.LockOwner})
}

func (r *Reconciler) rollback(ctx context.Context, c *claim.Claim, failure claim.Failure) error {
	reason := failure.Reason
	applied, err := r.store.Fail(ctx, c.ID, failure, r.clock.Now())
	if errors.Is(err, claim.ErrLeaseLost) {
		zap.L().Warn("[Reconcile] rollback skipped, lease no longer held",
			zap.String("claim_id", c.ID),
			zap.String("lock_owner", failure.Owner),
			zap.String("reason", reason),
		)
		return err
	}
	if err != nil {
		zap.L().Error("[Reconcile] rollback failed",
			zap.String("claim_id", c.ID),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return err
	}
	if !applied {
		zap.L().Debug("[Reconcile] rollback skipped, claim already terminal", zap.String("claim_id", c.ID))
		return nil
	}

	transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(claim.TradeStatusFailed))))
	zap.L().Info("[Reconcile] claim failed",
		zap.String("claim_id", c.ID),
		zap.String("giveaway_id", c.GiveawayID),
		zap.String("steam_id", c.SteamID),
		zap.String("reason", reason),
	)
	if r.notifier != nil {
		r.notifier.TradeFailed(ctx, c, reason)
	}
	return nil
}
