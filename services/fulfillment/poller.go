package fulfillment

import (
	"context"
	"fmt"

	"giveaway-fulfillment/pkg/clock"
	"giveaway-fulfillment/pkg/errutil"
	"giveaway-fulfillment/pkg/steam"
	"giveaway-fulfillment/services/claim"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Poller resolves SENT claims from the live state of their offers.
type Poller struct {
	store      claim.Store
	steam      SteamClient
	reconciler *Reconciler
	clock      clock.Clock
	settings   func() Settings
}

func NewPoller(d Deps, reconciler *Reconciler) *Poller {
	if d.Clock == nil {
		d.Clock = clock.NewSystem()
	}
	return &Poller{
		store:      d.Store,
		steam:      d.Steam,
		reconciler: reconciler,
		clock:      d.Clock,
		settings:   d.Settings,
	}
}

// PollSent checks up to SentBatchSize SENT claims, oldest first, and returns how
// many reached a terminal state.
func (p *Poller) PollSent(ctx context.Context) (int, error) {
	s := p.settings()
	claims, err := p.store.ListSent(ctx, s.SentBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list sent claims: %w", err)
	}

	resolved := 0
	for i := range claims {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}
		if p.check(ctx, &claims[i]) {
			resolved++
		}
	}
	return resolved, nil
}

func failedReason(state steam.OfferState) string {
	return fmt.Sprintf("Trade offer failed (state %d)", int(state))
}

// check reports whether the claim reached SUCCESS or FAILED.
func (p *Poller) check(ctx context.Context, c *claim.Claim) (resolved bool) {
	ctx, span := tracer.Start(ctx, "fulfillment.poll_offer", trace.WithAttributes(
		attribute.String("claim.id", c.ID),
		attribute.String("offer.id", c.SteamTradeOfferID),
	))
	defer span.End()

	log := zap.L().With(zap.String("claim_id", c.ID), zap.String("offer_id", c.SteamTradeOfferID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("[Poller] panic while polling offer", zap.Any("panic", r), zap.Stack("stack"))
			span.SetStatus(codes.Error, "panic")
			p.recordError(ctx, c, panicReason(r))
			resolved = false
		}
	}()

	if c.SteamTradeOfferID == claim.DryRunOfferID {
		offersPolled.WithLabelValues("dry_run").Inc()
		log.Info("[Poller] dry run offer, committing")
		return p.reconciler.Commit(ctx, c, c.SteamTradeOfferID) == nil
	}

	state, err := p.steam.GetOffer(ctx, c.SteamTradeOfferID)
	if err != nil {
		offersPolled.WithLabelValues("error").Inc()
		span.RecordError(err)
		log.Warn("[Poller] failed to fetch offer", zap.Error(err))
		p.recordError(ctx, c, errutil.Reason(err))
		return false
	}
	span.SetAttributes(attribute.Int("offer.state", int(state)))

	switch state.Outcome() {
	case steam.OutcomeSuccess:
		offersPolled.WithLabelValues("accepted").Inc()
		return p.reconciler.Commit(ctx, c, c.SteamTradeOfferID) == nil
	case steam.OutcomeFailed:
		offersPolled.WithLabelValues("failed").Inc()
		code := int(state)
		log.Info("[Poller] offer failed", zap.Stringer("state", state))
		return p.reconciler.Rollback(ctx, c, failedReason(state), &code) == nil
	default:
		offersPolled.WithLabelValues("pending").Inc()
		if err := p.store.RecordOfferState(ctx, c.ID, int(state), p.clock.Now()); err != nil {
			log.Warn("[Poller] failed to record offer state", zap.Error(err))
		}
		log.Debug("[Poller] offer still open", zap.Stringer("state", state))
		return false
	}
}

func (p *Poller) recordError(ctx context.Context, c *claim.Claim, msg string) {
	if err := p.store.RecordPollError(ctx, c.ID, msg, p.clock.Now()); err != nil {
		zap.L().Warn("[Poller] failed to record poll error", zap.String("claim_id", c.ID), zap.Error(err))
	}
}
