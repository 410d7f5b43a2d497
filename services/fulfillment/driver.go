package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"giveaway-fulfillment/pkg/clock"
	"giveaway-fulfillment/pkg/errutil"
	"giveaway-fulfillment/pkg/gen"
	"giveaway-fulfillment/pkg/steam"
	"giveaway-fulfillment/services/claim"
	"giveaway-fulfillment/services/inventory"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// SteamClient is the part of *steam.Client the loops use.
type SteamClient interface {
	SendOffer(ctx context.Context, offer steam.Offer) (steam.SendResult, error)
	GetOffer(ctx context.Context, offerID string) (steam.OfferState, error)
	CanConfirm() bool
}

// Inventory serves the custodial inventory snapshot for one collection.
type Inventory interface {
	Get(ctx context.Context, key inventory.Key) ([]steam.Item, error)
}

// Deps groups what the driver and the poller are built from.
type Deps struct {
	Store     claim.Store
	Steam     SteamClient
	Inventory Inventory
	Notifier  Notifier
	Confirmer Confirmer
	IDs       *gen.SnowflakeNode
	Worker    gen.WorkerID
	Clock     clock.Clock
	Settings  func() Settings
}

// Driver leases PENDING claims and walks each one to SENT or FAILED.
type Driver struct {
	store      claim.Store
	steam      SteamClient
	inventory  Inventory
	notifier   Notifier
	confirmer  Confirmer
	reconciler *Reconciler
	ids        *gen.SnowflakeNode
	worker     gen.WorkerID
	clock      clock.Clock
	settings   func() Settings
}

func NewDriver(d Deps, reconciler *Reconciler) *Driver {
	if d.Clock == nil {
		d.Clock = clock.NewSystem()
	}
	return &Driver{
		store:      d.Store,
		steam:      d.Steam,
		inventory:  d.Inventory,
		notifier:   d.Notifier,
		confirmer:  d.Confirmer,
		reconciler: reconciler,
		ids:        d.IDs,
		worker:     d.Worker,
		clock:      d.Clock,
		settings:   d.Settings,
	}
}

// ProcessPending runs one pending tick: it leases and processes up to
// ClaimBatchSize claims and returns how many it handled. A failing claim never
// stops the batch; only store errors on the lease itself end the tick early.
func (d *Driver) ProcessPending(ctx context.Context) (int, error) {
	s := d.settings()
	if s.Verbose {
		d.logCounts(ctx, s)
	}

	processed := 0
	for processed < s.ClaimBatchSize {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		owner := d.ids.LeaseOwner(d.worker)
		c, err := d.store.AcquireNextClaim(ctx, owner, d.clock.Now(), s.LockTimeout)
		if errors.Is(err, claim.ErrNoClaimAvailable) {
			if processed == 0 && s.Verbose {
				d.logSample(ctx)
			}
			break
		}
		if err != nil {
			return processed, fmt.Errorf("acquire claim: %w", err)
		}

		_ = d.Process(ctx, c)
		processed++
	}
	return processed, nil
}

// Process runs the send state machine for one leased claim. Any error it returns
// has already been logged.
func (d *Driver) Process(ctx context.Context, c *claim.Claim) (err error) {
	ctx, span := tracer.Start(ctx, "fulfillment.process_claim", trace.WithAttributes(
		attribute.String("claim.id", c.ID),
		attribute.String("giveaway.id", c.GiveawayID),
	))
	defer span.End()

	// Once the claim is SENT only the poller may end it.
	sent := false
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("[Driver] panic while processing claim",
				zap.String("claim_id", c.ID),
				zap.Bool("sent", sent),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			claimsProcessed.WithLabelValues("panic").Inc()
			if sent {
				err = fmt.Errorf("panic after claim was sent: %v", panicReason(r))
			} else {
				err = d.reconciler.RollbackLeased(ctx, c, panicReason(r))
			}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	s := d.settings()
	log := zap.L().With(
		zap.String("claim_id", c.ID),
		zap.String("giveaway_id", c.GiveawayID),
		zap.String("steam_id", c.SteamID),
	)

	partner, err := validateClaim(c)
	if err != nil {
		log.Info("[Driver] claim rejected", zap.String("reason", errutil.Reason(err)))
		return d.fail(ctx, c, errutil.Reason(err))
	}

	reason, err := d.checkWinner(ctx, c)
	if err != nil {
		log.Error("[Driver] failed to load winner record", zap.Error(err))
		d.release(ctx, c)
		return err
	}
	if reason != "" {
		log.Info("[Driver] claim rejected", zap.String("reason", reason))
		return d.fail(ctx, c, reason)
	}

	if s.DryRun {
		return d.markSent(ctx, c, claim.DryRunOfferID, "", log, &sent)
	}

	item, reason, err := d.resolveItem(ctx, c, s)
	if err != nil {
		log.Warn("[Driver] inventory unavailable", zap.Error(err))
		return d.fail(ctx, c, errutil.Reason(err))
	}
	if reason != "" {
		log.Info("[Driver] item not found", zap.String("item_id", c.ItemID), zap.String("asset_id", c.AssetID))
		return d.fail(ctx, c, reason)
	}

	if err := d.store.RenewLease(ctx, c.ID, c.LockOwner, d.clock.Now()); err != nil {
		if errors.Is(err, claim.ErrLeaseLost) {
			claimsProcessed.WithLabelValues("lease_lost").Inc()
			log.Warn("[Driver] lease lost before sending offer", zap.String("lock_owner", c.LockOwner))
			return err
		}
		log.Error("[Driver] failed to renew lease", zap.Error(err))
		d.release(ctx, c)
		return err
	}

	res, err := d.steam.SendOffer(ctx, steam.Offer{
		Partner: partner,
		Message: offerMessage(s.OfferMessagePrefix, c),
		Items:   []steam.Item{item},
	})
	if err != nil {
		reason := errutil.Reason(err)
		if isTradeHold(reason) {
			reason = ReasonTradeHold
		}
		log.Warn("[Driver] send offer failed", zap.String("reason", reason), zap.Error(err))
		return d.fail(ctx, c, reason)
	}
	if strings.TrimSpace(res.OfferID) == "" {
		log.Warn("[Driver] send returned no offer id")
		return d.fail(ctx, c, ReasonOfferIDMissing)
	}

	return d.markSent(ctx, c, res.OfferID, res.Status, log, &sent)
}

func (d *Driver) markSent(ctx context.Context, c *claim.Claim, offerID, status string, log *zap.Logger, sent *bool) error {
	if err := d.store.MarkSent(ctx, c.ID, c.LockOwner, offerID, d.clock.Now()); err != nil {
		if errors.Is(err, claim.ErrLeaseLost) {
			log.Error("[Driver] lease lost before marking claim sent", zap.String("offer_id", offerID), zap.Error(err))
		} else {
			log.Error("[Driver] failed to mark claim sent", zap.String("offer_id", offerID), zap.Error(err))
		}
		return err
	}
	*sent = true

	if offerID == claim.DryRunOfferID {
		claimsProcessed.WithLabelValues("dry_run").Inc()
		log.Info("[Driver] dry run, claim marked sent without an offer")
		return nil
	}

	claimsProcessed.WithLabelValues("sent").Inc()
	log.Info("[Driver] trade offer sent", zap.String("offer_id", offerID), zap.String("status", status))

	if d.notifier != nil {
		d.notifier.TradeSent(ctx, c, offerID)
	}
	if status == steam.SendStatusPending && d.confirmer != nil && d.steam.CanConfirm() {
		d.confirmer.Dispatch(ctx, c.ID, offerID)
	}
	return nil
}

// checkWinner returns a failure reason when the winner entry does not allow a send.
func (d *Driver) checkWinner(ctx context.Context, c *claim.Claim) (string, error) {
	w, err := d.store.FindWinner(ctx, c.GiveawayID, c.SteamID)
	if errors.Is(err, claim.ErrNotFound) {
		return ReasonWinnerNotFound, nil
	}
	if err != nil {
		return "", err
	}
	if w.ClaimStatus != claim.WinnerPendingTrade {
		return reasonUnexpectedWinner + string(w.ClaimStatus), nil
	}
	if w.ClaimDeadlineAt != nil && d.clock.Now().After(*w.ClaimDeadlineAt) {
		return ReasonWindowExpired, nil
	}
	return "", nil
}

// resolveItem finds the prize in the cached inventory of the claim's collection.
// A pinned asset id must match exactly; otherwise the item id is matched by name.
func (d *Driver) resolveItem(ctx context.Context, c *claim.Claim, s Settings) (steam.Item, string, error) {
	key := inventory.Key{AppID: s.AppID, ContextID: s.ContextID}
	if c.AssetAppID > 0 {
		key.AppID = c.AssetAppID
	}
	if ctxID := strings.TrimSpace(c.AssetContextID); ctxID != "" {
		key.ContextID = ctxID
	}

	items, err := d.inventory.Get(ctx, key)
	if err != nil {
		return steam.Item{}, "", err
	}

	var (
		item steam.Item
		ok   bool
	)
	if strings.TrimSpace(c.AssetID) != "" {
		item, ok = inventory.FindByAssetID(items, c.AssetID)
	} else {
		item, ok = inventory.FindByName(items, c.ItemID)
	}
	if !ok {
		return steam.Item{}, ReasonItemUnavailable, nil
	}
	return item, "", nil
}

// panicReason keeps the first line of a recovered value; singleflight re-panics with
// the stack appended.
func panicReason(r any) string {
	msg := fmt.Sprint(r)
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return "Internal error: " + msg
}

func (d *Driver) fail(ctx context.Context, c *claim.Claim, reason string) error {
	err := d.reconciler.RollbackLeased(ctx, c, reason)
	if errors.Is(err, claim.ErrLeaseLost) {
		claimsProcessed.WithLabelValues("lease_lost").Inc()
		return err
	}
	claimsProcessed.WithLabelValues("failed").Inc()
	return err
}

func (d *Driver) release(ctx context.Context, c *claim.Claim) {
	if err := d.store.ReleaseLease(ctx, c.ID, c.LockOwner); err != nil {
		zap.L().Warn("[Driver] failed to release lease", zap.String("claim_id", c.ID), zap.Error(err))
	}
}

func (d *Driver) logCounts(ctx context.Context, s Settings) {
	counts, err := d.store.CountPending(ctx, d.clock.Now(), s.LockTimeout)
	if err != nil {
		zap.L().Debug("[Driver] failed to count pending claims", zap.Error(err))
		return
	}
	zap.L().Debug("[Driver] pending tick",
		zap.Int64("pending", counts.Pending),
		zap.Int64("eligible", counts.Eligible),
		zap.Int64("sent", counts.Sent),
		zap.Bool("dry_run", s.DryRun),
	)
}

func (d *Driver) logSample(ctx context.Context) {
	c, err := d.store.SamplePending(ctx)
	if err != nil || c == nil {
		return
	}
	fields := []zap.Field{
		zap.String("claim_id", c.ID),
		zap.String("lock_owner", c.LockOwner),
		zap.Time("updated_at", c.UpdatedAt),
	}
	if c.LockedAt != nil {
		fields = append(fields, zap.Time("locked_at", *c.LockedAt))
	}
	zap.L().Debug("[Driver] no claim acquired, sample pending claim", fields...)
}
