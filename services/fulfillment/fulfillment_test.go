package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"giveaway-fulfillment/pkg/clock"
	"giveaway-fulfillment/pkg/errutil"
	"giveaway-fulfillment/pkg/gen"
	"giveaway-fulfillment/pkg/steam"
	"giveaway-fulfillment/services/claim"
	"giveaway-fulfillment/services/inventory"
	"giveaway-fulfillment/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const (
	giveawayID = "65f0c0ffee0ddba11ca7e123"
	winnerID   = "76561198000000042"
	botID      = "76561198000000001"
	itemName   = "AK-47 | Redline (Field-Tested)"
	tradeURL   = "https://steamcommunity.com/tradeoffer/new/?partner=39755043&token=AbC_12-x"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

type fakeSteam struct {
	mu         sync.Mutex
	sendFn     func(offer steam.Offer) (steam.SendResult, error)
	states     map[string]steam.OfferState
	getErr     error
	canConfirm bool
	sent       []steam.Offer
}

func (f *fakeSteam) SendOffer(ctx context.Context, offer steam.Offer) (steam.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, offer)
	if f.sendFn != nil {
		return f.sendFn(offer)
	}
	return steam.SendResult{OfferID: "9001", Status: steam.SendStatusSent}, nil
}

func (f *fakeSteam) GetOffer(ctx context.Context, offerID string) (steam.OfferState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return 0, f.getErr
	}
	return f.states[offerID], nil
}

func (f *fakeSteam) CanConfirm() bool { return f.canConfirm }

func (f *fakeSteam) sends() []steam.Offer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]steam.Offer(nil), f.sent...)
}

type fakeFetcher struct {
	mu    sync.Mutex
	items []steam.Item
	err   error
	calls int
	hook  func()
}

func (f *fakeFetcher) GetInventory(ctx context.Context, steamID string, appID int, contextID string, tradableOnly bool) ([]steam.Item, error) {
	f.mu.Lock()
	f.calls++
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return f.items, f.err
}

type recorder struct {
	mu     sync.Mutex
	events []string
	hook   func(e string)
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(e)
	}
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) TradeSent(ctx context.Context, c *claim.Claim, offerID string) {
	r.add("sent:" + offerID)
}

func (r *recorder) TradeAccepted(ctx context.Context, c *claim.Claim, offerID string) {
	r.add("accepted:" + offerID)
}

func (r *recorder) TradeFailed(ctx context.Context, c *claim.Claim, reason string) {
	r.add("failed:" + reason)
}

func (r *recorder) Dispatch(ctx context.Context, claimID, offerID string) {
	r.add("confirm:" + claimID + ":" + offerID)
}

type harness struct {
	db        *gorm.DB
	repo      *claim.Repository
	steam     *fakeSteam
	fetcher   *fakeFetcher
	notes     *recorder
	confirms  *recorder
	clock     *clock.Manual
	settings  Settings
	live      func() Settings
	driver    *Driver
	poller    *Poller
	reconcile *Reconciler
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := testutil.NewTestDB(t, claim.Models()...)
	ids, err := gen.NewSnowflakeNode(1)
	require.NoError(t, err)

	h := &harness{
		db:       db,
		repo:     claim.NewRepository(db),
		steam:    &fakeSteam{states: map[string]steam.OfferState{}},
		fetcher:  &fakeFetcher{items: []steam.Item{{AppID: 730, ContextID: "2", AssetID: "111", ClassID: "310776", InstanceID: "0", Amount: "1", Name: "AK-47 | Redline", MarketHashName: itemName, Tradable: true}}},
		notes:    &recorder{},
		confirms: &recorder{},
		clock:    clock.NewManual(t0),
		settings: Settings{
			PendingInterval:    10 * time.Millisecond,
			PollInterval:       10 * time.Millisecond,
			ClaimBatchSize:     5,
			SentBatchSize:      25,
			LockTimeout:        5 * time.Minute,
			OfferMessagePrefix: "SkinVaults Giveaway Prize",
			AppID:              730,
			ContextID:          "2",
		},
	}

	var mu sync.Mutex
	settings := func() Settings {
		mu.Lock()
		defer mu.Unlock()
		return h.settings
	}

	h.live = settings

	deps := Deps{
		Store:     h.repo,
		Steam:     h.steam,
		Inventory: inventory.NewCache(h.fetcher, botID, time.Minute, h.clock),
		Notifier:  h.notes,
		Confirmer: h.confirms,
		IDs:       ids,
		Worker:    gen.WorkerID("worker-a"),
		Clock:     h.clock,
		Settings:  settings,
	}
	h.reconcile = NewReconciler(h.repo, h.notes, h.clock)
	h.driver = NewDriver(deps, h.reconcile)
	h.poller = NewPoller(deps, h.reconcile)
	return h
}

// seed stores a PENDING claim with a RESERVED stock unit and a pending_trade winner.
func (h *harness) seed(t *testing.T, id string, mutate func(c *claim.Claim, w *claim.Winner)) *claim.Claim {
	t.Helper()
	stockID := "stock-" + id

	require.NoError(t, h.db.Create(&claim.PrizeStockUnit{
		ID:                stockID,
		AppID:             730,
		ContextID:         "2",
		AssetID:           "111",
		ItemID:            itemName,
		Status:            claim.StockReserved,
		ReservedBySteamID: winnerID,
		ReservedAt:        ptr(t0.Add(-time.Hour)),
		UpdatedAt:         t0.Add(-time.Hour),
	}).Error)

	c := &claim.Claim{
		ID:           id,
		GiveawayID:   giveawayID,
		SteamID:      winnerID,
		TradeURL:     tradeURL,
		ItemID:       itemName,
		Prize:        "AK-47 | Redline",
		PrizeStockID: stockID,
		TradeStatus:  claim.TradeStatusPending,
		CreatedAt:    t0.Add(-time.Hour),
		UpdatedAt:    t0.Add(-time.Hour),
	}
	w := &claim.Winner{
		GiveawayID:      giveawayID,
		SteamID:         winnerID,
		ClaimStatus:     claim.WinnerPendingTrade,
		ClaimDeadlineAt: ptr(t0.Add(24 * time.Hour)),
		UpdatedAt:       t0.Add(-time.Hour),
	}
	if mutate != nil {
		mutate(c, w)
	}
	if w.GiveawayID != "" {
		require.NoError(t, h.db.Create(w).Error)
	}
	require.NoError(t, h.db.Create(c).Error)
	return c
}

func (h *harness) claim(t *testing.T, id string) claim.Claim {
	t.Helper()
	var c claim.Claim
	require.NoError(t, h.db.First(&c, "id = ?", id).Error)
	return c
}

func (h *harness) stock(t *testing.T, id string) claim.PrizeStockUnit {
	t.Helper()
	var s claim.PrizeStockUnit
	require.NoError(t, h.db.First(&s, "id = ?", id).Error)
	return s
}

func (h *harness) winner(t *testing.T) claim.Winner {
	t.Helper()
	var w claim.Winner
	require.NoError(t, h.db.First(&w, "giveaway_id = ? AND steam_id = ?", giveawayID, winnerID).Error)
	return w
}

func (h *harness) requireReleased(t *testing.T, id string) {
	t.Helper()
	s := h.stock(t, "stock-"+id)
	require.Equal(t, claim.StockAvailable, s.Status)
	require.Empty(t, s.ReservedBySteamID)
	require.Nil(t, s.ReservedAt)
	require.Empty(t, s.SteamTradeOfferID)

	c := h.claim(t, id)
	require.Empty(t, c.PrizeStockID)
	require.Empty(t, c.LockOwner)
	require.Nil(t, c.LockedAt)

	require.Equal(t, claim.WinnerPending, h.winner(t).ClaimStatus)
}

func TestInvalidTradeURLFailsAndReleasesStock(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "c1", func(c *claim.Claim, _ *claim.Winner) {
		c.TradeURL = "http://evil.example/x"
	})

	n, err := h.driver.ProcessPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	c := h.claim(t, "c1")
	require.Equal(t, claim.TradeStatusFailed, c.TradeStatus)
	require.Contains(t, c.LastError, "trade URL")
	h.requireReleased(t, "c1")

	require.Empty(t, h.steam.sends())
	require.Equal(t, []string{"failed:Invalid trade URL"}, h.notes.list())
}

func TestDryRunSucceedsAfterOnePendingAndOnePollTick(t *testing.T) {
	h := newHarness(t)
	h.settings.DryRun = true
	h.seed(t, "c1", nil)
	ctx := context.Background()

	n, err := h.driver.ProcessPending(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	c := h.claim(t, "c1")
	require.Equal(t, claim.TradeStatusSent, c.TradeStatus)
	require.Equal(t, claim.DryRunOfferID, c.SteamTradeOfferID)
	require.Equal(t, claim.StockSent, h.stock(t, "stock-c1").Status)
	require.Empty(t, h.steam.sends())
	require.Zero(t, h.fetcher.calls)

	n, err = h.poller.PollSent(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	c = h.claim(t, "c1")
	require.Equal(t, claim.TradeStatusSuccess, c.TradeStatus)
	require.NotNil(t, c.CompletedAt)
	require.Equal(t, claim.StockDelivered, h.stock(t, "stock-c1").Status)

	w := h.winner(t)
	require.Equal(t, claim.WinnerClaimed, w.ClaimStatus)
	require.NotNil(t, w.ClaimedAt)

	require.Equal(t, []string{"accepted:dry-run"}, h.notes.list())
}

func TestItemMissingFromInventoryFails(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "c1", func(c *claim.Claim, _ *claim.Winner) {
		c.ItemID = "AWP | Dragon Lore (Factory New)"
	})

	_, err := h.driver.ProcessPending(context.Background())
	require.NoError(t, err)

	c := h.claim(t, "c1")
	require.Equal(t, claim.TradeStatusFailed, c.TradeStatus)
	require.Contains(t, c.LastError, "not available")
	h.requireReleased(t, "c1")
	require.Empty(t, h.steam.sends())
}

func TestPinnedAssetMustMatchExactly(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "c1", func(c *claim.Claim, _ *claim.Winner) {
		c.AssetID = "222"
	})

	_, err := h.driver.ProcessPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, ReasonItemUnavailable, h.claim(t, "c1").LastError)
}

func TestSendThenDeclinedRollsBack(t *testing.T) {
	h := newHarness(t)
	h.steam.canConfirm = true
	h.steam.sendFn = func(steam.Offer) (steam.SendResult, error) {
		return steam.SendResult{OfferID: "9001", Status: steam.SendStatusPending}, nil
	}
	h.seed(t, "c1", nil)
	ctx := context.Background()

	_, err := h.driver.ProcessPending(ctx)
	require.NoError(t, err)

	c := h.claim(t, "c1")
	require.Equal(t, claim.TradeStatusSent, c.TradeStatus)
	require.Equal(t, "9001", c.SteamTradeOfferID)
	require.NotNil(t, c.SentAt)
	require.Empty(t, c.LockOwner)

	s := h.stock(t, "stock-c1")
	require.Equal(t, claim.StockSent, s.Status)
	require.Equal(t, "9001", s.SteamTradeOfferID)

	sends := h.steam.sends()
	require.Len(t, sends, 1)
	require.Equal(t, "111", sends[0].Items[0].AssetID)
	require.Equal(t, "SkinVaults Giveaway Prize: AK-47 | Redline", sends[0].Message)
	require.Equal(t, "76561198000020771", sends[0].Partner.SteamID64)

	require.Equal(t, []string{"sent:9001"}, h.notes.list())
	require.Equal(t, []string{"confirm:c1:9001"}, h.confirms.list())

	h.steam.states["9001"] = steam.OfferStateActive
	n, err := h.poller.PollSent(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	c = h.claim(t, "c1")
	require.Equal(t, claim.TradeStatusSent, c.TradeStatus)
	require.NotNil(t, c.LastSeenOfferState)
	require.Equal(t, int(steam.OfferStateActive), *c.LastSeenOfferState)

	h.clock.Advance(time.Minute)
	h.steam.states["9001"] = steam.OfferStateDeclined
	n, err = h.poller.PollSent(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	c = h.claim(t, "c1")
	require.Equal(t, claim.TradeStatusFailed, c.TradeStatus)
	require.Equal(t, "Trade offer failed (state 7)", c.LastError)
	require.NotNil(t, c.SteamTradeOfferState)
	require.Equal(t, 7, *c.SteamTradeOfferState)
	h.requireReleased(t, "c1")

	require.Equal(t, []string{"sent:9001", "failed:Trade offer failed (state 7)"}, h.notes.list())
}

func TestAcceptedOfferCommits(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "c1", nil)
	ctx := context.Background()

	_, err := h.driver.ProcessPending(ctx)
	require.NoError(t, err)
	require.Empty(t, h.confirms.list())

	h.steam.states["9001"] = steam.OfferStateAccepted
	n, err := h.poller.PollSent(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.Equal(t, claim.TradeStatusSuccess, h.claim(t, "c1").TradeStatus)
	require.Equal(t, claim.StockDelivered, h.stock(t, "stock-c1").Status)
	require.Equal(t, claim.WinnerClaimed, h.winner(t).ClaimStatus)

	n, err = h.poller.PollSent(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, []string{"sent:9001", "accepted:9001"}, h.notes.list())
}

func TestSendErrors(t *testing.T) {
	tests := []struct {
		name   string
		result steam.SendResult
		err    error
		reason string
	}{
		{"trade hold", steam.SendResult{}, errutil.BadGateway("Trade offers are not enabled for this account", nil), ReasonTradeHold},
		{"steam guard", steam.SendResult{}, errors.New("Steam Guard is required"), ReasonTradeHold},
		{"raw error", steam.SendResult{}, errutil.BadGateway("There was an error sending your trade offer.", nil), "There was an error sending your trade offer."},
		{"missing offer id", steam.SendResult{Status: steam.SendStatusSent}, nil, ReasonOfferIDMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.steam.sendFn = func(steam.Offer) (steam.SendResult, error) { return tt.result, tt.err }
			h.seed(t, "c1", nil)

			_, err := h.driver.ProcessPending(context.Background())
			require.NoError(t, err)

			c := h.claim(t, "c1")
			require.Equal(t, claim.TradeStatusFailed, c.TradeStatus)
			require.Equal(t, tt.reason, c.LastError)
			h.requireReleased(t, "c1")
		})
	}
}

func TestWinnerChecks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *claim.Claim, w *claim.Winner)
		reason string
	}{
		{"missing", func(_ *claim.Claim, w *claim.Winner) { w.GiveawayID = "" }, ReasonWinnerNotFound},
		{"wrong status", func(_ *claim.Claim, w *claim.Winner) { w.ClaimStatus = claim.WinnerClaimed }, "Unexpected winner status: claimed"},
		{"expired", func(_ *claim.Claim, w *claim.Winner) { w.ClaimDeadlineAt = ptr(t0.Add(-time.Second)) }, ReasonWindowExpired},
		{"bad steam id", func(c *claim.Claim, _ *claim.Winner) { c.SteamID = "123" }, ReasonInvalidPayload},
		{"bad giveaway id", func(c *claim.Claim, _ *claim.Winner) { c.GiveawayID = "not-hex" }, ReasonInvalidPayload},
		{"no item", func(c *claim.Claim, _ *claim.Winner) { c.ItemID = "" }, ReasonMissingItem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.seed(t, "c1", tt.mutate)

			_, err := h.driver.ProcessPending(context.Background())
			require.NoError(t, err)

			c := h.claim(t, "c1")
			require.Equal(t, claim.TradeStatusFailed, c.TradeStatus)
			require.Equal(t, tt.reason, c.LastError)
			require.Equal(t, claim.StockAvailable, h.stock(t, "stock-c1").Status)
			require.Empty(t, h.steam.sends())
		})
	}
}

func TestInventoryErrorFails(t *testing.T) {
	h := newHarness(t)
	h.fetcher.err = errutil.BadGateway("inventory is private", nil)
	h.seed(t, "c1", nil)

	_, err := h.driver.ProcessPending(context.Background())
	require.NoError(t, err)

	c := h.claim(t, "c1")
	require.Equal(t, claim.TradeStatusFailed, c.TradeStatus)
	require.Equal(t, "inventory is private", c.LastError)
	h.requireReleased(t, "c1")
}

func TestPanicRollsBackClaim(t *testing.T) {
	h := newHarness(t)
	h.fetcher.hook = func() { panic("boom") }
	h.seed(t, "c1", nil)

	n, err := h.driver.ProcessPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	c := h.claim(t, "c1")
	require.Equal(t, claim.TradeStatusFailed, c.TradeStatus)
	require.Equal(t, "Internal error: boom", c.LastError)
	h.requireReleased(t, "c1")
}

func TestPanicAfterSendKeepsClaimSent(t *testing.T) {
	h := newHarness(t)
	h.notes.hook = func(e string) {
		if strings.HasPrefix(e, "sent:") {
			panic("notifier exploded")
		}
	}
	h.seed(t, "c1", nil)

	n, err := h.driver.ProcessPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	c := h.claim(t, "c1")
	require.Equal(t, claim.TradeStatusSent, c.TradeStatus)
	require.Equal(t, "9001", c.SteamTradeOfferID)
	require.Empty(t, c.LastError)
	require.Equal(t, claim.StockSent, h.stock(t, "stock-c1").Status)
	require.Equal(t, claim.WinnerPendingTrade, h.winner(t).ClaimStatus)
	require.Equal(t, []string{"sent:9001"}, h.notes.list())
}

func TestStaleLeaseCannotTouchSentClaim(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "c1", nil)
	ctx := context.Background()

	// Worker A leases c1 and stalls past the lease timeout.
	stale, err := h.repo.AcquireNextClaim(ctx, "worker-z:1", t0, h.settings.LockTimeout)
	require.NoError(t, err)

	// Worker B takes over and sends.
	h.clock.Advance(6 * time.Minute)
	n, err := h.driver.ProcessPending(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, claim.TradeStatusSent, h.claim(t, "c1").TradeStatus)

	// A resumes; its own send would fail, but it must not reach Steam at all.
	h.steam.sendFn = func(steam.Offer) (steam.SendResult, error) {
		return steam.SendResult{}, errors.New("timeout")
	}
	err = h.driver.Process(ctx, stale)
	require.ErrorIs(t, err, claim.ErrLeaseLost)

	// A stale copy that fails validation cannot roll the claim back either.
	invalid := *stale
	invalid.TradeURL = "bad"
	err = h.driver.Process(ctx, &invalid)
	require.ErrorIs(t, err, claim.ErrLeaseLost)

	c := h.claim(t, "c1")
	require.Equal(t, claim.TradeStatusSent, c.TradeStatus)
	require.Equal(t, "9001", c.SteamTradeOfferID)
	require.Empty(t, c.LastError)
	require.Equal(t, claim.StockSent, h.stock(t, "stock-c1").Status)
	require.Equal(t, claim.WinnerPendingTrade, h.winner(t).ClaimStatus)

	require.Len(t, h.steam.sends(), 1)
	require.Equal(t, []string{"sent:9001"}, h.notes.list())
}

func TestStaleLeaseBeforeTakeoverCannotFail(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "c1", nil)
	ctx := context.Background()

	stale, err := h.repo.AcquireNextClaim(ctx, "worker-z:1", t0, h.settings.LockTimeout)
	require.NoError(t, err)
	fresh, err := h.repo.AcquireNextClaim(ctx, "worker-y:1", t0.Add(6*time.Minute), h.settings.LockTimeout)
	require.NoError(t, err)
	require.Equal(t, stale.ID, fresh.ID)

	h.fetcher.err = errutil.BadGateway("inventory is private", nil)
	err = h.driver.Process(ctx, stale)
	require.ErrorIs(t, err, claim.ErrLeaseLost)

	c := h.claim(t, "c1")
	require.Equal(t, claim.TradeStatusPending, c.TradeStatus)
	require.Equal(t, "worker-y:1", c.LockOwner)
	require.Equal(t, claim.StockReserved, h.stock(t, "stock-c1").Status)
	require.Empty(t, h.notes.list())
}

func TestBatchContinuesAfterFailure(t *testing.T) {
	h := newHarness(t)
	h.settings.DryRun = true
	h.seed(t, "c1", func(c *claim.Claim, _ *claim.Winner) {
		c.TradeURL = "bad"
		c.UpdatedAt = t0.Add(-2 * time.Hour)
	})

	other := "76561198000000043"
	require.NoError(t, h.db.Create(&claim.Winner{
		GiveawayID:  giveawayID,
		SteamID:     other,
		ClaimStatus: claim.WinnerPendingTrade,
		UpdatedAt:   t0,
	}).Error)
	require.NoError(t, h.db.Create(&claim.Claim{
		ID:          "c2",
		GiveawayID:  giveawayID,
		SteamID:     other,
		TradeURL:    tradeURL,
		ItemID:      itemName,
		TradeStatus: claim.TradeStatusPending,
		CreatedAt:   t0.Add(-time.Hour),
		UpdatedAt:   t0.Add(-time.Hour),
	}).Error)

	n, err := h.driver.ProcessPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.Equal(t, claim.TradeStatusFailed, h.claim(t, "c1").TradeStatus)
	require.Equal(t, claim.TradeStatusSent, h.claim(t, "c2").TradeStatus)
}

func TestBatchSizeLimitsLeases(t *testing.T) {
	h := newHarness(t)
	h.settings.DryRun = true
	h.settings.ClaimBatchSize = 2
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("c%d", i)
		require.NoError(t, h.db.Create(&claim.Claim{
			ID:          id,
			GiveawayID:  giveawayID,
			SteamID:     winnerID,
			TradeURL:    tradeURL,
			ItemID:      itemName,
			TradeStatus: claim.TradeStatusPending,
			CreatedAt:   t0,
			UpdatedAt:   t0.Add(time.Duration(i) * time.Second),
		}).Error)
	}

	n, err := h.driver.ProcessPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, claim.TradeStatusPending, h.claim(t, "c2").TradeStatus)
}

func TestPollErrorKeepsClaimSent(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "c1", nil)
	ctx := context.Background()

	_, err := h.driver.ProcessPending(ctx)
	require.NoError(t, err)

	h.steam.getErr = errutil.TooManyRequest("steam rate limited", nil)
	n, err := h.poller.PollSent(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	c := h.claim(t, "c1")
	require.Equal(t, claim.TradeStatusSent, c.TradeStatus)
	require.Equal(t, "steam rate limited", c.LastError)
	require.Equal(t, claim.StockSent, h.stock(t, "stock-c1").Status)
}

func TestRollbackIsIdempotent(t *testing.T) {
	h := newHarness(t)
	c := h.seed(t, "c1", nil)
	ctx := context.Background()

	require.NoError(t, h.reconcile.Rollback(ctx, c, "first", nil))
	require.NoError(t, h.reconcile.Rollback(ctx, c, "second", nil))

	require.Equal(t, "first", h.claim(t, "c1").LastError)
	h.requireReleased(t, "c1")
	require.Equal(t, []string{"failed:first"}, h.notes.list())
}

func TestCommitRequiresSent(t *testing.T) {
	h := newHarness(t)
	c := h.seed(t, "c1", nil)

	require.NoError(t, h.reconcile.Commit(context.Background(), c, "9001"))
	require.Equal(t, claim.TradeStatusPending, h.claim(t, "c1").TradeStatus)
	require.Empty(t, h.notes.list())
}

func TestOfferMessage(t *testing.T) {
	c := &claim.Claim{Prize: " Knife ", ItemID: "x"}
	require.Equal(t, "Prize: Knife", offerMessage("Prize", c))

	c = &claim.Claim{ItemID: itemName}
	require.Equal(t, itemName, offerMessage("", c))

	c = &claim.Claim{Prize: strings.Repeat("é", 300)}
	msg := offerMessage("P", c)
	require.Equal(t, 203, len([]rune(msg)))
}

func TestIsTradeHold(t *testing.T) {
	require.True(t, isTradeHold("Steam Guard Mobile Authenticator required"))
	require.True(t, isTradeHold("trading is NOT ENABLED"))
	require.True(t, isTradeHold("You cannot trade with this user"))
	require.False(t, isTradeHold("steam guard"))
	require.False(t, isTradeHold("timeout"))
}
