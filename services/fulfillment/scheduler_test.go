package fulfillment

import (
	"context"
	"testing"
	"time"

	"giveaway-fulfillment/services/claim"

	"github.com/stretchr/testify/require"
)

func TestSchedulerDeliversDryRunClaim(t *testing.T) {
	h := newHarness(t)
	h.settings.DryRun = true
	h.seed(t, "c1", nil)

	s := NewScheduler(h.driver, h.poller, h.live)
	s.Start()

	require.Eventually(t, func() bool {
		var c claim.Claim
		if err := h.db.First(&c, "id = ?", "c1").Error; err != nil {
			return false
		}
		return c.TradeStatus == claim.TradeStatusSuccess
	}, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.Equal(t, claim.StockDelivered, h.stock(t, "stock-c1").Status)
}

func TestSchedulerStopWithoutStart(t *testing.T) {
	s := NewScheduler(nil, nil, nil)
	require.NoError(t, s.Stop(context.Background()))
}

func TestRunTickRecoversPanic(t *testing.T) {
	s := NewScheduler(nil, nil, nil)
	require.NotPanics(t, func() {
		s.runTick(context.Background(), "test", func(context.Context) (int, error) {
			panic("tick")
		})
	})
}
