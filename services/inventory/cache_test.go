package inventory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"giveaway-fulfillment/pkg/clock"
	"giveaway-fulfillment/pkg/steam"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeFetcher struct {
	calls atomic.Int32
	fn    func(ctx context.Context, appID int, contextID string) ([]steam.Item, error)
}

func (f *fakeFetcher) GetInventory(ctx context.Context, steamID string, appID int, contextID string, tradableOnly bool) ([]steam.Item, error) {
	f.calls.Add(1)
	return f.fn(ctx, appID, contextID)
}

var csgo = Key{AppID: 730, ContextID: "2"}

func TestCacheServesWithinTTL(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	f := &fakeFetcher{fn: func(context.Context, int, string) ([]steam.Item, error) {
		return []steam.Item{{AssetID: "1"}}, nil
	}}
	c := NewCache(f, "76561198000000001", time.Minute, clk)
	ctx := context.Background()

	items, err := c.Get(ctx, csgo)
	require.NoError(t, err)
	require.Len(t, items, 1)

	clk.Advance(59 * time.Second)
	_, err = c.Get(ctx, csgo)
	require.NoError(t, err)
	require.Equal(t, int32(1), f.calls.Load())

	clk.Advance(time.Second)
	_, err = c.Get(ctx, csgo)
	require.NoError(t, err)
	require.Equal(t, int32(2), f.calls.Load())
}

func TestCacheKeysAreIndependent(t *testing.T) {
	f := &fakeFetcher{fn: func(_ context.Context, appID int, contextID string) ([]steam.Item, error) {
		return []steam.Item{{AppID: appID, ContextID: contextID, AssetID: "x"}}, nil
	}}
	c := NewCache(f, "owner", time.Minute, nil)
	ctx := context.Background()

	a, err := c.Get(ctx, csgo)
	require.NoError(t, err)
	b, err := c.Get(ctx, Key{AppID: 440, ContextID: "2"})
	require.NoError(t, err)

	require.Equal(t, 730, a[0].AppID)
	require.Equal(t, 440, b[0].AppID)
	require.Equal(t, int32(2), f.calls.Load())
}

func TestCacheCollapsesConcurrentMisses(t *testing.T) {
	release := make(chan struct{})
	f := &fakeFetcher{fn: func(context.Context, int, string) ([]steam.Item, error) {
		<-release
		return []steam.Item{{AssetID: "1"}}, nil
	}}
	c := NewCache(f, "owner", time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items, err := c.Get(context.Background(), csgo)
			require.NoError(t, err)
			require.Len(t, items, 1)
		}()
	}

	// Let the callers pile up on the in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), f.calls.Load())
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	fail := true
	f := &fakeFetcher{fn: func(context.Context, int, string) ([]steam.Item, error) {
		if fail {
			return nil, errors.New("steam down")
		}
		return nil, nil
	}}
	c := NewCache(f, "owner", time.Minute, nil)
	ctx := context.Background()

	_, err := c.Get(ctx, csgo)
	require.EqualError(t, err, "steam down")

	fail = false
	items, err := c.Get(ctx, csgo)
	require.NoError(t, err)
	require.NotNil(t, items)
	require.Empty(t, items)

	_, err = c.Get(ctx, csgo)
	require.NoError(t, err)
	require.Equal(t, int32(2), f.calls.Load())

	c.Invalidate(csgo)
	_, err = c.Get(ctx, csgo)
	require.NoError(t, err)
	require.Equal(t, int32(3), f.calls.Load())
}

func TestLookup(t *testing.T) {
	items := []steam.Item{
		{AssetID: "1", Name: "Redline", MarketHashName: "AK-47 | Redline (Field-Tested)"},
		{AssetID: "2", Name: "AK-47 | Redline (Field-Tested)", MarketHashName: "other"},
		{AssetID: "3", Name: "Sticker", MarketHashName: "Sticker | Crown (Foil)"},
	}

	it, ok := FindByAssetID(items, " 3 ")
	require.True(t, ok)
	require.Equal(t, "3", it.AssetID)

	_, ok = FindByAssetID(items, "")
	require.False(t, ok)

	it, ok = FindByName(items, "AK-47 | Redline (Field-Tested)")
	require.True(t, ok)
	require.Equal(t, "1", it.AssetID)

	it, ok = FindByName(items, "Sticker")
	require.True(t, ok)
	require.Equal(t, "3", it.AssetID)

	_, ok = FindByName(items, "M4A4 | Howl")
	require.False(t, ok)
}
