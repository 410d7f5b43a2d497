package inventory

import (
	"strings"

	"giveaway-fulfillment/pkg/steam"
)

// FindByAssetID returns the item with exactly this asset id.
func FindByAssetID(items []steam.Item, assetID string) (steam.Item, bool) {
	id := strings.TrimSpace(assetID)
	if id == "" {
		return steam.Item{}, false
	}
	for _, it := range items {
		if it.AssetID == id {
			return it, true
		}
	}
	return steam.Item{}, false
}

// FindByName matches market_hash_name first and falls back to the display name.
func FindByName(items []steam.Item, name string) (steam.Item, bool) {
	key := strings.TrimSpace(name)
	if key == "" {
		return steam.Item{}, false
	}
	for _, it := range items {
		if strings.TrimSpace(it.MarketHashName) == key {
			return it, true
		}
	}
	for _, it := range items {
		if strings.TrimSpace(it.Name) == key {
			return it, true
		}
	}
	return steam.Item{}, false
}
