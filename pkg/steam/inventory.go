package steam

import (
	"context"
	"fmt"
	"strconv"

	"giveaway-fulfillment/pkg/errutil"

	"go.uber.org/zap"
)

const inventoryPageSize = 2000

// Item is one inventory asset joined with its description.
type Item struct {
	AppID          int    `json:"appid"`
	ContextID      string `json:"contextid"`
	AssetID        string `json:"assetid"`
	ClassID        string `json:"classid"`
	InstanceID     string `json:"instanceid"`
	Amount         string `json:"amount"`
	Name           string `json:"name"`
	MarketHashName string `json:"market_hash_name"`
	Tradable       bool   `json:"tradable"`
}

type inventoryAsset struct {
	AppID      int    `json:"appid"`
	ContextID  string `json:"contextid"`
	AssetID    string `json:"assetid"`
	ClassID    string `json:"classid"`
	InstanceID string `json:"instanceid"`
	Amount     string `json:"amount"`
}

type inventoryDescription struct {
	ClassID        string `json:"classid"`
	InstanceID     string `json:"instanceid"`
	Name           string `json:"name"`
	MarketHashName string `json:"market_hash_name"`
	Tradable       int    `json:"tradable"`
}

type inventoryPage struct {
	Success      int                    `json:"success"`
	Assets       []inventoryAsset       `json:"assets"`
	Descriptions []inventoryDescription `json:"descriptions"`
	MoreItems    int                    `json:"more_items"`
	LastAssetID  string                 `json:"last_assetid"`
	Error        string                 `json:"error"`
}

// GetInventory fetches the full inventory of steamID for (appID, contextID), following
// start_assetid paging. With tradableOnly set, untradable items are dropped.
func (c *Client) GetInventory(ctx context.Context, steamID string, appID int, contextID string, tradableOnly bool) ([]Item, error) {
	if steamID == "" {
		return nil, errutil.ValidationFailed("Steam account id not configured", nil)
	}

	path := fmt.Sprintf("/inventory/%s/%d/%s", steamID, appID, contextID)
	items := make([]Item, 0)
	start := ""

	for {
		params := map[string]string{
			"l":     c.language,
			"count": strconv.Itoa(inventoryPageSize),
		}
		if start != "" {
			params["start_assetid"] = start
		}

		var page inventoryPage
		resp, err := c.community.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetResult(&page).
			Get(path)
		if err != nil || resp.IsError() {
			return nil, httpError("inventory", resp, err)
		}
		if page.Success != 1 {
			msg := page.Error
			if msg == "" {
				msg = "unsuccessful response"
			}
			return nil, errutil.BadGateway("Steam inventory fetch failed: "+msg, nil)
		}

		descs := make(map[string]inventoryDescription, len(page.Descriptions))
		for _, d := range page.Descriptions {
			descs[d.ClassID+"_"+d.InstanceID] = d
		}

		for _, a := range page.Assets {
			d := descs[a.ClassID+"_"+a.InstanceID]
			item := Item{
				AppID:          a.AppID,
				ContextID:      a.ContextID,
				AssetID:        a.AssetID,
				ClassID:        a.ClassID,
				InstanceID:     a.InstanceID,
				Amount:         a.Amount,
				Name:           d.Name,
				MarketHashName: d.MarketHashName,
				Tradable:       d.Tradable == 1,
			}
			if tradableOnly && !item.Tradable {
				continue
			}
			items = append(items, item)
		}

		logRequest("inventory page",
			zap.Int("app_id", appID),
			zap.String("context_id", contextID),
			zap.Int("assets", len(page.Assets)),
		)

		if page.MoreItems != 1 || page.LastAssetID == "" || page.LastAssetID == start {
			break
		}
		start = page.LastAssetID
	}

	return items, nil
}
