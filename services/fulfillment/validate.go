package fulfillment

import (
	"regexp"
	"strings"

	"giveaway-fulfillment/pkg/errutil"
	"giveaway-fulfillment/pkg/steam"
	"giveaway-fulfillment/services/claim"
)

const (
	ReasonInvalidPayload    = "Invalid claim payload"
	ReasonMissingItem       = "Missing itemId/assetId"
	ReasonWinnerNotFound    = "Winner record not found"
	ReasonWindowExpired     = "Claim window expired"
	ReasonItemUnavailable   = "Item not available in bot inventory"
	ReasonOfferIDMissing    = "Trade offer ID missing after send"
	ReasonTradeHold         = "Steam account cannot trade yet (Steam Guard hold)"
	reasonUnexpectedWinner  = "Unexpected winner status: "
	maxOfferMessagePrizeLen = 200
)

var (
	steamIDPattern    = regexp.MustCompile(`^\d{17}$`)
	giveawayIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
)

// validateClaim checks the claim payload before anything touches Steam or the
// winner record. The returned error carries the failure reason as its message.
func validateClaim(c *claim.Claim) (steam.TradeURL, error) {
	if !steamIDPattern.MatchString(c.SteamID) || !giveawayIDPattern.MatchString(c.GiveawayID) {
		return steam.TradeURL{}, errutil.ValidationFailed(ReasonInvalidPayload, nil)
	}
	partner, err := steam.ParseTradeURL(c.TradeURL)
	if err != nil {
		return steam.TradeURL{}, err
	}
	if strings.TrimSpace(c.ItemID) == "" && strings.TrimSpace(c.AssetID) == "" {
		return steam.TradeURL{}, errutil.ValidationFailed(ReasonMissingItem, nil)
	}
	return partner, nil
}

// isTradeHold reports whether a send error means the custodial account is still
// under a Steam Guard trade restriction.
func isTradeHold(msg string) bool {
	if strings.Contains(msg, "Steam Guard") {
		return true
	}
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "not enabled") || strings.Contains(lower, "cannot trade")
}

// offerMessage builds the note attached to an offer from the configured prefix and
// the prize label.
func offerMessage(prefix string, c *claim.Claim) string {
	label := strings.TrimSpace(c.Prize)
	if label == "" {
		label = strings.TrimSpace(c.ItemID)
	}
	if label == "" {
		label = strings.TrimSpace(c.AssetID)
	}
	if r := []rune(label); len(r) > maxOfferMessagePrizeLen {
		label = string(r[:maxOfferMessagePrizeLen])
	}
	if prefix == "" {
		return label
	}
	return prefix + ": " + label
}
