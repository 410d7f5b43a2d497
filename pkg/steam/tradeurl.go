package steam

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"giveaway-fulfillment/pkg/errutil"
)

// steamID64Base is the SteamID64 of individual account id 0.
const steamID64Base uint64 = 76561197960265728

var (
	partnerPattern = regexp.MustCompile(`^\d+$`)
	tokenPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]{6,64}$`)
)

// TradeURL is a parsed recipient trade link.
type TradeURL struct {
	AccountID uint32
	SteamID64 string
	Token     string
}

// ParseTradeURL accepts only https?://steamcommunity.com/tradeoffer/new/ links with a
// numeric partner and a 6-64 char token.
func ParseTradeURL(raw string) (TradeURL, error) {
	invalid := errutil.ValidationFailed("Invalid trade URL", nil)

	s := strings.TrimSpace(raw)
	if s == "" {
		return TradeURL{}, invalid
	}
	u, err := url.Parse(s)
	if err != nil {
		return TradeURL{}, invalid
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return TradeURL{}, invalid
	}
	if u.Hostname() != "steamcommunity.com" || u.Path != "/tradeoffer/new/" {
		return TradeURL{}, invalid
	}

	q := u.Query()
	partner := q.Get("partner")
	token := q.Get("token")
	if !partnerPattern.MatchString(partner) || !tokenPattern.MatchString(token) {
		return TradeURL{}, invalid
	}
	account, err := strconv.ParseUint(partner, 10, 32)
	if err != nil {
		return TradeURL{}, invalid
	}

	return TradeURL{
		AccountID: uint32(account),
		SteamID64: strconv.FormatUint(steamID64Base+account, 10),
		Token:     token,
	}, nil
}
