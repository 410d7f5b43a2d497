package notification

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"giveaway-fulfillment/services/claim"

	"gorm.io/datatypes"
)

const (
	TypeTradeSent     = "giveaway_trade_sent"
	TypeTradeAccepted = "giveaway_trade_accepted"
	TypeTradeFailed   = "giveaway_trade_failed"

	maxTitle   = 200
	maxMessage = 2000
)

var steamIDPattern = regexp.MustCompile(`^\d{17}$`)

// Build validates and normalizes a notification row. It reports false for
// recipients that are not 17-digit Steam ids.
func Build(id, steamID, typ, title, message string, meta map[string]any, createdAt time.Time) (*claim.Notification, bool) {
	recipient := strings.TrimSpace(steamID)
	if !steamIDPattern.MatchString(recipient) {
		return nil, false
	}

	typ = strings.TrimSpace(typ)
	if typ == "" {
		typ = "info"
	}

	n := &claim.Notification{
		ID:        id,
		SteamID:   recipient,
		Type:      typ,
		Title:     truncate(strings.TrimSpace(title), maxTitle),
		Message:   truncate(strings.TrimSpace(message), maxMessage),
		CreatedAt: createdAt,
	}
	if len(meta) > 0 {
		raw, err := json.Marshal(meta)
		if err == nil {
			n.Meta = datatypes.JSON(raw)
		}
	}
	return n, true
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
