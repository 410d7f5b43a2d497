package claim

import (
	"time"

	"gorm.io/datatypes"
)

type TradeStatus string

const (
	TradeStatusPending TradeStatus = "PENDING"
	TradeStatusSent    TradeStatus = "SENT"
	TradeStatusSuccess TradeStatus = "SUCCESS"
	TradeStatusFailed  TradeStatus = "FAILED"
)

func (s TradeStatus) Terminal() bool {
	return s == TradeStatusSuccess || s == TradeStatusFailed
}

type StockStatus string

const (
	StockAvailable StockStatus = "AVAILABLE"
	StockReserved  StockStatus = "RESERVED"
	StockSent      StockStatus = "SENT"
	StockDelivered StockStatus = "DELIVERED"
)

type WinnerStatus string

const (
	WinnerPending      WinnerStatus = "pending"
	WinnerPendingTrade WinnerStatus = "pending_trade"
	WinnerClaimed      WinnerStatus = "claimed"
)

// DryRunOfferID marks a claim that was "sent" without contacting Steam.
const DryRunOfferID = "dry-run"

// Claim is one attempt to deliver a prize to a recipient. Rows are created by the
// web layer; the engine owns every transition after PENDING.
type Claim struct {
	ID         string `gorm:"column:id;primaryKey;size:64" bson:"_id"`
	GiveawayID string `gorm:"column:giveaway_id;size:64;index" bson:"giveawayId"`
	SteamID    string `gorm:"column:steam_id;size:32;index" bson:"steamId"`

	TradeURL       string `gorm:"column:trade_url" bson:"tradeUrl"`
	ItemID         string `gorm:"column:item_id" bson:"itemId,omitempty"`
	AssetID        string `gorm:"column:asset_id;size:64" bson:"assetId,omitempty"`
	AssetAppID     int    `gorm:"column:asset_app_id" bson:"assetAppIdExact,omitempty"`
	AssetContextID string `gorm:"column:asset_context_id;size:32" bson:"assetContextIdExact,omitempty"`
	ClassID        string `gorm:"column:class_id;size:64" bson:"classId,omitempty"`
	InstanceID     string `gorm:"column:instance_id;size:64" bson:"instanceId,omitempty"`
	Prize          string `gorm:"column:prize" bson:"prize,omitempty"`
	PrizeStockID   string `gorm:"column:prize_stock_id;size:64;index" bson:"prizeStockId,omitempty"`

	TradeStatus          TradeStatus `gorm:"column:trade_status;size:16;index:idx_claims_status_updated,priority:1" bson:"tradeStatus"`
	LastError            string      `gorm:"column:last_error" bson:"lastError,omitempty"`
	LockOwner            string      `gorm:"column:lock_owner;size:128" bson:"botLockId,omitempty"`
	LockedAt             *time.Time  `gorm:"column:locked_at" bson:"botLockedAt,omitempty"`
	SteamTradeOfferID    string      `gorm:"column:steam_trade_offer_id;size:64" bson:"steamTradeOfferId,omitempty"`
	SteamTradeOfferState *int        `gorm:"column:steam_trade_offer_state" bson:"steamTradeOfferState,omitempty"`
	LastSeenOfferState   *int        `gorm:"column:last_seen_offer_state" bson:"lastSeenOfferState,omitempty"`

	CreatedAt   time.Time  `gorm:"column:created_at" bson:"createdAt"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime:false;index:idx_claims_status_updated,priority:2" bson:"updatedAt"`
	SentAt      *time.Time `gorm:"column:sent_at" bson:"sentAt,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" bson:"completedAt,omitempty"`
}

func (Claim) TableName() string { return "giveaway_claims" }

// PrizeStockUnit is one concrete item held by the custodial account.
type PrizeStockUnit struct {
	ID                string      `gorm:"column:id;primaryKey;size:64" bson:"_id"`
	AppID             int         `gorm:"column:app_id;uniqueIndex:idx_prize_stock_asset,priority:1" bson:"appId"`
	ContextID         string      `gorm:"column:context_id;size:32;uniqueIndex:idx_prize_stock_asset,priority:2" bson:"contextId"`
	AssetID           string      `gorm:"column:asset_id;size:64;uniqueIndex:idx_prize_stock_asset,priority:3" bson:"assetId"`
	ItemID            string      `gorm:"column:item_id" bson:"itemId,omitempty"`
	Status            StockStatus `gorm:"column:status;size:16;index" bson:"status"`
	ReservedBySteamID string      `gorm:"column:reserved_by_steam_id;size:32" bson:"reservedBySteamId,omitempty"`
	ReservedAt        *time.Time  `gorm:"column:reserved_at" bson:"reservedAt,omitempty"`
	SteamTradeOfferID string      `gorm:"column:steam_trade_offer_id;size:64" bson:"steamTradeOfferId,omitempty"`
	SentAt            *time.Time  `gorm:"column:sent_at" bson:"sentAt,omitempty"`
	DeliveredAt       *time.Time  `gorm:"column:delivered_at" bson:"deliveredAt,omitempty"`
	UpdatedAt         time.Time   `gorm:"column:updated_at;autoUpdateTime:false" bson:"updatedAt"`
}

func (PrizeStockUnit) TableName() string { return "giveaway_prize_stock" }

// Winner is the per-giveaway entry for one recipient.
type Winner struct {
	GiveawayID      string       `gorm:"column:giveaway_id;primaryKey;size:64" bson:"-"`
	SteamID         string       `gorm:"column:steam_id;primaryKey;size:32" bson:"steamId"`
	ClaimStatus     WinnerStatus `gorm:"column:claim_status;size:16" bson:"claimStatus"`
	ClaimDeadlineAt *time.Time   `gorm:"column:claim_deadline_at" bson:"claimDeadlineAt,omitempty"`
	ClaimedAt       *time.Time   `gorm:"column:claimed_at" bson:"claimedAt,omitempty"`
	UpdatedAt       time.Time    `gorm:"column:updated_at;autoUpdateTime:false" bson:"updatedAt,omitempty"`
}

func (Winner) TableName() string { return "giveaway_winners" }

// Notification is an append-only user-facing message.
type Notification struct {
	ID        string         `gorm:"column:id;primaryKey;size:32"`
	SteamID   string         `gorm:"column:steam_id;size:32;index"`
	Type      string         `gorm:"column:type;size:64"`
	Title     string         `gorm:"column:title;size:200"`
	Message   string         `gorm:"column:message;size:2000"`
	Meta      datatypes.JSON `gorm:"column:meta"`
	CreatedAt time.Time      `gorm:"column:created_at"`
}

func (Notification) TableName() string { return "user_notifications" }

// PendingCounts is the diagnostic snapshot of the pending queue.
type PendingCounts struct {
	Pending  int64 `json:"pending"`
	Eligible int64 `json:"eligible"`
	Sent     int64 `json:"sent"`
}

// Failure carries optional fields written together with a FAILED transition.
// Owner, when set, limits the transition to a PENDING claim still leased by Owner.
type Failure struct {
	Reason     string
	OfferState *int
	Owner      string
}

// Models lists every table the relational store migrates.
func Models() []any {
	return []any{&Claim{}, &PrizeStockUnit{}, &Winner{}, &Notification{}}
}
