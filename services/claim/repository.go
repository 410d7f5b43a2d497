package claim

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// leaseCandidates is how many eligible rows one pass races for. A pass that loses
// every race plucks a fresh set, so a busy worker only gives up once nothing
// eligible is left.
const leaseCandidates = 5

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

func leaseFree(db *gorm.DB, cutoff time.Time) *gorm.DB {
	return db.Where("trade_status = ? AND (locked_at IS NULL OR locked_at < ?)", TradeStatusPending, cutoff)
}

// AcquireNextClaim leases the oldest eligible PENDING claim for owner. The stamp is
// a single UPDATE that re-checks the eligibility predicate, so of any number of
// concurrent callers exactly one sees RowsAffected == 1 for a given row.
func (r *Repository) AcquireNextClaim(ctx context.Context, owner string, now time.Time, lockTimeout time.Duration) (*Claim, error) {
	cutoff := now.Add(-lockTimeout)
	db := r.db.WithContext(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var ids []string
		if err := leaseFree(db.Model(&Claim{}), cutoff).
			Order("updated_at ASC").
			Limit(leaseCandidates).
			Pluck("id", &ids).Error; err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, ErrNoClaimAvailable
		}

		for _, id := range ids {
			res := leaseFree(db.Model(&Claim{}).Where("id = ?", id), cutoff).
				Updates(map[string]any{
					"lock_owner": owner,
					"locked_at":  now,
					"updated_at": now,
				})
			if res.Error != nil {
				return nil, res.Error
			}
			if res.RowsAffected != 1 {
				continue
			}

			var c Claim
			if err := db.Where("id = ? AND lock_owner = ?", id, owner).First(&c).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, ErrLeaseLost
				}
				return nil, err
			}
			return &c, nil
		}
	}
}

func (r *Repository) ReleaseLease(ctx context.Context, id, owner string) error {
	return r.db.WithContext(ctx).Model(&Claim{}).
		Where("id = ? AND lock_owner = ?", id, owner).
		Updates(map[string]any{"lock_owner": "", "locked_at": nil}).Error
}

func (r *Repository) RenewLease(ctx context.Context, id, owner string, now time.Time) error {
	held := func(db *gorm.DB) *gorm.DB {
		return db.Model(&Claim{}).Where("id = ? AND trade_status = ? AND lock_owner = ?", id, TradeStatusPending, owner)
	}
	db := r.db.WithContext(ctx)

	res := held(db).Update("locked_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	// MySQL reports zero affected rows when locked_at already equals now.
	var n int64
	if err := held(db).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (r *Repository) FindClaim(ctx context.Context, id string) (*Claim, error) {
	var c Claim
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *Repository) FindWinner(ctx context.Context, giveawayID, steamID string) (*Winner, error) {
	var w Winner
	if err := r.db.WithContext(ctx).
		Where("giveaway_id = ? AND steam_id = ?", giveawayID, steamID).
		First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (r *Repository) MarkSent(ctx context.Context, id, owner, offerID string, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Claim{}).
			Where("id = ? AND trade_status = ? AND lock_owner = ?", id, TradeStatusPending, owner).
			Updates(map[string]any{
				"trade_status":         TradeStatusSent,
				"steam_trade_offer_id": offerID,
				"sent_at":              now,
				"last_error":           "",
				"lock_owner":           "",
				"locked_at":            nil,
				"updated_at":           now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrLeaseLost
		}

		var c Claim
		if err := tx.Select("prize_stock_id").Where("id = ?", id).First(&c).Error; err != nil {
			return err
		}
		if c.PrizeStockID == "" {
			return nil
		}

		res = tx.Model(&PrizeStockUnit{}).
			Where("id = ? AND status = ?", c.PrizeStockID, StockReserved).
			Updates(map[string]any{
				"status":               StockSent,
				"steam_trade_offer_id": offerID,
				"sent_at":              now,
				"updated_at":           now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			zap.L().Warn("[Claim] prize stock unit was not RESERVED when marking sent",
				zap.String("claim_id", id),
				zap.String("prize_stock_id", c.PrizeStockID),
			)
		}
		return nil
	})
}

func (r *Repository) ListSent(ctx context.Context, limit int) ([]Claim, error) {
	var claims []Claim
	err := r.db.WithContext(ctx).
		Where("trade_status = ? AND steam_trade_offer_id <> ''", TradeStatusSent).
		Order("updated_at ASC").
		Limit(limit).
		Find(&claims).Error
	return claims, err
}

func (r *Repository) RecordOfferState(ctx context.Context, id string, state int, now time.Time) error {
	return r.db.WithContext(ctx).Model(&Claim{}).
		Where("id = ? AND trade_status = ?", id, TradeStatusSent).
		Updates(map[string]any{
			"last_seen_offer_state": state,
			"updated_at":            now,
		}).Error
}

func (r *Repository) RecordPollError(ctx context.Context, id, message string, now time.Time) error {
	return r.db.WithContext(ctx).Model(&Claim{}).
		Where("id = ? AND trade_status = ?", id, TradeStatusSent).
		Updates(map[string]any{
			"last_error": message,
			"updated_at": now,
		}).Error
}

func (r *Repository) Succeed(ctx context.Context, id, offerID string, now time.Time) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Claim{}).
			Where("id = ? AND trade_status = ?", id, TradeStatusSent).
			Updates(map[string]any{
				"trade_status":         TradeStatusSuccess,
				"steam_trade_offer_id": offerID,
				"completed_at":         now,
				"last_error":           "",
				"updated_at":           now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true

		var c Claim
		if err := tx.Where("id = ?", id).First(&c).Error; err != nil {
			return err
		}

		if c.PrizeStockID != "" {
			if err := tx.Model(&PrizeStockUnit{}).
				Where("id = ? AND status IN ?", c.PrizeStockID, []StockStatus{StockReserved, StockSent}).
				Updates(map[string]any{
					"status":               StockDelivered,
					"steam_trade_offer_id": offerID,
					"delivered_at":         now,
					"updated_at":           now,
				}).Error; err != nil {
				return err
			}
		}

		return tx.Model(&Winner{}).
			Where("giveaway_id = ? AND steam_id = ? AND claim_status = ?", c.GiveawayID, c.SteamID, WinnerPendingTrade).
			Updates(map[string]any{
				"claim_status": WinnerClaimed,
				"claimed_at":   now,
				"updated_at":   now,
			}).Error
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (r *Repository) Fail(ctx context.Context, id string, failure Failure, now time.Time) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"trade_status": TradeStatusFailed,
			"last_error":   failure.Reason,
			"lock_owner":   "",
			"locked_at":    nil,
			"updated_at":   now,
		}
		if failure.OfferState != nil {
			updates["steam_trade_offer_state"] = *failure.OfferState
		}
		q := tx.Model(&Claim{}).Where("id = ?", id)
		if failure.Owner != "" {
			q = q.Where("trade_status = ? AND lock_owner = ?", TradeStatusPending, failure.Owner)
		} else {
			q = q.Where("trade_status IN ?", []TradeStatus{TradeStatusPending, TradeStatusSent})
		}
		res := q.Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if failure.Owner != "" {
				return ErrLeaseLost
			}
			return nil
		}
		applied = true

		var c Claim
		if err := tx.Where("id = ?", id).First(&c).Error; err != nil {
			return err
		}

		if c.PrizeStockID != "" {
			if err := tx.Model(&PrizeStockUnit{}).
				Where("id = ? AND status IN ?", c.PrizeStockID, []StockStatus{StockReserved, StockSent}).
				Updates(map[string]any{
					"status":               StockAvailable,
					"reserved_by_steam_id": "",
					"reserved_at":          nil,
					"steam_trade_offer_id": "",
					"sent_at":              nil,
					"updated_at":           now,
				}).Error; err != nil {
				return err
			}

			if err := tx.Model(&Claim{}).Where("id = ?", id).
				Updates(map[string]any{
					"prize_stock_id":   "",
					"asset_id":         "",
					"class_id":         "",
					"instance_id":      "",
					"asset_app_id":     0,
					"asset_context_id": "",
				}).Error; err != nil {
				return err
			}
		}

		return tx.Model(&Winner{}).
			Where("giveaway_id = ? AND steam_id = ? AND claim_status = ?", c.GiveawayID, c.SteamID, WinnerPendingTrade).
			Updates(map[string]any{
				"claim_status": WinnerPending,
				"claimed_at":   nil,
				"updated_at":   now,
			}).Error
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (r *Repository) CountPending(ctx context.Context, now time.Time, lockTimeout time.Duration) (PendingCounts, error) {
	var counts PendingCounts
	db := r.db.WithContext(ctx)

	if err := db.Model(&Claim{}).Where("trade_status = ?", TradeStatusPending).Count(&counts.Pending).Error; err != nil {
		return counts, err
	}
	if err := leaseFree(db.Model(&Claim{}), now.Add(-lockTimeout)).Count(&counts.Eligible).Error; err != nil {
		return counts, err
	}
	if err := db.Model(&Claim{}).Where("trade_status = ?", TradeStatusSent).Count(&counts.Sent).Error; err != nil {
		return counts, err
	}
	return counts, nil
}

func (r *Repository) SamplePending(ctx context.Context) (*Claim, error) {
	var c Claim
	if err := r.db.WithContext(ctx).
		Where("trade_status = ?", TradeStatusPending).
		Order("updated_at ASC").
		First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// InsertNotification ignores a row whose id already exists, so a retried task
// does not duplicate it.
func (r *Repository) InsertNotification(ctx context.Context, n *Notification) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(n).Error
}
