package claim

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	claimsCollection        = "giveaway_claims"
	stockCollection         = "giveaway_prize_stock"
	winnersCollection       = "giveaway_winners"
	notificationsCollection = "user_notifications"
)

// MongoRepository is the document-store Store. The web layer keys claims and stock
// units by ObjectId and winner documents by the giveaway id string, with one
// `winners` array per giveaway. Transitions are sequential conditional updates;
// a standalone server has no multi-document transactions.
type MongoRepository struct {
	claims        *mongo.Collection
	stock         *mongo.Collection
	winners       *mongo.Collection
	notifications *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		claims:        db.Collection(claimsCollection),
		stock:         db.Collection(stockCollection),
		winners:       db.Collection(winnersCollection),
		notifications: db.Collection(notificationsCollection),
	}
}

// EnsureIndexes creates the indexes the engine's queries rely on.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	if _, err := r.claims.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tradeStatus", Value: 1}, {Key: "updatedAt", Value: 1}}},
		{Keys: bson.D{{Key: "tradeStatus", Value: 1}, {Key: "botLockedAt", Value: 1}}},
	}); err != nil {
		return err
	}
	_, err := r.stock.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "appId", Value: 1}, {Key: "contextId", Value: 1}, {Key: "assetId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// docID maps a string id back to the ObjectId it was rendered from, when it is one.
func docID(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

func leaseFreeFilter(cutoff time.Time) bson.M {
	return bson.M{
		"tradeStatus": TradeStatusPending,
		"$or": bson.A{
			bson.M{"botLockedAt": bson.M{"$exists": false}},
			bson.M{"botLockedAt": nil},
			bson.M{"botLockedAt": bson.M{"$lt": cutoff}},
		},
	}
}

func (r *MongoRepository) AcquireNextClaim(ctx context.Context, owner string, now time.Time, lockTimeout time.Duration) (*Claim, error) {
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "updatedAt", Value: 1}}).
		SetReturnDocument(options.After)

	var c Claim
	err := r.claims.FindOneAndUpdate(ctx,
		leaseFreeFilter(now.Add(-lockTimeout)),
		bson.M{"$set": bson.M{"botLockedAt": now, "botLockId": owner, "updatedAt": now}},
		opts,
	).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoClaimAvailable
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *MongoRepository) ReleaseLease(ctx context.Context, id, owner string) error {
	_, err := r.claims.UpdateOne(ctx,
		bson.M{"_id": docID(id), "botLockId": owner},
		bson.M{"$unset": bson.M{"botLockedAt": "", "botLockId": ""}},
	)
	return err
}

func (r *MongoRepository) RenewLease(ctx context.Context, id, owner string, now time.Time) error {
	res, err := r.claims.UpdateOne(ctx,
		bson.M{"_id": docID(id), "tradeStatus": TradeStatusPending, "botLockId": owner},
		bson.M{"$set": bson.M{"botLockedAt": now}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (r *MongoRepository) FindClaim(ctx context.Context, id string) (*Claim, error) {
	var c Claim
	err := r.claims.FindOne(ctx, bson.M{"_id": docID(id)}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

type winnersDoc struct {
	ID      string   `bson:"_id"`
	Winners []Winner `bson:"winners"`
}

func (r *MongoRepository) FindWinner(ctx context.Context, giveawayID, steamID string) (*Winner, error) {
	var doc winnersDoc
	err := r.winners.FindOne(ctx, bson.M{"_id": giveawayID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	for _, w := range doc.Winners {
		if w.SteamID == steamID {
			w.GiveawayID = giveawayID
			return &w, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MongoRepository) MarkSent(ctx context.Context, id, owner, offerID string, now time.Time) error {
	res := r.claims.FindOneAndUpdate(ctx,
		bson.M{"_id": docID(id), "tradeStatus": TradeStatusPending, "botLockId": owner},
		bson.M{
			"$set": bson.M{
				"tradeStatus":       TradeStatusSent,
				"steamTradeOfferId": offerID,
				"lastError":         nil,
				"sentAt":            now,
				"updatedAt":         now,
			},
			"$unset": bson.M{"botLockedAt": "", "botLockId": ""},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var c Claim
	if err := res.Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrLeaseLost
		}
		return err
	}
	if c.PrizeStockID == "" {
		return nil
	}

	_, err := r.stock.UpdateOne(ctx,
		bson.M{"_id": docID(c.PrizeStockID), "status": StockReserved},
		bson.M{"$set": bson.M{"status": StockSent, "steamTradeOfferId": offerID, "sentAt": now, "updatedAt": now}},
	)
	return err
}

func (r *MongoRepository) ListSent(ctx context.Context, limit int) ([]Claim, error) {
	cur, err := r.claims.Find(ctx,
		bson.M{"tradeStatus": TradeStatusSent, "steamTradeOfferId": bson.M{"$nin": bson.A{nil, ""}}},
		options.Find().SetSort(bson.D{{Key: "updatedAt", Value: 1}}).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, err
	}
	claims := make([]Claim, 0)
	if err := cur.All(ctx, &claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (r *MongoRepository) RecordOfferState(ctx context.Context, id string, state int, now time.Time) error {
	_, err := r.claims.UpdateOne(ctx,
		bson.M{"_id": docID(id), "tradeStatus": TradeStatusSent},
		bson.M{"$set": bson.M{"lastSeenOfferState": state, "updatedAt": now}},
	)
	return err
}

func (r *MongoRepository) RecordPollError(ctx context.Context, id, message string, now time.Time) error {
	_, err := r.claims.UpdateOne(ctx,
		bson.M{"_id": docID(id), "tradeStatus": TradeStatusSent},
		bson.M{"$set": bson.M{"lastError": message, "updatedAt": now}},
	)
	return err
}

func (r *MongoRepository) updateWinner(ctx context.Context, c *Claim, set, unset bson.M) error {
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	_, err := r.winners.UpdateOne(ctx,
		bson.M{"_id": c.GiveawayID},
		update,
		options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: []any{bson.M{"w.steamId": c.SteamID, "w.claimStatus": WinnerPendingTrade}},
		}),
	)
	return err
}

func (r *MongoRepository) Succeed(ctx context.Context, id, offerID string, now time.Time) (bool, error) {
	var c Claim
	err := r.claims.FindOneAndUpdate(ctx,
		bson.M{"_id": docID(id), "tradeStatus": TradeStatusSent},
		bson.M{"$set": bson.M{
			"tradeStatus":       TradeStatusSuccess,
			"steamTradeOfferId": offerID,
			"completedAt":       now,
			"updatedAt":         now,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if c.PrizeStockID != "" {
		if _, err := r.stock.UpdateOne(ctx,
			bson.M{"_id": docID(c.PrizeStockID), "status": bson.M{"$in": bson.A{StockReserved, StockSent}}},
			bson.M{"$set": bson.M{"status": StockDelivered, "steamTradeOfferId": offerID, "deliveredAt": now, "updatedAt": now}},
		); err != nil {
			return true, err
		}
	}

	return true, r.updateWinner(ctx, &c,
		bson.M{"winners.$[w].claimStatus": WinnerClaimed, "winners.$[w].claimedAt": now, "updatedAt": now},
		nil,
	)
}

func (r *MongoRepository) Fail(ctx context.Context, id string, failure Failure, now time.Time) (bool, error) {
	set := bson.M{
		"tradeStatus": TradeStatusFailed,
		"lastError":   failure.Reason,
		"updatedAt":   now,
	}
	if failure.OfferState != nil {
		set["steamTradeOfferState"] = *failure.OfferState
	}

	filter := bson.M{"_id": docID(id), "tradeStatus": bson.M{"$in": bson.A{TradeStatusPending, TradeStatusSent}}}
	if failure.Owner != "" {
		filter = bson.M{"_id": docID(id), "tradeStatus": TradeStatusPending, "botLockId": failure.Owner}
	}

	var c Claim
	err := r.claims.FindOneAndUpdate(ctx,
		filter,
		bson.M{"$set": set, "$unset": bson.M{"botLockedAt": "", "botLockId": ""}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if failure.Owner != "" {
			return false, ErrLeaseLost
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if c.PrizeStockID != "" {
		if _, err := r.stock.UpdateOne(ctx,
			bson.M{"_id": docID(c.PrizeStockID), "status": bson.M{"$in": bson.A{StockReserved, StockSent}}},
			bson.M{
				"$set":   bson.M{"status": StockAvailable, "updatedAt": now},
				"$unset": bson.M{"reservedBySteamId": "", "reservedAt": "", "steamTradeOfferId": "", "sentAt": ""},
			},
		); err != nil {
			return true, err
		}
		if _, err := r.claims.UpdateOne(ctx,
			bson.M{"_id": docID(id)},
			bson.M{"$unset": bson.M{
				"prizeStockId":        "",
				"assetId":             "",
				"classId":             "",
				"instanceId":          "",
				"assetAppIdExact":     "",
				"assetContextIdExact": "",
			}},
		); err != nil {
			zap.L().Warn("[Claim] failed to clear asset details", zap.String("claim_id", id), zap.Error(err))
		}
	}

	return true, r.updateWinner(ctx, &c,
		bson.M{"winners.$[w].claimStatus": WinnerPending, "updatedAt": now},
		bson.M{"winners.$[w].claimedAt": ""},
	)
}

func (r *MongoRepository) CountPending(ctx context.Context, now time.Time, lockTimeout time.Duration) (PendingCounts, error) {
	var counts PendingCounts
	var err error
	if counts.Pending, err = r.claims.CountDocuments(ctx, bson.M{"tradeStatus": TradeStatusPending}); err != nil {
		return counts, err
	}
	if counts.Eligible, err = r.claims.CountDocuments(ctx, leaseFreeFilter(now.Add(-lockTimeout))); err != nil {
		return counts, err
	}
	if counts.Sent, err = r.claims.CountDocuments(ctx, bson.M{"tradeStatus": TradeStatusSent}); err != nil {
		return counts, err
	}
	return counts, nil
}

func (r *MongoRepository) SamplePending(ctx context.Context) (*Claim, error) {
	var c Claim
	err := r.claims.FindOne(ctx,
		bson.M{"tradeStatus": TradeStatusPending},
		options.FindOne().SetSort(bson.D{{Key: "updatedAt", Value: 1}}),
	).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

type notificationDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	SteamID   string             `bson:"steamId"`
	Type      string             `bson:"type"`
	Title     string             `bson:"title"`
	Message   string             `bson:"message"`
	Meta      bson.M             `bson:"meta,omitempty"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (r *MongoRepository) InsertNotification(ctx context.Context, n *Notification) error {
	doc := notificationDoc{
		ID:        primitive.NewObjectID(),
		SteamID:   n.SteamID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		CreatedAt: n.CreatedAt,
	}
	if len(n.Meta) > 0 {
		if err := bson.UnmarshalExtJSON(n.Meta, false, &doc.Meta); err != nil {
			return err
		}
	}
	_, err := r.notifications.InsertOne(ctx, doc)
	return err
}
