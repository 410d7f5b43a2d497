package claim

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNoClaimAvailable = errors.New("claim: no pending claim available")
	ErrNotFound         = errors.New("claim: record not found")
	// ErrLeaseLost is returned when a lease-guarded write finds the claim no longer
	// held by the caller.
	ErrLeaseLost = errors.New("claim: lease lost")
)

// Store persists claims, prize stock, winners and notifications. Every state
// transition is a conditional write; a transition that no longer applies is a no-op.
type Store interface {
	AcquireNextClaim(ctx context.Context, owner string, now time.Time, lockTimeout time.Duration) (*Claim, error)
	ReleaseLease(ctx context.Context, id, owner string) error
	// RenewLease restamps a PENDING claim still leased by owner. It returns
	// ErrLeaseLost when the claim has moved on or another worker took it over.
	RenewLease(ctx context.Context, id, owner string, now time.Time) error
	FindClaim(ctx context.Context, id string) (*Claim, error)
	FindWinner(ctx context.Context, giveawayID, steamID string) (*Winner, error)

	// MarkSent moves a leased PENDING claim to SENT and its stock unit to SENT.
	MarkSent(ctx context.Context, id, owner, offerID string, now time.Time) error
	ListSent(ctx context.Context, limit int) ([]Claim, error)
	RecordOfferState(ctx context.Context, id string, state int, now time.Time) error
	RecordPollError(ctx context.Context, id, message string, now time.Time) error

	// Succeed commits SENT -> SUCCESS. It reports false when the claim was not SENT.
	Succeed(ctx context.Context, id, offerID string, now time.Time) (bool, error)
	// Fail rolls a PENDING or SENT claim back to FAILED and releases its stock unit
	// and winner entry. It reports false when the claim was already terminal. With
	// failure.Owner set only a PENDING claim leased by that owner qualifies, and
	// ErrLeaseLost is returned otherwise.
	Fail(ctx context.Context, id string, failure Failure, now time.Time) (bool, error)

	CountPending(ctx context.Context, now time.Time, lockTimeout time.Duration) (PendingCounts, error)
	SamplePending(ctx context.Context) (*Claim, error)

	InsertNotification(ctx context.Context, n *Notification) error
}
