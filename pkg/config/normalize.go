package config

import (
	"strings"
	"time"
)

const (
	minPendingInterval = time.Second
	minPollInterval    = 5 * time.Second
	minLockTimeout     = 30 * time.Second
	maxBatchSize       = 50
	maxExportLimit     = 5000
)

// NormalizeSecret drops placeholder values copied from sample env files.
func NormalizeSecret(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "BASE64_SHARED_SECRET_FROM_") || strings.Contains(s, "BASE64_IDENTITY_SECRET_FROM_") {
		return ""
	}
	lower := strings.ToLower(s)
	if strings.Contains(lower, "from_sda") || strings.Contains(lower, "from_steam") {
		return ""
	}
	return s
}

// Normalize clamps loop settings into their allowed ranges and fills export
// defaults from the Steam section.
func (c *Config) Normalize() {
	f := &c.Fulfillment
	if f.PendingInterval < minPendingInterval {
		f.PendingInterval = minPendingInterval
	}
	if f.PollInterval < minPollInterval {
		f.PollInterval = minPollInterval
	}
	if f.LockTimeout < minLockTimeout {
		f.LockTimeout = minLockTimeout
	}
	f.ClaimBatchSize = clamp(f.ClaimBatchSize, 1, maxBatchSize)
	f.SentBatchSize = clamp(f.SentBatchSize, 1, maxBatchSize)
	f.OfferMessagePrefix = strings.TrimSpace(f.OfferMessagePrefix)

	if c.Inventory.CacheTTL <= 0 {
		c.Inventory.CacheTTL = 60 * time.Second
	}

	s := &c.Steam
	s.SharedSecret = NormalizeSecret(s.SharedSecret)
	s.IdentitySecret = NormalizeSecret(s.IdentitySecret)
	s.ContextID = strings.TrimSpace(s.ContextID)
	if s.AppID <= 0 {
		s.AppID = 730
	}
	if s.ContextID == "" {
		s.ContextID = "2"
	}
	if s.RequestsPerSecond <= 0 {
		s.RequestsPerSecond = 1
	}
	if s.Burst <= 0 {
		s.Burst = 1
	}

	e := &c.Export
	if e.AppID <= 0 {
		e.AppID = s.AppID
	}
	e.ContextID = strings.TrimSpace(e.ContextID)
	if e.ContextID == "" {
		e.ContextID = s.ContextID
	}
	e.Limit = clamp(e.Limit, 1, maxExportLimit)
	e.Filter = strings.TrimSpace(e.Filter)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
