package fulfillment

import (
	"time"

	"giveaway-fulfillment/pkg/config"
)

// Settings are the loop knobs read at the start of every tick, so a config reload
// applies without a restart.
type Settings struct {
	PendingInterval    time.Duration
	PollInterval       time.Duration
	ClaimBatchSize     int
	SentBatchSize      int
	LockTimeout        time.Duration
	DryRun             bool
	Verbose            bool
	OfferMessagePrefix string

	AppID     int
	ContextID string
}

func SettingsFrom(cfg *config.Config) Settings {
	f := cfg.Fulfillment
	return Settings{
		PendingInterval:    f.PendingInterval,
		PollInterval:       f.PollInterval,
		ClaimBatchSize:     f.ClaimBatchSize,
		SentBatchSize:      f.SentBatchSize,
		LockTimeout:        f.LockTimeout,
		DryRun:             f.DryRun,
		Verbose:            f.Verbose,
		OfferMessagePrefix: f.OfferMessagePrefix,
		AppID:              cfg.Steam.AppID,
		ContextID:          cfg.Steam.ContextID,
	}
}

// liveSettings follows config.Current and falls back to the startup config.
func liveSettings(boot *config.Config) func() Settings {
	return func() Settings {
		if cfg := config.Current(); cfg != nil {
			return SettingsFrom(cfg)
		}
		return SettingsFrom(boot)
	}
}
