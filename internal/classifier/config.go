package classifier

import (
	"github.com/hpungsan/kiki/internal/config"
	"github.com/hpungsan/kiki/internal/signal"
)

// ThresholdsFromConfig reads the ladder windows from cfg.
func ThresholdsFromConfig(cfg *config.Config) Thresholds {
	return Thresholds{
		Burst:  cfg.BurstWindow.Std(),
		Settle: cfg.SettleWindow.Std(),
		Sleep:  cfg.SleepWindow.Std(),
	}
}

// FromConfig builds the classifier described by cfg.
func FromConfig(cfg *config.Config) *Classifier {
	return New(ThresholdsFromConfig(cfg), WithRotation(cfg.RotatePhrases))
}

// ReaderFromConfig builds the filesystem signal reader described by cfg.
func ReaderFromConfig(cfg *config.Config) *signal.FSReader {
	return &signal.FSReader{
		SessionsDir:  config.ExpandHome(cfg.SessionsDir),
		Ext:          cfg.SessionExt,
		RegistryPath: config.ExpandHome(cfg.RegistryPath),
		WorkerWindow: cfg.WorkerWindow.Std(),
		KeyMatch:     cfg.WorkerKeyMatch,
	}
}
