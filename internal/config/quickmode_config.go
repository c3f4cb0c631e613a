package config

import "time"

type QuickModeConfig interface {
	GetQuickModeDuration() time.Duration
	GetQuickModeWarningLead() time.Duration
	GetQuickModePollInterval() time.Duration
}

type QuickMode struct {
	Duration     time.Duration `mapstructure:"duration"`
	WarningLead  time.Duration `mapstructure:"warninglead"`
	PollInterval time.Duration `mapstructure:"pollinterval"`
}

var _ QuickModeConfig = QuickMode{}

func (q QuickMode) GetQuickModeDuration() time.Duration {
	return q.Duration
}

// GetQuickModeWarningLead is how long before expiry the reminder fires.
func (q QuickMode) GetQuickModeWarningLead() time.Duration {
	return q.WarningLead
}

func (q QuickMode) GetQuickModePollInterval() time.Duration {
	return q.PollInterval
}
