package cashu

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidReserveTarget  = errors.New("Reserve target must be a positive amount")
	ErrInvalidAlertThreshold = errors.New("Alert threshold must be between 0 and 100")
	ErrUnknownReserveLevel   = errors.New("Unknown reserve level")
	ErrReserveConfigMissing  = errors.New("No reserve config stored yet")
)

// ReserveLevel is a named preset for the offline reserve target, in the
// smallest currency unit.
type ReserveLevel string

const (
	ReserveLevelLow    ReserveLevel = "low"
	ReserveLevelMedium ReserveLevel = "medium"
	ReserveLevelHigh   ReserveLevel = "high"
)

func (l ReserveLevel) TargetAmount() uint64 {
	switch l {
	case ReserveLevelLow:
		return 10_000
	case ReserveLevelMedium:
		return 50_000
	case ReserveLevelHigh:
		return 100_000
	}
	return 0
}

func ReserveLevelFromString(s string) (ReserveLevel, error) {
	switch ReserveLevel(s) {
	case ReserveLevelLow, ReserveLevelMedium, ReserveLevelHigh:
		return ReserveLevel(s), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownReserveLevel, s)
	}
}

// ReserveConfig is the singleton policy record for the offline reserve.
type ReserveConfig struct {
	TargetAmount          uint64 `json:"target_amount" db:"target_amount"`
	AutoRefill            bool   `json:"auto_refill" db:"auto_refill"`
	AlertThresholdPercent int    `json:"alert_threshold_percent" db:"alert_threshold_percent"`
}

// Validate runs at the config-write boundary. A zero target is rejected here.
func (c ReserveConfig) Validate() error {
	if c.TargetAmount == 0 {
		return ErrInvalidReserveTarget
	}
	if c.AlertThresholdPercent < 0 || c.AlertThresholdPercent > 100 {
		return ErrInvalidAlertThreshold
	}
	return nil
}

func DefaultReserveConfig() ReserveConfig {
	return ReserveConfig{
		TargetAmount:          ReserveLevelMedium.TargetAmount(),
		AutoRefill:            true,
		AlertThresholdPercent: 20,
	}
}
