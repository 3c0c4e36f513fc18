package reserve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/satchelwallet/satchel/api/cashu"
)

// Config loads the stored reserve policy, falling back to defaults when
// nothing has been configured yet. The default is never written back; the
// first explicit setter does that.
func (m *Manager) Config(ctx context.Context) (cashu.ReserveConfig, error) {
	tx, err := m.db.GetTx(ctx)
	if err != nil {
		return cashu.ReserveConfig{}, fmt.Errorf("m.db.GetTx(ctx): %w", err)
	}
	defer func() {
		if err := m.db.Rollback(ctx, tx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			m.logger.Error("transaction rollback failed", slog.String("error", err.Error()))
		}
	}()

	config, err := m.db.GetReserveConfig(tx)
	if err != nil {
		if errors.Is(err, cashu.ErrReserveConfigMissing) {
			return cashu.DefaultReserveConfig(), nil
		}
		return config, fmt.Errorf("m.db.GetReserveConfig(tx): %w", err)
	}

	if err := m.db.Commit(ctx, tx); err != nil {
		return config, fmt.Errorf("m.db.Commit(ctx, tx): %w", err)
	}
	return config, nil
}

// SetConfig validates and stores the whole policy in one write.
func (m *Manager) SetConfig(ctx context.Context, config cashu.ReserveConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	tx, err := m.db.GetTx(ctx)
	if err != nil {
		return fmt.Errorf("m.db.GetTx(ctx): %w", err)
	}
	defer func() {
		if err := m.db.Rollback(ctx, tx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			m.logger.Error("transaction rollback failed", slog.String("error", err.Error()))
		}
	}()

	if err := m.db.UpsertReserveConfig(tx, config); err != nil {
		return fmt.Errorf("m.db.UpsertReserveConfig(tx, config): %w", err)
	}

	if err := m.db.Commit(ctx, tx); err != nil {
		return fmt.Errorf("m.db.Commit(ctx, tx): %w", err)
	}

	m.logger.Info("reserve config updated",
		slog.Uint64("targetAmount", config.TargetAmount),
		slog.Bool("autoRefill", config.AutoRefill),
		slog.Int("alertThresholdPercent", config.AlertThresholdPercent))
	return nil
}

func (m *Manager) SetTargetAmount(ctx context.Context, target uint64) error {
	config, err := m.Config(ctx)
	if err != nil {
		return fmt.Errorf("m.Config(ctx): %w", err)
	}
	config.TargetAmount = target
	return m.SetConfig(ctx, config)
}

// SetTargetLevel sets the target from a named preset.
func (m *Manager) SetTargetLevel(ctx context.Context, level cashu.ReserveLevel) error {
	return m.SetTargetAmount(ctx, level.TargetAmount())
}

func (m *Manager) SetAutoRefill(ctx context.Context, autoRefill bool) error {
	config, err := m.Config(ctx)
	if err != nil {
		return fmt.Errorf("m.Config(ctx): %w", err)
	}
	config.AutoRefill = autoRefill
	return m.SetConfig(ctx, config)
}

func (m *Manager) SetAlertThreshold(ctx context.Context, percent int) error {
	config, err := m.Config(ctx)
	if err != nil {
		return fmt.Errorf("m.Config(ctx): %w", err)
	}
	config.AlertThresholdPercent = percent
	return m.SetConfig(ctx, config)
}
