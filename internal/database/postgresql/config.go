package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/satchelwallet/satchel/api/cashu"
)

func (pql Postgresql) GetReserveConfig(tx pgx.Tx) (cashu.ReserveConfig, error) {
	rows, err := tx.Query(context.Background(), "SELECT target_amount, auto_refill, alert_threshold_percent FROM reserve_config WHERE id = 1")
	if err != nil {
		return cashu.ReserveConfig{}, databaseError(fmt.Errorf("checking for reserve config: %w", err))
	}
	defer rows.Close()

	config, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[cashu.ReserveConfig])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return config, cashu.ErrReserveConfigMissing
		}
		return config, databaseError(fmt.Errorf("pgx.CollectOneRow(rows, pgx.RowToStructByName[cashu.ReserveConfig]): %w", err))
	}

	return config, nil
}

func (pql Postgresql) UpsertReserveConfig(tx pgx.Tx, config cashu.ReserveConfig) error {
	_, err := tx.Exec(context.Background(),
		`INSERT INTO reserve_config (id, target_amount, auto_refill, alert_threshold_percent) VALUES (1, $1, $2, $3)
         ON CONFLICT (id) DO UPDATE SET target_amount = $1, auto_refill = $2, alert_threshold_percent = $3`,
		config.TargetAmount, config.AutoRefill, config.AlertThresholdPercent)
	if err != nil {
		return databaseError(fmt.Errorf("upserting reserve config: %w", err))
	}
	return nil
}
