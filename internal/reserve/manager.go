package reserve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/satchelwallet/satchel/api/cashu"
	"github.com/satchelwallet/satchel/internal/database"
	"github.com/satchelwallet/satchel/internal/ledger"
	"github.com/satchelwallet/satchel/internal/mintclient"
	"github.com/satchelwallet/satchel/internal/selection"
)

// Reserve sync thresholds, in percent of the configured target.
const (
	syncedPercent       = 95
	offlineReadyPercent = 50
	refillPercent       = 80
)

type SyncState string

const (
	StateSynced       SyncState = "SYNCED"
	StateOfflineReady SyncState = "OFFLINE_READY"
	StateOutOfSync    SyncState = "OUT_OF_SYNC"
	StateDepleted     SyncState = "DEPLETED"
)

type AlertLevel string

const (
	AlertNone     AlertLevel = "NONE"
	AlertLow      AlertLevel = "LOW"
	AlertCritical AlertLevel = "CRITICAL"
)

// Status is a point in time reading of the offline reserve against its
// target.
type Status struct {
	MintId           string     `json:"mint_id"`
	TargetAmount     uint64     `json:"target_amount"`
	ReserveBalance   uint64     `json:"reserve_balance"`
	SpendableBalance uint64     `json:"spendable_balance"`
	Percent          uint64     `json:"percent"`
	State            SyncState  `json:"state"`
	Alert            AlertLevel `json:"alert"`
	NeedsRefill      bool       `json:"needs_refill"`
}

type RefillOutcome string

const (
	RefillCompleted RefillOutcome = "COMPLETED"
	RefillFailed    RefillOutcome = "FAILED"
)

// RefillResult reports what a refill attempt did. A failed selection, claim
// or swap is an outcome, not an error; errors are for the store itself
// misbehaving.
type RefillResult struct {
	Outcome RefillOutcome `json:"outcome"`
	Added   uint64        `json:"added"`
	Reason  string        `json:"reason,omitempty"`
}

// Spend is a reserve spend in flight: the proofs are locked under Owner until
// the caller finalizes the hand off.
type Spend struct {
	Owner  string       `json:"owner"`
	Proofs cashu.Proofs `json:"proofs"`
	Total  uint64       `json:"total"`
	Change uint64       `json:"change"`
}

// Health is the operator's view of one mint's reserve. It is advisory only
// and never blocks other operations.
type Health struct {
	Status          Status   `json:"status"`
	Healthy         bool     `json:"healthy"`
	OverProvisioned bool     `json:"over_provisioned"`
	Issues          []string `json:"issues,omitempty"`
}

// Manager runs the reserve policy for the wallet: it watches the reserved
// balance against the configured target, tops it up by swapping spendable
// proofs at the mint, and hands out reserve proofs for offline spends.
type Manager struct {
	ledger *ledger.Ledger
	db     database.WalletDB
	client mintclient.MintClient
	logger *slog.Logger
}

func NewManager(ledger *ledger.Ledger, db database.WalletDB, client mintclient.MintClient, logger *slog.Logger) *Manager {
	return &Manager{
		ledger: ledger,
		db:     db,
		client: client,
		logger: logger,
	}
}

func (m *Manager) mintById(ctx context.Context, mintId string) (cashu.Mint, error) {
	tx, err := m.db.GetTx(ctx)
	if err != nil {
		return cashu.Mint{}, fmt.Errorf("m.db.GetTx(ctx): %w", err)
	}
	defer func() {
		if err := m.db.Rollback(ctx, tx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			m.logger.Error("transaction rollback failed", slog.String("error", err.Error()))
		}
	}()

	mint, err := m.db.GetMintById(tx, mintId)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mint, cashu.ErrMintNotFound
		}
		return mint, fmt.Errorf("m.db.GetMintById(tx, mintId): %w", err)
	}

	if err := m.db.Commit(ctx, tx); err != nil {
		return mint, fmt.Errorf("m.db.Commit(ctx, tx): %w", err)
	}
	return mint, nil
}

// Status reads the reserve against the target. All threshold comparisons stay
// in integer math so a status never depends on float rounding.
func (m *Manager) Status(ctx context.Context, mintId string) (Status, error) {
	config, err := m.Config(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("m.Config(ctx): %w", err)
	}

	if _, err := m.mintById(ctx, mintId); err != nil {
		return Status{}, err
	}

	reserved := true
	reserveBalance, err := m.ledger.Balance(ctx, mintId, &reserved)
	if err != nil {
		return Status{}, fmt.Errorf("m.ledger.Balance(ctx, mintId, &reserved): %w", err)
	}
	notReserved := false
	spendableBalance, err := m.ledger.Balance(ctx, mintId, &notReserved)
	if err != nil {
		return Status{}, fmt.Errorf("m.ledger.Balance(ctx, mintId, &notReserved): %w", err)
	}

	return buildStatus(mintId, config, reserveBalance, spendableBalance), nil
}

func buildStatus(mintId string, config cashu.ReserveConfig, reserveBalance uint64, spendableBalance uint64) Status {
	target := config.TargetAmount

	status := Status{
		MintId:           mintId,
		TargetAmount:     target,
		ReserveBalance:   reserveBalance,
		SpendableBalance: spendableBalance,
		Percent:          reserveBalance * 100 / target,
	}

	switch {
	case reserveBalance == 0:
		status.State = StateDepleted
	case reserveBalance*100 >= syncedPercent*target:
		status.State = StateSynced
	case reserveBalance*100 >= offlineReadyPercent*target:
		status.State = StateOfflineReady
	default:
		status.State = StateOutOfSync
	}

	threshold := uint64(config.AlertThresholdPercent)
	switch {
	case reserveBalance*100 < threshold*target:
		status.Alert = AlertCritical
	case reserveBalance*100 < 2*threshold*target:
		status.Alert = AlertLow
	default:
		status.Alert = AlertNone
	}

	status.NeedsRefill = reserveBalance*100 < refillPercent*target

	return status
}

// Refill tops the reserve up to the target by swapping spendable proofs at
// the mint for fresh reserved ones. The swap inputs stay locked as pending
// for the whole mint round trip, so a crash mid swap leaves them to the
// staleness sweep instead of double spending them.
func (m *Manager) Refill(ctx context.Context, mintId string) (RefillResult, error) {
	config, err := m.Config(ctx)
	if err != nil {
		return RefillResult{}, fmt.Errorf("m.Config(ctx): %w", err)
	}

	mint, err := m.mintById(ctx, mintId)
	if err != nil {
		return RefillResult{}, err
	}

	status, err := m.Status(ctx, mintId)
	if err != nil {
		return RefillResult{}, fmt.Errorf("m.Status(ctx, mintId): %w", err)
	}
	if status.State == StateSynced {
		return RefillResult{Outcome: RefillCompleted, Reason: "reserve already synced"}, nil
	}

	deficit := config.TargetAmount - status.ReserveBalance

	unspent := cashu.PROOF_UNSPENT
	notReserved := false
	pool, err := m.ledger.ProofsByMint(ctx, mintId, &unspent, &notReserved)
	if err != nil {
		return RefillResult{}, fmt.Errorf("m.ledger.ProofsByMint(ctx, mintId, &unspent, &notReserved): %w", err)
	}

	selected, err := selection.Select(pool, deficit)
	if err != nil {
		var insufficient *selection.InsufficientFundsError
		if errors.As(err, &insufficient) {
			return RefillResult{
				Outcome: RefillFailed,
				Reason:  insufficient.Error(),
			}, nil
		}
		return RefillResult{}, fmt.Errorf("selection.Select(pool, deficit): %w", err)
	}

	owner, claimed, err := m.ledger.Claim(ctx, selected.Chosen.Ids(), cashu.PROOF_PENDING_SWAP)
	if err != nil {
		return RefillResult{}, fmt.Errorf("m.ledger.Claim(ctx, selected.Chosen.Ids(), cashu.PROOF_PENDING_SWAP): %w", err)
	}
	if !claimed {
		return RefillResult{Outcome: RefillFailed, Reason: "selected proofs were claimed concurrently"}, nil
	}

	m.logger.Info("refilling reserve",
		slog.String("mintId", mintId),
		slog.Uint64("deficit", deficit),
		slog.Uint64("swapping", selected.Total),
		slog.String("owner", owner))

	fresh, err := m.client.Swap(ctx, mint.Url, selected.Chosen.Data())
	if err != nil {
		if releaseErr := m.abortRefill(ctx, owner, selected.Chosen.Ids(), err); releaseErr != nil {
			return RefillResult{}, releaseErr
		}
		return RefillResult{
			Outcome: RefillFailed,
			Reason:  err.Error(),
		}, nil
	}

	minted, err := m.ledger.CommitSwap(ctx, owner, mintId, fresh, true)
	if err != nil {
		return RefillResult{}, fmt.Errorf("m.ledger.CommitSwap(ctx, owner, mintId, fresh, true): %w", err)
	}

	m.logger.Info("reserve refilled",
		slog.String("mintId", mintId),
		slog.Uint64("added", minted.Amount()))

	return RefillResult{Outcome: RefillCompleted, Added: minted.Amount()}, nil
}

// abortRefill puts failed swap inputs back where they belong: unspent when
// the failure was transient, invalid when the mint rejected the proofs
// themselves.
func (m *Manager) abortRefill(ctx context.Context, owner string, ids []string, swapErr error) error {
	if _, err := m.ledger.Finalize(ctx, owner, ledger.Aborted); err != nil {
		return fmt.Errorf("m.ledger.Finalize(ctx, owner, ledger.Aborted): %w", err)
	}

	var errorResponse cashu.ErrorResponse
	if errors.As(swapErr, &errorResponse) && errorResponse.RejectedProofs() {
		m.logger.Error("mint rejected swap inputs, invalidating",
			slog.String("owner", owner),
			slog.Int("proofs", len(ids)),
			slog.String("error", swapErr.Error()))
		if err := m.ledger.Invalidate(ctx, ids); err != nil {
			return fmt.Errorf("m.ledger.Invalidate(ctx, ids): %w", err)
		}
		return nil
	}

	m.logger.Warn("swap failed, inputs released",
		slog.String("owner", owner),
		slog.String("error", swapErr.Error()))
	return nil
}

// RefillIfNeeded is the auto refill entry point. It does nothing unless auto
// refill is on and the reserve has drifted below the refill threshold.
func (m *Manager) RefillIfNeeded(ctx context.Context, mintId string) (*RefillResult, error) {
	config, err := m.Config(ctx)
	if err != nil {
		return nil, fmt.Errorf("m.Config(ctx): %w", err)
	}
	if !config.AutoRefill {
		return nil, nil
	}

	status, err := m.Status(ctx, mintId)
	if err != nil {
		return nil, fmt.Errorf("m.Status(ctx, mintId): %w", err)
	}
	if !status.NeedsRefill {
		return nil, nil
	}

	result, err := m.Refill(ctx, mintId)
	if err != nil {
		return nil, fmt.Errorf("m.Refill(ctx, mintId): %w", err)
	}
	return &result, nil
}

// AutoRefill runs RefillIfNeeded against every known mint. Per mint failures
// are logged and do not stop the pass; only a store failure aborts it.
func (m *Manager) AutoRefill(ctx context.Context) error {
	tx, err := m.db.GetTx(ctx)
	if err != nil {
		return fmt.Errorf("m.db.GetTx(ctx): %w", err)
	}
	defer m.db.Rollback(ctx, tx)

	mints, err := m.db.GetAllMints(tx)
	if err != nil {
		return fmt.Errorf("m.db.GetAllMints(tx): %w", err)
	}
	if err := m.db.Commit(ctx, tx); err != nil {
		return fmt.Errorf("m.db.Commit(ctx, tx): %w", err)
	}

	for _, mint := range mints {
		result, err := m.RefillIfNeeded(ctx, mint.Id)
		if err != nil {
			return fmt.Errorf("m.RefillIfNeeded(ctx, mint.Id): %w", err)
		}
		if result != nil && result.Outcome == RefillFailed {
			m.logger.Warn("auto refill failed",
				slog.String("mintId", mint.Id),
				slog.String("reason", result.Reason))
		}
	}
	return nil
}

// Start runs the auto refill pass on a ticker until the context is done.
func (m *Manager) Start(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.AutoRefill(ctx); err != nil {
				m.logger.Error("auto refill pass failed", slog.Any("error", err))
			}
		}
	}
}

// SpendFromReserve picks reserve proofs covering the amount and locks them
// for an offline hand off. It returns nil when the reserve cannot cover the
// amount or loses the claim race; the caller decides whether to retry.
func (m *Manager) SpendFromReserve(ctx context.Context, mintId string, amount uint64) (*Spend, error) {
	unspent := cashu.PROOF_UNSPENT
	reserved := true
	pool, err := m.ledger.ProofsByMint(ctx, mintId, &unspent, &reserved)
	if err != nil {
		return nil, fmt.Errorf("m.ledger.ProofsByMint(ctx, mintId, &unspent, &reserved): %w", err)
	}

	selected, err := selection.Select(pool, amount)
	if err != nil {
		var insufficient *selection.InsufficientFundsError
		if errors.As(err, &insufficient) {
			m.logger.Warn("reserve cannot cover spend",
				slog.String("mintId", mintId),
				slog.Uint64("requested", insufficient.Requested),
				slog.Uint64("available", insufficient.Available))
			return nil, nil
		}
		return nil, fmt.Errorf("selection.Select(pool, amount): %w", err)
	}

	owner, claimed, err := m.ledger.Claim(ctx, selected.Chosen.Ids(), cashu.PROOF_PENDING_SEND)
	if err != nil {
		return nil, fmt.Errorf("m.ledger.Claim(ctx, selected.Chosen.Ids(), cashu.PROOF_PENDING_SEND): %w", err)
	}
	if !claimed {
		return nil, nil
	}

	m.logger.Info("reserve spend locked",
		slog.String("mintId", mintId),
		slog.Uint64("amount", amount),
		slog.Uint64("total", selected.Total),
		slog.String("owner", owner))

	return &Spend{
		Owner:  owner,
		Proofs: selected.Chosen,
		Total:  selected.Total,
		Change: selected.Change,
	}, nil
}

// HealthCheck summarizes the reserve for operators: sync state, alert level
// and anything that wants attention.
func (m *Manager) HealthCheck(ctx context.Context, mintId string) (Health, error) {
	status, err := m.Status(ctx, mintId)
	if err != nil {
		return Health{}, fmt.Errorf("m.Status(ctx, mintId): %w", err)
	}

	health := Health{Status: status}

	switch status.State {
	case StateDepleted:
		health.Issues = append(health.Issues, "reserve is depleted, offline spending unavailable")
	case StateOutOfSync:
		health.Issues = append(health.Issues, "reserve is out of sync with its target")
	}
	if status.Alert == AlertCritical {
		health.Issues = append(health.Issues, "reserve balance below alert threshold")
	}

	// capital efficiency: a target above half the wallet balance pins too
	// much of the wallet in the reserve
	total := status.ReserveBalance + status.SpendableBalance
	if total > 0 && 2*status.TargetAmount > total {
		health.OverProvisioned = true
		health.Issues = append(health.Issues, "reserve target exceeds half the wallet balance")
	}

	health.Healthy = len(health.Issues) == 0
	return health, nil
}
