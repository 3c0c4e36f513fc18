package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/satchelwallet/satchel/api/cashu"
	"github.com/satchelwallet/satchel/internal/database"
)

var (
	ErrInvalidPendingState = errors.New("Claim target must be a pending state")
	ErrEmptyClaim          = errors.New("Claim needs at least one proof id")
)

// Outcome tells Finalize which side of the pending fork to take.
type Outcome int

const (
	Committed Outcome = iota + 1
	Aborted
)

// Ledger owns every proof state transition. Each exported method runs in
// exactly one database transaction, so a crash between calls leaves no
// half-applied operation behind.
type Ledger struct {
	db     database.WalletDB
	logger *slog.Logger
}

func NewLedger(db database.WalletDB, logger *slog.Logger) *Ledger {
	return &Ledger{db: db, logger: logger}
}

func (l *Ledger) rollback(ctx context.Context, tx pgx.Tx) {
	if err := l.db.Rollback(ctx, tx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		l.logger.Error("transaction rollback failed", slog.String("error", err.Error()))
	}
}

// Create stores freshly received proofs as unspent. A secret already stored
// surfaces as cashu.ErrDuplicateSecret with nothing written; callers treat a
// replayed import as benign.
func (l *Ledger) Create(ctx context.Context, mintId string, data []cashu.ProofData, reserved bool) (cashu.Proofs, error) {
	proofs := make(cashu.Proofs, 0, len(data))
	for _, d := range data {
		proof, err := d.Proof(uuid.NewString(), mintId, reserved)
		if err != nil {
			return nil, fmt.Errorf("d.Proof(uuid.NewString(), mintId, reserved): %w", err)
		}
		proofs = append(proofs, proof)
	}

	tx, err := l.db.GetTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("l.db.GetTx(ctx): %w", err)
	}
	defer l.rollback(ctx, tx)

	if _, err := l.db.GetMintById(tx, mintId); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cashu.ErrMintNotFound
		}
		return nil, fmt.Errorf("l.db.GetMintById(tx, mintId): %w", err)
	}

	if err := l.db.SaveProofs(tx, proofs); err != nil {
		return nil, err
	}

	if err := l.db.Commit(ctx, tx); err != nil {
		return nil, fmt.Errorf("l.db.Commit(ctx, tx): %w", err)
	}
	return proofs, nil
}

// Claim moves the listed proofs from unspent into the given pending state
// under a fresh lock owner. It is all or nothing: if any proof is already
// locked, spent or missing, nothing moves and claimed is false. Contention is
// an expected answer, not an error.
func (l *Ledger) Claim(ctx context.Context, ids []string, to cashu.ProofState) (string, bool, error) {
	if !to.Pending() {
		return "", false, ErrInvalidPendingState
	}
	if len(ids) == 0 {
		return "", false, ErrEmptyClaim
	}

	owner := uuid.NewString()

	tx, err := l.db.GetTx(ctx)
	if err != nil {
		return "", false, fmt.Errorf("l.db.GetTx(ctx): %w", err)
	}
	defer l.rollback(ctx, tx)

	claimed, err := l.db.ClaimProofs(tx, ids, cashu.PROOF_UNSPENT, to, owner, time.Now().Unix())
	if err != nil {
		return "", false, fmt.Errorf("l.db.ClaimProofs(tx, ids, cashu.PROOF_UNSPENT, to, owner, time.Now().Unix()): %w", err)
	}

	if claimed != int64(len(ids)) {
		return "", false, nil
	}

	if err := l.db.Commit(ctx, tx); err != nil {
		return "", false, fmt.Errorf("l.db.Commit(ctx, tx): %w", err)
	}
	return owner, true, nil
}

// Finalize resolves everything the owner holds: committed locks become spent,
// aborted locks return to unspent. An owner with nothing locked is a no-op,
// which makes retrying a finalize safe.
func (l *Ledger) Finalize(ctx context.Context, owner string, outcome Outcome) (int64, error) {
	to := cashu.PROOF_UNSPENT
	if outcome == Committed {
		to = cashu.PROOF_SPENT
	}

	tx, err := l.db.GetTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("l.db.GetTx(ctx): %w", err)
	}
	defer l.rollback(ctx, tx)

	released, err := l.db.ReleaseProofs(tx, owner, to)
	if err != nil {
		return 0, fmt.Errorf("l.db.ReleaseProofs(tx, owner, to): %w", err)
	}

	if err := l.db.Commit(ctx, tx); err != nil {
		return 0, fmt.Errorf("l.db.Commit(ctx, tx): %w", err)
	}
	return released, nil
}

// CommitSwap stores the proofs a swap returned and spends the inputs the
// owner had locked, in one transaction. Either the wallet ends up holding the
// new proofs with the old ones spent, or neither happened.
func (l *Ledger) CommitSwap(ctx context.Context, owner string, mintId string, data []cashu.ProofData, reserved bool) (cashu.Proofs, error) {
	proofs := make(cashu.Proofs, 0, len(data))
	for _, d := range data {
		proof, err := d.Proof(uuid.NewString(), mintId, reserved)
		if err != nil {
			return nil, fmt.Errorf("d.Proof(uuid.NewString(), mintId, reserved): %w", err)
		}
		proofs = append(proofs, proof)
	}

	tx, err := l.db.GetTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("l.db.GetTx(ctx): %w", err)
	}
	defer l.rollback(ctx, tx)

	if err := l.db.SaveProofs(tx, proofs); err != nil {
		return nil, err
	}

	if _, err := l.db.ReleaseProofs(tx, owner, cashu.PROOF_SPENT); err != nil {
		return nil, fmt.Errorf("l.db.ReleaseProofs(tx, owner, cashu.PROOF_SPENT): %w", err)
	}

	if err := l.db.Commit(ctx, tx); err != nil {
		return nil, fmt.Errorf("l.db.Commit(ctx, tx): %w", err)
	}
	return proofs, nil
}

// MarkReserved flips the reserve flag on unspent proofs and returns the ids
// it could not flip. Skipped proofs are reported, not failed on, since a
// proof racing into a pending state is normal.
func (l *Ledger) MarkReserved(ctx context.Context, ids []string, reserved bool) ([]string, error) {
	tx, err := l.db.GetTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("l.db.GetTx(ctx): %w", err)
	}
	defer l.rollback(ctx, tx)

	updated, err := l.db.SetProofsReserved(tx, ids, reserved)
	if err != nil {
		return nil, fmt.Errorf("l.db.SetProofsReserved(tx, ids, reserved): %w", err)
	}

	if err := l.db.Commit(ctx, tx); err != nil {
		return nil, fmt.Errorf("l.db.Commit(ctx, tx): %w", err)
	}

	updatedSet := make(map[string]bool, len(updated))
	for _, id := range updated {
		updatedSet[id] = true
	}
	var skipped []string
	for _, id := range ids {
		if !updatedSet[id] {
			skipped = append(skipped, id)
		}
	}
	if len(skipped) > 0 {
		l.logger.Warn("some proofs were not in a flippable state",
			slog.Int("requested", len(ids)),
			slog.Int("skipped", len(skipped)))
	}
	return skipped, nil
}

// Invalidate marks proofs the mint rejected so they are never selected again.
func (l *Ledger) Invalidate(ctx context.Context, ids []string) error {
	tx, err := l.db.GetTx(ctx)
	if err != nil {
		return fmt.Errorf("l.db.GetTx(ctx): %w", err)
	}
	defer l.rollback(ctx, tx)

	if err := l.db.SetProofsState(tx, ids, cashu.PROOF_INVALID); err != nil {
		return fmt.Errorf("l.db.SetProofsState(tx, ids, cashu.PROOF_INVALID): %w", err)
	}

	if err := l.db.Commit(ctx, tx); err != nil {
		return fmt.Errorf("l.db.Commit(ctx, tx): %w", err)
	}
	return nil
}

func (l *Ledger) ProofsByMint(ctx context.Context, mintId string, state *cashu.ProofState, reserved *bool) (cashu.Proofs, error) {
	tx, err := l.db.GetTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("l.db.GetTx(ctx): %w", err)
	}
	defer l.rollback(ctx, tx)

	proofs, err := l.db.GetProofsByMint(tx, mintId, state, reserved)
	if err != nil {
		return nil, fmt.Errorf("l.db.GetProofsByMint(tx, mintId, state, reserved): %w", err)
	}

	if err := l.db.Commit(ctx, tx); err != nil {
		return nil, fmt.Errorf("l.db.Commit(ctx, tx): %w", err)
	}
	return proofs, nil
}

func (l *Ledger) ProofBySecret(ctx context.Context, secret string) (cashu.Proof, error) {
	tx, err := l.db.GetTx(ctx)
	if err != nil {
		return cashu.Proof{}, fmt.Errorf("l.db.GetTx(ctx): %w", err)
	}
	defer l.rollback(ctx, tx)

	proof, err := l.db.GetProofBySecret(tx, secret)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return proof, cashu.ErrProofNotFound
		}
		return proof, fmt.Errorf("l.db.GetProofBySecret(tx, secret): %w", err)
	}

	if err := l.db.Commit(ctx, tx); err != nil {
		return proof, fmt.Errorf("l.db.Commit(ctx, tx): %w", err)
	}
	return proof, nil
}

// Balance sums unspent value at one mint, optionally split by the reserve
// flag. Pending and spent proofs never count toward balance.
func (l *Ledger) Balance(ctx context.Context, mintId string, reserved *bool) (uint64, error) {
	tx, err := l.db.GetTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("l.db.GetTx(ctx): %w", err)
	}
	defer l.rollback(ctx, tx)

	balance, err := l.db.GetBalance(tx, mintId, cashu.PROOF_UNSPENT, reserved)
	if err != nil {
		return 0, fmt.Errorf("l.db.GetBalance(tx, mintId, cashu.PROOF_UNSPENT, reserved): %w", err)
	}

	if err := l.db.Commit(ctx, tx); err != nil {
		return 0, fmt.Errorf("l.db.Commit(ctx, tx): %w", err)
	}
	return balance, nil
}

func (l *Ledger) BalanceByMint(ctx context.Context) ([]database.MintBalance, error) {
	tx, err := l.db.GetTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("l.db.GetTx(ctx): %w", err)
	}
	defer l.rollback(ctx, tx)

	balances, err := l.db.GetBalanceByMint(tx, cashu.PROOF_UNSPENT)
	if err != nil {
		return nil, fmt.Errorf("l.db.GetBalanceByMint(tx, cashu.PROOF_UNSPENT): %w", err)
	}

	if err := l.db.Commit(ctx, tx); err != nil {
		return nil, fmt.Errorf("l.db.Commit(ctx, tx): %w", err)
	}
	return balances, nil
}

// StaleOwners lists lock owners whose claim is older than the cutoff.
func (l *Ledger) StaleOwners(ctx context.Context, lockedBefore time.Time) ([]string, error) {
	tx, err := l.db.GetTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("l.db.GetTx(ctx): %w", err)
	}
	defer l.rollback(ctx, tx)

	owners, err := l.db.GetStaleLockOwners(tx, lockedBefore.Unix())
	if err != nil {
		return nil, fmt.Errorf("l.db.GetStaleLockOwners(tx, lockedBefore.Unix()): %w", err)
	}

	if err := l.db.Commit(ctx, tx); err != nil {
		return nil, fmt.Errorf("l.db.Commit(ctx, tx): %w", err)
	}
	return owners, nil
}

// ProofsByOwner lists what a lock owner currently holds, for inspection.
func (l *Ledger) ProofsByOwner(ctx context.Context, owner string) (cashu.Proofs, error) {
	tx, err := l.db.GetTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("l.db.GetTx(ctx): %w", err)
	}
	defer l.rollback(ctx, tx)

	proofs, err := l.db.GetProofsByOwner(tx, owner)
	if err != nil {
		return nil, fmt.Errorf("l.db.GetProofsByOwner(tx, owner): %w", err)
	}

	if err := l.db.Commit(ctx, tx); err != nil {
		return nil, fmt.Errorf("l.db.Commit(ctx, tx): %w", err)
	}
	return proofs, nil
}
