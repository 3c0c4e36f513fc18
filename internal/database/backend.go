package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/satchelwallet/satchel/api/cashu"
)

var ErrDB = errors.New("ERROR DATABASE")

// MintBalance is the unspent sum a single mint backs.
type MintBalance struct {
	MintId  string `db:"mint_id"`
	Balance uint64 `db:"balance"`
}

// WalletDB is the persistent store of the wallet core. Every mutating call
// takes the transaction it runs under; the ledger wraps each of its
// operations in exactly one transaction so a crash leaves the store in a
// well-defined pre or post state, never a partial one.
type WalletDB interface {
	GetTx(ctx context.Context) (pgx.Tx, error)
	Commit(ctx context.Context, tx pgx.Tx) error
	Rollback(ctx context.Context, tx pgx.Tx) error

	SaveMint(tx pgx.Tx, mint cashu.Mint) error
	GetMintById(tx pgx.Tx, id string) (cashu.Mint, error)
	GetMintByUrl(tx pgx.Tx, url string) (cashu.Mint, error)
	GetAllMints(tx pgx.Tx) ([]cashu.Mint, error)
	UpdateMintTrust(tx pgx.Tx, id string, level cashu.TrustLevel) error
	UpdateMintLastSynced(tx pgx.Tx, id string, syncedAt int64) error

	SaveKeyset(tx pgx.Tx, keyset cashu.Keyset) error
	GetKeysetsByMint(tx pgx.Tx, mintId string) ([]cashu.Keyset, error)
	// ActivateKeyset marks one keyset active and deactivates every other
	// keyset of the same mint in the same transaction.
	ActivateKeyset(tx pgx.Tx, mintId string, keysetId string) error

	// SaveProofs inserts new proofs. A secret collision returns
	// cashu.ErrDuplicateSecret and inserts nothing.
	SaveProofs(tx pgx.Tx, proofs cashu.Proofs) error
	GetProofById(tx pgx.Tx, id string) (cashu.Proof, error)
	GetProofBySecret(tx pgx.Tx, secret string) (cashu.Proof, error)
	GetProofsByMint(tx pgx.Tx, mintId string, state *cashu.ProofState, reserved *bool) (cashu.Proofs, error)
	GetProofsByOwner(tx pgx.Tx, owner string) (cashu.Proofs, error)

	// ClaimProofs transitions every listed proof from the expected state to
	// the pending state under the owner, refusing rows that are already
	// locked. It reports how many rows actually moved; the caller compares
	// against len(ids) and rolls the transaction back on a partial claim.
	ClaimProofs(tx pgx.Tx, ids []string, from cashu.ProofState, to cashu.ProofState, owner string, lockedAt int64) (int64, error)
	// ReleaseProofs finalizes every proof locked under the owner into the
	// given state and clears the lock. Zero matching rows is a no-op.
	ReleaseProofs(tx pgx.Tx, owner string, to cashu.ProofState) (int64, error)
	// SetProofsReserved flips the reserve flag on unspent proofs only and
	// returns the ids that were actually updated.
	SetProofsReserved(tx pgx.Tx, ids []string, reserved bool) ([]string, error)
	SetProofsState(tx pgx.Tx, ids []string, state cashu.ProofState) error

	GetBalance(tx pgx.Tx, mintId string, state cashu.ProofState, reserved *bool) (uint64, error)
	GetBalanceByMint(tx pgx.Tx, state cashu.ProofState) ([]MintBalance, error)
	GetStaleLockOwners(tx pgx.Tx, lockedBefore int64) ([]string, error)

	// GetReserveConfig returns cashu.ErrReserveConfigMissing when no config
	// row has been written yet, so callers can tell "no config" apart from a
	// load failure.
	GetReserveConfig(tx pgx.Tx) (cashu.ReserveConfig, error)
	UpsertReserveConfig(tx pgx.Tx, config cashu.ReserveConfig) error
}
