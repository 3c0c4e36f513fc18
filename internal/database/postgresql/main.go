package postgresql

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/satchelwallet/satchel/api/cashu"
	"github.com/satchelwallet/satchel/internal/database"
	"github.com/satchelwallet/satchel/internal/database/goose"
)

var DATABASE_URL_ENV = "DATABASE_URL"

const pgUniqueViolation = "23505"

type Postgresql struct {
	pool *pgxpool.Pool
}

func databaseError(err error) error {
	return errors.Join(database.ErrDB, err)
}

func DatabaseSetup(ctx context.Context, migrationDir string) (Postgresql, error) {

	var postgresql Postgresql

	dbUrl := os.Getenv(DATABASE_URL_ENV)
	if dbUrl == "" {
		return postgresql, fmt.Errorf("%v enviroment variable empty", DATABASE_URL_ENV)
	}

	pool, err := pgxpool.New(context.Background(), dbUrl)
	if err != nil {
		return postgresql, fmt.Errorf("pgxpool.New: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)

	err = goose.RunMigration(db, goose.POSTGRES)
	if err := db.Close(); err != nil {
		panic(err)
	}

	if err != nil {
		return postgresql, databaseError(fmt.Errorf("error running migrations: %w", err))
	}
	postgresql.pool = pool

	return postgresql, nil
}

func (pql Postgresql) Close() {
	pql.pool.Close()
}

func (pql Postgresql) GetTx(ctx context.Context) (pgx.Tx, error) {
	return pql.pool.Begin(ctx)
}
func (pql Postgresql) Commit(ctx context.Context, tx pgx.Tx) error {
	return tx.Commit(ctx)
}
func (pql Postgresql) Rollback(ctx context.Context, tx pgx.Tx) error {
	return tx.Rollback(ctx)
}

func (pql Postgresql) SaveMint(tx pgx.Tx, mint cashu.Mint) error {
	_, err := tx.Exec(context.Background(), "INSERT INTO mints (id, url, trust_level, last_synced_at) VALUES ($1, $2, $3, $4)", mint.Id, mint.Url, mint.TrustLevel, mint.LastSyncedAt)
	if err != nil {
		return databaseError(fmt.Errorf("inserting to mints: %w", err))
	}
	return nil
}

func (pql Postgresql) GetMintById(tx pgx.Tx, id string) (cashu.Mint, error) {
	rows, err := tx.Query(context.Background(), "SELECT id, url, trust_level, last_synced_at FROM mints WHERE id = $1", id)
	if err != nil {
		return cashu.Mint{}, databaseError(fmt.Errorf("checking for mint: %w", err))
	}
	defer rows.Close()

	mint, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[cashu.Mint])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mint, err
		}
		return mint, databaseError(fmt.Errorf("pgx.CollectOneRow(rows, pgx.RowToStructByName[cashu.Mint]): %w", err))
	}

	return mint, nil
}

func (pql Postgresql) GetMintByUrl(tx pgx.Tx, url string) (cashu.Mint, error) {
	rows, err := tx.Query(context.Background(), "SELECT id, url, trust_level, last_synced_at FROM mints WHERE url = $1", url)
	if err != nil {
		return cashu.Mint{}, databaseError(fmt.Errorf("checking for mint: %w", err))
	}
	defer rows.Close()

	mint, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[cashu.Mint])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mint, err
		}
		return mint, databaseError(fmt.Errorf("pgx.CollectOneRow(rows, pgx.RowToStructByName[cashu.Mint]): %w", err))
	}

	return mint, nil
}

func (pql Postgresql) GetAllMints(tx pgx.Tx) ([]cashu.Mint, error) {
	var mints []cashu.Mint

	rows, err := tx.Query(context.Background(), "SELECT id, url, trust_level, last_synced_at FROM mints ORDER BY url")
	if err != nil {
		return mints, databaseError(fmt.Errorf("checking for mints: %w", err))
	}
	defer rows.Close()

	mints, err = pgx.CollectRows(rows, pgx.RowToStructByName[cashu.Mint])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mints, nil
		}
		return mints, databaseError(fmt.Errorf("pgx.CollectRows(rows, pgx.RowToStructByName[cashu.Mint]): %w", err))
	}

	return mints, nil
}

func (pql Postgresql) UpdateMintTrust(tx pgx.Tx, id string, level cashu.TrustLevel) error {
	_, err := tx.Exec(context.Background(), "UPDATE mints SET trust_level = $1 WHERE id = $2", level, id)
	if err != nil {
		return databaseError(fmt.Errorf("updating mints: %w", err))
	}
	return nil
}

func (pql Postgresql) UpdateMintLastSynced(tx pgx.Tx, id string, syncedAt int64) error {
	_, err := tx.Exec(context.Background(), "UPDATE mints SET last_synced_at = $1 WHERE id = $2", syncedAt, id)
	if err != nil {
		return databaseError(fmt.Errorf("updating mints: %w", err))
	}
	return nil
}

func (pql Postgresql) SaveKeyset(tx pgx.Tx, keyset cashu.Keyset) error {
	_, err := tx.Exec(context.Background(), "INSERT INTO keysets (id, mint_id, external_keyset_id, active, created_at) VALUES ($1, $2, $3, $4, $5)", keyset.Id, keyset.MintId, keyset.ExternalKeysetId, keyset.Active, keyset.CreatedAt)
	if err != nil {
		return databaseError(fmt.Errorf("inserting to keysets: %w", err))
	}
	return nil
}

func (pql Postgresql) GetKeysetsByMint(tx pgx.Tx, mintId string) ([]cashu.Keyset, error) {
	var keysets []cashu.Keyset

	rows, err := tx.Query(context.Background(), "SELECT id, mint_id, external_keyset_id, active, created_at FROM keysets WHERE mint_id = $1 ORDER BY created_at DESC", mintId)
	if err != nil {
		return keysets, databaseError(fmt.Errorf("checking for keysets: %w", err))
	}
	defer rows.Close()

	keysets, err = pgx.CollectRows(rows, pgx.RowToStructByName[cashu.Keyset])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return keysets, nil
		}
		return keysets, databaseError(fmt.Errorf("pgx.CollectRows(rows, pgx.RowToStructByName[cashu.Keyset]): %w", err))
	}

	return keysets, nil
}

func (pql Postgresql) ActivateKeyset(tx pgx.Tx, mintId string, keysetId string) error {
	ctx := context.Background()

	_, err := tx.Exec(ctx, "UPDATE keysets SET active = FALSE WHERE mint_id = $1 AND id != $2", mintId, keysetId)
	if err != nil {
		return databaseError(fmt.Errorf("deactivating keysets: %w", err))
	}

	_, err = tx.Exec(ctx, "UPDATE keysets SET active = TRUE WHERE mint_id = $1 AND id = $2", mintId, keysetId)
	if err != nil {
		return databaseError(fmt.Errorf("activating keyset: %w", err))
	}
	return nil
}

func (pql Postgresql) SaveProofs(tx pgx.Tx, proofs cashu.Proofs) error {
	batch := pgx.Batch{}
	for _, proof := range proofs {
		batch.Queue("INSERT INTO proofs (id, amount, secret, c, y, mint_id, keyset_id, state, reserved, lock_owner, locked_at, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)",
			proof.Id, proof.Amount, proof.Secret, proof.C, proof.Y, proof.MintId, proof.KeysetId, proof.State, proof.Reserved, proof.LockOwner, proof.LockedAt, proof.CreatedAt)
	}

	results := tx.SendBatch(context.Background(), &batch)
	err := results.Close()
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return cashu.ErrDuplicateSecret
		}
		return databaseError(fmt.Errorf("inserting to proofs: %w", err))
	}

	return nil
}

const proofColumns = "id, amount, secret, c, y, mint_id, keyset_id, state, reserved, lock_owner, locked_at, created_at"

func (pql Postgresql) GetProofById(tx pgx.Tx, id string) (cashu.Proof, error) {
	rows, err := tx.Query(context.Background(), "SELECT "+proofColumns+" FROM proofs WHERE id = $1", id)
	if err != nil {
		return cashu.Proof{}, databaseError(fmt.Errorf("checking for proof: %w", err))
	}
	defer rows.Close()

	proof, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[cashu.Proof])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return proof, err
		}
		return proof, databaseError(fmt.Errorf("pgx.CollectOneRow(rows, pgx.RowToStructByName[cashu.Proof]): %w", err))
	}

	return proof, nil
}

func (pql Postgresql) GetProofBySecret(tx pgx.Tx, secret string) (cashu.Proof, error) {
	rows, err := tx.Query(context.Background(), "SELECT "+proofColumns+" FROM proofs WHERE secret = $1", secret)
	if err != nil {
		return cashu.Proof{}, databaseError(fmt.Errorf("checking for proof: %w", err))
	}
	defer rows.Close()

	proof, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[cashu.Proof])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return proof, err
		}
		return proof, databaseError(fmt.Errorf("pgx.CollectOneRow(rows, pgx.RowToStructByName[cashu.Proof]): %w", err))
	}

	return proof, nil
}

func (pql Postgresql) GetProofsByMint(tx pgx.Tx, mintId string, state *cashu.ProofState, reserved *bool) (cashu.Proofs, error) {
	var proofs cashu.Proofs

	query := "SELECT " + proofColumns + " FROM proofs WHERE mint_id = @mint_id"
	args := pgx.NamedArgs{
		"mint_id": mintId,
	}
	if state != nil {
		query += " AND state = @state"
		args["state"] = *state
	}
	if reserved != nil {
		query += " AND reserved = @reserved"
		args["reserved"] = *reserved
	}
	query += " ORDER BY created_at, id"

	rows, err := tx.Query(context.Background(), query, args)
	if err != nil {
		return proofs, databaseError(fmt.Errorf("checking for proofs: %w", err))
	}
	defer rows.Close()

	proofs, err = pgx.CollectRows(rows, pgx.RowToStructByName[cashu.Proof])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return proofs, nil
		}
		return proofs, databaseError(fmt.Errorf("pgx.CollectRows(rows, pgx.RowToStructByName[cashu.Proof]): %w", err))
	}

	return proofs, nil
}

func (pql Postgresql) GetProofsByOwner(tx pgx.Tx, owner string) (cashu.Proofs, error) {
	var proofs cashu.Proofs

	rows, err := tx.Query(context.Background(), "SELECT "+proofColumns+" FROM proofs WHERE lock_owner = $1 ORDER BY created_at, id", owner)
	if err != nil {
		return proofs, databaseError(fmt.Errorf("checking for proofs: %w", err))
	}
	defer rows.Close()

	proofs, err = pgx.CollectRows(rows, pgx.RowToStructByName[cashu.Proof])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return proofs, nil
		}
		return proofs, databaseError(fmt.Errorf("pgx.CollectRows(rows, pgx.RowToStructByName[cashu.Proof]): %w", err))
	}

	return proofs, nil
}

// ClaimProofs relies on the UPDATE serializing on the rows it touches: two
// racing claims over an overlapping set cannot both match lock_owner IS NULL
// for the same row.
func (pql Postgresql) ClaimProofs(tx pgx.Tx, ids []string, from cashu.ProofState, to cashu.ProofState, owner string, lockedAt int64) (int64, error) {
	tag, err := tx.Exec(context.Background(),
		"UPDATE proofs SET state = $1, lock_owner = $2, locked_at = $3 WHERE id = ANY($4) AND state = $5 AND lock_owner IS NULL",
		to, owner, lockedAt, ids, from)
	if err != nil {
		return 0, databaseError(fmt.Errorf("claiming proofs: %w", err))
	}

	return tag.RowsAffected(), nil
}

func (pql Postgresql) ReleaseProofs(tx pgx.Tx, owner string, to cashu.ProofState) (int64, error) {
	tag, err := tx.Exec(context.Background(),
		"UPDATE proofs SET state = $1, lock_owner = NULL, locked_at = NULL WHERE lock_owner = $2",
		to, owner)
	if err != nil {
		return 0, databaseError(fmt.Errorf("releasing proofs: %w", err))
	}

	return tag.RowsAffected(), nil
}

func (pql Postgresql) SetProofsReserved(tx pgx.Tx, ids []string, reserved bool) ([]string, error) {
	var updated []string

	rows, err := tx.Query(context.Background(),
		"UPDATE proofs SET reserved = $1 WHERE id = ANY($2) AND state = $3 RETURNING id",
		reserved, ids, cashu.PROOF_UNSPENT)
	if err != nil {
		return updated, databaseError(fmt.Errorf("setting reserved flag: %w", err))
	}
	defer rows.Close()

	updated, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return updated, nil
		}
		return updated, databaseError(fmt.Errorf("pgx.CollectRows(rows, pgx.RowTo[string]): %w", err))
	}

	return updated, nil
}

func (pql Postgresql) SetProofsState(tx pgx.Tx, ids []string, state cashu.ProofState) error {
	_, err := tx.Exec(context.Background(), "UPDATE proofs SET state = $1, lock_owner = NULL, locked_at = NULL WHERE id = ANY($2)", state, ids)
	if err != nil {
		return databaseError(fmt.Errorf("updating proofs state: %w", err))
	}
	return nil
}

func (pql Postgresql) GetBalance(tx pgx.Tx, mintId string, state cashu.ProofState, reserved *bool) (uint64, error) {
	query := "SELECT COALESCE(SUM(amount), 0) FROM proofs WHERE mint_id = @mint_id AND state = @state"
	args := pgx.NamedArgs{
		"mint_id": mintId,
		"state":   state,
	}
	if reserved != nil {
		query += " AND reserved = @reserved"
		args["reserved"] = *reserved
	}

	var balance uint64
	err := tx.QueryRow(context.Background(), query, args).Scan(&balance)
	if err != nil {
		return 0, databaseError(fmt.Errorf("summing balance: %w", err))
	}

	return balance, nil
}

func (pql Postgresql) GetBalanceByMint(tx pgx.Tx, state cashu.ProofState) ([]database.MintBalance, error) {
	var balances []database.MintBalance

	rows, err := tx.Query(context.Background(), "SELECT mint_id, COALESCE(SUM(amount), 0) AS balance FROM proofs WHERE state = $1 GROUP BY mint_id ORDER BY mint_id", state)
	if err != nil {
		return balances, databaseError(fmt.Errorf("summing balances: %w", err))
	}
	defer rows.Close()

	balances, err = pgx.CollectRows(rows, pgx.RowToStructByName[database.MintBalance])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return balances, nil
		}
		return balances, databaseError(fmt.Errorf("pgx.CollectRows(rows, pgx.RowToStructByName[database.MintBalance]): %w", err))
	}

	return balances, nil
}

func (pql Postgresql) GetStaleLockOwners(tx pgx.Tx, lockedBefore int64) ([]string, error) {
	var owners []string

	rows, err := tx.Query(context.Background(), "SELECT DISTINCT lock_owner FROM proofs WHERE lock_owner IS NOT NULL AND locked_at < $1", lockedBefore)
	if err != nil {
		return owners, databaseError(fmt.Errorf("checking for stale locks: %w", err))
	}
	defer rows.Close()

	owners, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return owners, nil
		}
		return owners, databaseError(fmt.Errorf("pgx.CollectRows(rows, pgx.RowTo[string]): %w", err))
	}

	return owners, nil
}
