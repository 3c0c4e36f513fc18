package mock_db

import (
	"context"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/satchelwallet/satchel/api/cashu"
	"github.com/satchelwallet/satchel/internal/database"
)

// MockDB keeps everything in maps behind one mutex. It honors the same
// claim and release semantics as the postgres store so the ledger's
// concurrency behavior can be tested without a container.
type MockDB struct {
	mu sync.Mutex

	Mints   map[string]cashu.Mint
	Keysets map[string]cashu.Keyset
	Proofs  map[string]cashu.Proof
	Config  *cashu.ReserveConfig
}

func NewMockDB() *MockDB {
	return &MockDB{
		Mints:   make(map[string]cashu.Mint),
		Keysets: make(map[string]cashu.Keyset),
		Proofs:  make(map[string]cashu.Proof),
	}
}

func (m *MockDB) GetTx(ctx context.Context) (pgx.Tx, error) {
	return &pgxpool.Tx{}, nil
}
func (m *MockDB) Commit(ctx context.Context, tx pgx.Tx) error {
	return nil
}
func (m *MockDB) Rollback(ctx context.Context, tx pgx.Tx) error {
	return nil
}

func (m *MockDB) SaveMint(tx pgx.Tx, mint cashu.Mint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Mints[mint.Id] = mint
	return nil
}

func (m *MockDB) GetMintById(tx pgx.Tx, id string) (cashu.Mint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mint, ok := m.Mints[id]
	if !ok {
		return mint, pgx.ErrNoRows
	}
	return mint, nil
}

func (m *MockDB) GetMintByUrl(tx pgx.Tx, url string) (cashu.Mint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mint := range m.Mints {
		if mint.Url == url {
			return mint, nil
		}
	}
	return cashu.Mint{}, pgx.ErrNoRows
}

func (m *MockDB) GetAllMints(tx pgx.Tx) ([]cashu.Mint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mints := make([]cashu.Mint, 0, len(m.Mints))
	for _, mint := range m.Mints {
		mints = append(mints, mint)
	}
	sort.Slice(mints, func(i, j int) bool { return mints[i].Url < mints[j].Url })
	return mints, nil
}

func (m *MockDB) UpdateMintTrust(tx pgx.Tx, id string, level cashu.TrustLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mint, ok := m.Mints[id]
	if !ok {
		return nil
	}
	mint.TrustLevel = level
	m.Mints[id] = mint
	return nil
}

func (m *MockDB) UpdateMintLastSynced(tx pgx.Tx, id string, syncedAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mint, ok := m.Mints[id]
	if !ok {
		return nil
	}
	mint.LastSyncedAt = syncedAt
	m.Mints[id] = mint
	return nil
}

func (m *MockDB) SaveKeyset(tx pgx.Tx, keyset cashu.Keyset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Keysets[keyset.Id] = keyset
	return nil
}

func (m *MockDB) GetKeysetsByMint(tx pgx.Tx, mintId string) ([]cashu.Keyset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keysets []cashu.Keyset
	for _, keyset := range m.Keysets {
		if keyset.MintId == mintId {
			keysets = append(keysets, keyset)
		}
	}
	sort.Slice(keysets, func(i, j int) bool { return keysets[i].CreatedAt > keysets[j].CreatedAt })
	return keysets, nil
}

func (m *MockDB) ActivateKeyset(tx pgx.Tx, mintId string, keysetId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, keyset := range m.Keysets {
		if keyset.MintId != mintId {
			continue
		}
		keyset.Active = id == keysetId
		m.Keysets[id] = keyset
	}
	return nil
}

func (m *MockDB) SaveProofs(tx pgx.Tx, proofs cashu.Proofs) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, proof := range proofs {
		for _, stored := range m.Proofs {
			if stored.Secret == proof.Secret {
				return cashu.ErrDuplicateSecret
			}
		}
	}
	for _, proof := range proofs {
		m.Proofs[proof.Id] = proof
	}
	return nil
}

func (m *MockDB) GetProofById(tx pgx.Tx, id string) (cashu.Proof, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	proof, ok := m.Proofs[id]
	if !ok {
		return proof, pgx.ErrNoRows
	}
	return proof, nil
}

func (m *MockDB) GetProofBySecret(tx pgx.Tx, secret string) (cashu.Proof, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, proof := range m.Proofs {
		if proof.Secret == secret {
			return proof, nil
		}
	}
	return cashu.Proof{}, pgx.ErrNoRows
}

func sortProofs(proofs cashu.Proofs) {
	sort.Slice(proofs, func(i, j int) bool {
		if proofs[i].CreatedAt != proofs[j].CreatedAt {
			return proofs[i].CreatedAt < proofs[j].CreatedAt
		}
		return proofs[i].Id < proofs[j].Id
	})
}

func (m *MockDB) GetProofsByMint(tx pgx.Tx, mintId string, state *cashu.ProofState, reserved *bool) (cashu.Proofs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var proofs cashu.Proofs
	for _, proof := range m.Proofs {
		if proof.MintId != mintId {
			continue
		}
		if state != nil && proof.State != *state {
			continue
		}
		if reserved != nil && proof.Reserved != *reserved {
			continue
		}
		proofs = append(proofs, proof)
	}
	sortProofs(proofs)
	return proofs, nil
}

func (m *MockDB) GetProofsByOwner(tx pgx.Tx, owner string) (cashu.Proofs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var proofs cashu.Proofs
	for _, proof := range m.Proofs {
		if proof.LockOwner != nil && *proof.LockOwner == owner {
			proofs = append(proofs, proof)
		}
	}
	sortProofs(proofs)
	return proofs, nil
}

func (m *MockDB) ClaimProofs(tx pgx.Tx, ids []string, from cashu.ProofState, to cashu.ProofState, owner string, lockedAt int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var claimed int64
	for _, id := range ids {
		proof, ok := m.Proofs[id]
		if !ok || proof.State != from || proof.LockOwner != nil {
			continue
		}
		proof.State = to
		ownerCopy := owner
		lockedAtCopy := lockedAt
		proof.LockOwner = &ownerCopy
		proof.LockedAt = &lockedAtCopy
		m.Proofs[id] = proof
		claimed++
	}
	// A partial claim means the caller will roll back, which the postgres
	// store undoes for free. Mirror that by reverting here.
	if claimed != int64(len(ids)) {
		for _, id := range ids {
			proof, ok := m.Proofs[id]
			if !ok || proof.LockOwner == nil || *proof.LockOwner != owner {
				continue
			}
			proof.State = from
			proof.LockOwner = nil
			proof.LockedAt = nil
			m.Proofs[id] = proof
		}
	}
	return claimed, nil
}

func (m *MockDB) ReleaseProofs(tx pgx.Tx, owner string, to cashu.ProofState) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var released int64
	for id, proof := range m.Proofs {
		if proof.LockOwner == nil || *proof.LockOwner != owner {
			continue
		}
		proof.State = to
		proof.LockOwner = nil
		proof.LockedAt = nil
		m.Proofs[id] = proof
		released++
	}
	return released, nil
}

func (m *MockDB) SetProofsReserved(tx pgx.Tx, ids []string, reserved bool) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var updated []string
	for _, id := range ids {
		proof, ok := m.Proofs[id]
		if !ok || proof.State != cashu.PROOF_UNSPENT {
			continue
		}
		proof.Reserved = reserved
		m.Proofs[id] = proof
		updated = append(updated, id)
	}
	return updated, nil
}

func (m *MockDB) SetProofsState(tx pgx.Tx, ids []string, state cashu.ProofState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		proof, ok := m.Proofs[id]
		if !ok {
			continue
		}
		proof.State = state
		proof.LockOwner = nil
		proof.LockedAt = nil
		m.Proofs[id] = proof
	}
	return nil
}

func (m *MockDB) GetBalance(tx pgx.Tx, mintId string, state cashu.ProofState, reserved *bool) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var balance uint64
	for _, proof := range m.Proofs {
		if proof.MintId != mintId || proof.State != state {
			continue
		}
		if reserved != nil && proof.Reserved != *reserved {
			continue
		}
		balance += proof.Amount
	}
	return balance, nil
}

func (m *MockDB) GetBalanceByMint(tx pgx.Tx, state cashu.ProofState) ([]database.MintBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sums := make(map[string]uint64)
	for _, proof := range m.Proofs {
		if proof.State == state {
			sums[proof.MintId] += proof.Amount
		}
	}
	balances := make([]database.MintBalance, 0, len(sums))
	for mintId, balance := range sums {
		balances = append(balances, database.MintBalance{MintId: mintId, Balance: balance})
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].MintId < balances[j].MintId })
	return balances, nil
}

func (m *MockDB) GetStaleLockOwners(tx pgx.Tx, lockedBefore int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool)
	var owners []string
	for _, proof := range m.Proofs {
		if proof.LockOwner == nil || proof.LockedAt == nil || *proof.LockedAt >= lockedBefore {
			continue
		}
		if !seen[*proof.LockOwner] {
			seen[*proof.LockOwner] = true
			owners = append(owners, *proof.LockOwner)
		}
	}
	sort.Strings(owners)
	return owners, nil
}

func (m *MockDB) GetReserveConfig(tx pgx.Tx) (cashu.ReserveConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Config == nil {
		return cashu.ReserveConfig{}, cashu.ErrReserveConfigMissing
	}
	return *m.Config, nil
}

func (m *MockDB) UpsertReserveConfig(tx pgx.Tx, config cashu.ReserveConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Config = &config
	return nil
}
