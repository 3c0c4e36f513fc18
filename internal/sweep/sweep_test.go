package sweep

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/satchelwallet/satchel/api/cashu"
	"github.com/satchelwallet/satchel/internal/database/mock_db"
	"github.com/satchelwallet/satchel/internal/ledger"
)

func setup(t *testing.T) (*Sweeper, *ledger.Ledger, *mock_db.MockDB, string) {
	t.Helper()

	db := mock_db.NewMockDB()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	walletLedger := ledger.NewLedger(db, logger)

	mintId := uuid.NewString()
	if err := db.SaveMint(nil, cashu.Mint{Id: mintId, Url: "http://localhost:3338"}); err != nil {
		t.Fatalf("db.SaveMint(nil, mint): %v", err)
	}

	return NewSweeper(walletLedger, DefaultWindow, logger), walletLedger, db, mintId
}

func createAndClaim(t *testing.T, walletLedger *ledger.Ledger, mintId string, amount uint64) (string, cashu.Proofs) {
	t.Helper()
	ctx := context.Background()

	secret, err := cashu.GenerateRandomSecret()
	if err != nil {
		t.Fatalf("cashu.GenerateRandomSecret(): %v", err)
	}
	proofs, err := walletLedger.Create(ctx, mintId, []cashu.ProofData{{
		Amount: amount,
		Id:     "009a1f293253e41e",
		Secret: secret,
		C:      "02bc9097997d81afb2cc7346b5e4345a9346bd2a506eb7958598a72f0cf85163ea",
	}}, false)
	if err != nil {
		t.Fatalf("walletLedger.Create(ctx, mintId, data, false): %v", err)
	}

	owner, claimed, err := walletLedger.Claim(ctx, proofs.Ids(), cashu.PROOF_PENDING_SEND)
	if err != nil || !claimed {
		t.Fatalf("claim failed: claimed %v, err %v", claimed, err)
	}
	return owner, proofs
}

// backdate rewrites a lock's timestamp, standing in for a claim left behind
// by a crash an hour ago.
func backdate(db *mock_db.MockDB, proofs cashu.Proofs, age time.Duration) {
	past := time.Now().Add(-age).Unix()
	for _, proof := range proofs {
		stored := db.Proofs[proof.Id]
		stored.LockedAt = &past
		db.Proofs[proof.Id] = stored
	}
}

func TestRunReleasesStaleLocks(t *testing.T) {
	sweeper, walletLedger, db, mintId := setup(t)
	ctx := context.Background()

	_, staleProofs := createAndClaim(t, walletLedger, mintId, 8)
	freshOwner, _ := createAndClaim(t, walletLedger, mintId, 16)
	backdate(db, staleProofs, time.Hour)

	if err := sweeper.Run(ctx); err != nil {
		t.Fatalf("sweeper.Run(ctx): %v", err)
	}

	stale, err := walletLedger.ProofBySecret(ctx, staleProofs[0].Secret)
	if err != nil {
		t.Fatalf("walletLedger.ProofBySecret(ctx, staleProofs[0].Secret): %v", err)
	}
	if stale.State != cashu.PROOF_UNSPENT || stale.LockOwner != nil {
		t.Errorf("stale proof not released: %+v", stale)
	}

	fresh, err := walletLedger.ProofsByOwner(ctx, freshOwner)
	if err != nil {
		t.Fatalf("walletLedger.ProofsByOwner(ctx, freshOwner): %v", err)
	}
	if len(fresh) != 1 || fresh[0].State != cashu.PROOF_PENDING_SEND {
		t.Errorf("fresh lock was swept: %+v", fresh)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	sweeper, walletLedger, db, mintId := setup(t)
	ctx := context.Background()

	_, staleProofs := createAndClaim(t, walletLedger, mintId, 4)
	backdate(db, staleProofs, time.Hour)

	if err := sweeper.Run(ctx); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if err := sweeper.Run(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}

	proof, err := walletLedger.ProofBySecret(ctx, staleProofs[0].Secret)
	if err != nil {
		t.Fatalf("walletLedger.ProofBySecret(ctx, staleProofs[0].Secret): %v", err)
	}
	if proof.State != cashu.PROOF_UNSPENT {
		t.Errorf("proof state after repeated sweep: got %v, expected %v", proof.State, cashu.PROOF_UNSPENT)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	sweeper, _, _, _ := setup(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sweeper.Start(ctx, 10*time.Millisecond)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
}
