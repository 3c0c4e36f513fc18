package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/satchelwallet/satchel/api/cashu"
	"github.com/satchelwallet/satchel/internal/database/mock_db"
)

func testLedger(t *testing.T) (*Ledger, *mock_db.MockDB, string) {
	t.Helper()
	db := mock_db.NewMockDB()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	ledger := NewLedger(db, logger)

	mintId := uuid.NewString()
	err := db.SaveMint(nil, cashu.Mint{Id: mintId, Url: "http://localhost:3338", TrustLevel: cashu.TrustHigh})
	if err != nil {
		t.Fatalf("db.SaveMint(nil, mint): %v", err)
	}
	return ledger, db, mintId
}

func proofData(t *testing.T, amounts ...uint64) []cashu.ProofData {
	t.Helper()
	data := make([]cashu.ProofData, 0, len(amounts))
	for _, amount := range amounts {
		secret, err := cashu.GenerateRandomSecret()
		if err != nil {
			t.Fatalf("cashu.GenerateRandomSecret(): %v", err)
		}
		data = append(data, cashu.ProofData{
			Amount: amount,
			Id:     "009a1f293253e41e",
			Secret: secret,
			C:      "02bc9097997d81afb2cc7346b5e4345a9346bd2a506eb7958598a72f0cf85163ea",
		})
	}
	return data
}

func TestCreateRejectsUnknownMint(t *testing.T) {
	ledger, _, _ := testLedger(t)
	ctx := context.Background()

	_, err := ledger.Create(ctx, uuid.NewString(), proofData(t, 2), false)
	if !errors.Is(err, cashu.ErrMintNotFound) {
		t.Errorf("expected ErrMintNotFound, got %v", err)
	}
}

func TestCreateDuplicateSecret(t *testing.T) {
	ledger, _, mintId := testLedger(t)
	ctx := context.Background()

	data := proofData(t, 4)
	if _, err := ledger.Create(ctx, mintId, data, false); err != nil {
		t.Fatalf("ledger.Create(ctx, mintId, data, false): %v", err)
	}

	_, err := ledger.Create(ctx, mintId, data, false)
	if !errors.Is(err, cashu.ErrDuplicateSecret) {
		t.Errorf("expected ErrDuplicateSecret, got %v", err)
	}

	balance, err := ledger.Balance(ctx, mintId, nil)
	if err != nil {
		t.Fatalf("ledger.Balance(ctx, mintId, nil): %v", err)
	}
	if balance != 4 {
		t.Errorf("replayed import changed balance: got %v, expected 4", balance)
	}
}

func TestClaimRequiresPendingState(t *testing.T) {
	ledger, _, _ := testLedger(t)

	_, _, err := ledger.Claim(context.Background(), []string{uuid.NewString()}, cashu.PROOF_SPENT)
	if !errors.Is(err, ErrInvalidPendingState) {
		t.Errorf("expected ErrInvalidPendingState, got %v", err)
	}
}

func TestClaimFinalizeRoundtrip(t *testing.T) {
	ledger, _, mintId := testLedger(t)
	ctx := context.Background()

	proofs, err := ledger.Create(ctx, mintId, proofData(t, 2, 8, 32), false)
	if err != nil {
		t.Fatalf("ledger.Create(ctx, mintId, data, false): %v", err)
	}

	owner, claimed, err := ledger.Claim(ctx, proofs.Ids(), cashu.PROOF_PENDING_SEND)
	if err != nil {
		t.Fatalf("ledger.Claim(ctx, proofs.Ids(), cashu.PROOF_PENDING_SEND): %v", err)
	}
	if !claimed {
		t.Fatal("claim over free proofs should succeed")
	}

	locked, err := ledger.ProofsByOwner(ctx, owner)
	if err != nil {
		t.Fatalf("ledger.ProofsByOwner(ctx, owner): %v", err)
	}
	if len(locked) != 3 {
		t.Fatalf("expected 3 locked proofs, got %v", len(locked))
	}
	bySecret := make(map[string]cashu.Proof, len(proofs))
	for _, proof := range proofs {
		bySecret[proof.Secret] = proof
	}
	for _, proof := range locked {
		if proof.State != cashu.PROOF_PENDING_SEND {
			t.Errorf("proof state: got %v, expected %v", proof.State, cashu.PROOF_PENDING_SEND)
		}
		created, ok := bySecret[proof.Secret]
		if !ok || proof.Amount != created.Amount || proof.C != created.C {
			t.Errorf("claim mutated immutable proof fields: %+v", proof)
		}
	}

	released, err := ledger.Finalize(ctx, owner, Committed)
	if err != nil {
		t.Fatalf("ledger.Finalize(ctx, owner, Committed): %v", err)
	}
	if released != 3 {
		t.Errorf("expected 3 finalized proofs, got %v", released)
	}

	balance, err := ledger.Balance(ctx, mintId, nil)
	if err != nil {
		t.Fatalf("ledger.Balance(ctx, mintId, nil): %v", err)
	}
	if balance != 0 {
		t.Errorf("spent proofs still count toward balance: %v", balance)
	}
}

func TestFinalizeAbortedReturnsToUnspent(t *testing.T) {
	ledger, _, mintId := testLedger(t)
	ctx := context.Background()

	proofs, err := ledger.Create(ctx, mintId, proofData(t, 16), false)
	if err != nil {
		t.Fatalf("ledger.Create(ctx, mintId, data, false): %v", err)
	}

	owner, claimed, err := ledger.Claim(ctx, proofs.Ids(), cashu.PROOF_PENDING_SWAP)
	if err != nil || !claimed {
		t.Fatalf("claim failed: claimed %v, err %v", claimed, err)
	}

	if _, err := ledger.Finalize(ctx, owner, Aborted); err != nil {
		t.Fatalf("ledger.Finalize(ctx, owner, Aborted): %v", err)
	}

	proof, err := ledger.ProofBySecret(ctx, proofs[0].Secret)
	if err != nil {
		t.Fatalf("ledger.ProofBySecret(ctx, proofs[0].Secret): %v", err)
	}
	if proof.State != cashu.PROOF_UNSPENT {
		t.Errorf("aborted proof state: got %v, expected %v", proof.State, cashu.PROOF_UNSPENT)
	}
	if proof.LockOwner != nil {
		t.Errorf("aborted proof still locked by %v", *proof.LockOwner)
	}

	// the proof is claimable again
	if _, claimed, err := ledger.Claim(ctx, proofs.Ids(), cashu.PROOF_PENDING_SEND); err != nil || !claimed {
		t.Errorf("reclaim after abort failed: claimed %v, err %v", claimed, err)
	}
}

func TestFinalizeIdempotent(t *testing.T) {
	ledger, _, mintId := testLedger(t)
	ctx := context.Background()

	proofs, err := ledger.Create(ctx, mintId, proofData(t, 1), false)
	if err != nil {
		t.Fatalf("ledger.Create(ctx, mintId, data, false): %v", err)
	}

	owner, _, err := ledger.Claim(ctx, proofs.Ids(), cashu.PROOF_PENDING_SEND)
	if err != nil {
		t.Fatalf("ledger.Claim(ctx, proofs.Ids(), cashu.PROOF_PENDING_SEND): %v", err)
	}

	if _, err := ledger.Finalize(ctx, owner, Committed); err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	released, err := ledger.Finalize(ctx, owner, Committed)
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if released != 0 {
		t.Errorf("retried finalize touched %v proofs, expected 0", released)
	}

	proof, err := ledger.ProofBySecret(ctx, proofs[0].Secret)
	if err != nil {
		t.Fatalf("ledger.ProofBySecret(ctx, proofs[0].Secret): %v", err)
	}
	if proof.State != cashu.PROOF_SPENT {
		t.Errorf("proof state after retried finalize: got %v, expected %v", proof.State, cashu.PROOF_SPENT)
	}
}

func TestConcurrentClaimSingleWinner(t *testing.T) {
	ledger, _, mintId := testLedger(t)
	ctx := context.Background()

	proofs, err := ledger.Create(ctx, mintId, proofData(t, 8, 16, 64), false)
	if err != nil {
		t.Fatalf("ledger.Create(ctx, mintId, data, false): %v", err)
	}
	ids := proofs.Ids()

	const claimers = 16
	var wg sync.WaitGroup
	wins := make(chan string, claimers)

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			owner, claimed, err := ledger.Claim(ctx, ids, cashu.PROOF_PENDING_SEND)
			if err != nil {
				t.Errorf("ledger.Claim(ctx, ids, cashu.PROOF_PENDING_SEND): %v", err)
				return
			}
			if claimed {
				wins <- owner
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []string
	for owner := range wins {
		winners = append(winners, owner)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winning claim, got %v", len(winners))
	}

	locked, err := ledger.ProofsByOwner(ctx, winners[0])
	if err != nil {
		t.Fatalf("ledger.ProofsByOwner(ctx, winners[0]): %v", err)
	}
	if len(locked) != len(ids) {
		t.Errorf("winner holds %v proofs, expected %v", len(locked), len(ids))
	}
}

func TestPartialClaimLeavesNothingLocked(t *testing.T) {
	ledger, _, mintId := testLedger(t)
	ctx := context.Background()

	proofs, err := ledger.Create(ctx, mintId, proofData(t, 2, 4), false)
	if err != nil {
		t.Fatalf("ledger.Create(ctx, mintId, data, false): %v", err)
	}

	// lock one of the two proofs under another owner first
	_, claimed, err := ledger.Claim(ctx, proofs.Ids()[:1], cashu.PROOF_PENDING_SWAP)
	if err != nil || !claimed {
		t.Fatalf("setup claim failed: claimed %v, err %v", claimed, err)
	}

	_, claimed, err = ledger.Claim(ctx, proofs.Ids(), cashu.PROOF_PENDING_SEND)
	if err != nil {
		t.Fatalf("ledger.Claim(ctx, proofs.Ids(), cashu.PROOF_PENDING_SEND): %v", err)
	}
	if claimed {
		t.Fatal("overlapping claim should not succeed")
	}

	second, err := ledger.ProofBySecret(ctx, proofs[1].Secret)
	if err != nil {
		t.Fatalf("ledger.ProofBySecret(ctx, proofs[1].Secret): %v", err)
	}
	if second.State != cashu.PROOF_UNSPENT || second.LockOwner != nil {
		t.Errorf("failed claim left proof %+v partially locked", second)
	}
}

func TestCommitSwapAtomic(t *testing.T) {
	ledger, _, mintId := testLedger(t)
	ctx := context.Background()

	inputs, err := ledger.Create(ctx, mintId, proofData(t, 32, 32), false)
	if err != nil {
		t.Fatalf("ledger.Create(ctx, mintId, data, false): %v", err)
	}

	owner, claimed, err := ledger.Claim(ctx, inputs.Ids(), cashu.PROOF_PENDING_SWAP)
	if err != nil || !claimed {
		t.Fatalf("claim failed: claimed %v, err %v", claimed, err)
	}

	fresh, err := ledger.CommitSwap(ctx, owner, mintId, proofData(t, 64), true)
	if err != nil {
		t.Fatalf("ledger.CommitSwap(ctx, owner, mintId, data, true): %v", err)
	}
	if len(fresh) != 1 || !fresh[0].Reserved {
		t.Fatalf("expected one reserved output proof, got %+v", fresh)
	}

	reserved := true
	balance, err := ledger.Balance(ctx, mintId, &reserved)
	if err != nil {
		t.Fatalf("ledger.Balance(ctx, mintId, &reserved): %v", err)
	}
	if balance != 64 {
		t.Errorf("reserved balance after swap: got %v, expected 64", balance)
	}

	for _, input := range inputs {
		proof, err := ledger.ProofBySecret(ctx, input.Secret)
		if err != nil {
			t.Fatalf("ledger.ProofBySecret(ctx, input.Secret): %v", err)
		}
		if proof.State != cashu.PROOF_SPENT {
			t.Errorf("swap input state: got %v, expected %v", proof.State, cashu.PROOF_SPENT)
		}
	}
}

func TestMarkReservedSkipsNonUnspent(t *testing.T) {
	ledger, _, mintId := testLedger(t)
	ctx := context.Background()

	proofs, err := ledger.Create(ctx, mintId, proofData(t, 2, 4), false)
	if err != nil {
		t.Fatalf("ledger.Create(ctx, mintId, data, false): %v", err)
	}

	if _, claimed, err := ledger.Claim(ctx, proofs.Ids()[:1], cashu.PROOF_PENDING_SEND); err != nil || !claimed {
		t.Fatalf("setup claim failed: err %v", err)
	}

	skipped, err := ledger.MarkReserved(ctx, proofs.Ids(), true)
	if err != nil {
		t.Fatalf("ledger.MarkReserved(ctx, proofs.Ids(), true): %v", err)
	}
	if len(skipped) != 1 || skipped[0] != proofs[0].Id {
		t.Errorf("expected the pending proof to be skipped, got %v", skipped)
	}

	second, err := ledger.ProofBySecret(ctx, proofs[1].Secret)
	if err != nil {
		t.Fatalf("ledger.ProofBySecret(ctx, proofs[1].Secret): %v", err)
	}
	if !second.Reserved {
		t.Error("unspent proof was not marked reserved")
	}
}

func TestInvalidateIsTerminal(t *testing.T) {
	ledger, _, mintId := testLedger(t)
	ctx := context.Background()

	proofs, err := ledger.Create(ctx, mintId, proofData(t, 8), false)
	if err != nil {
		t.Fatalf("ledger.Create(ctx, mintId, data, false): %v", err)
	}

	if err := ledger.Invalidate(ctx, proofs.Ids()); err != nil {
		t.Fatalf("ledger.Invalidate(ctx, proofs.Ids()): %v", err)
	}

	if _, claimed, err := ledger.Claim(ctx, proofs.Ids(), cashu.PROOF_PENDING_SEND); err != nil || claimed {
		t.Errorf("invalid proof was claimable: claimed %v, err %v", claimed, err)
	}

	balance, err := ledger.Balance(ctx, mintId, nil)
	if err != nil {
		t.Fatalf("ledger.Balance(ctx, mintId, nil): %v", err)
	}
	if balance != 0 {
		t.Errorf("invalid proofs count toward balance: %v", balance)
	}
}
