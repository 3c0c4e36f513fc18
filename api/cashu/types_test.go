package cashu

import (
	"errors"
	"testing"
)

func TestAmountSplit(t *testing.T) {
	tests := []struct {
		amount   uint64
		expected []uint64
	}{
		{amount: 13, expected: []uint64{1, 4, 8}},
		{amount: 64, expected: []uint64{64}},
		{amount: 2500, expected: []uint64{4, 64, 128, 256, 2048}},
		{amount: 0, expected: []uint64{}},
	}

	for _, test := range tests {
		split := AmountSplit(test.amount)

		if len(split) != len(test.expected) {
			t.Fatalf("incorrect split length for %v: %v", test.amount, split)
		}

		total := uint64(0)
		for i, amount := range split {
			if amount != test.expected[i] {
				t.Errorf("incorrect denomination %v, should be %v", amount, test.expected[i])
			}
			total += amount
		}

		if total != test.amount {
			t.Errorf("split does not add up: %v, should be %v", total, test.amount)
		}
	}
}

func TestProofsAmountAndIds(t *testing.T) {
	proofs := Proofs{
		{Id: "a", Amount: 2, Secret: "s1"},
		{Id: "b", Amount: 6, Secret: "s2"},
	}

	if proofs.Amount() != 8 {
		t.Errorf("incorrect total amount %v, should be 8", proofs.Amount())
	}

	ids := proofs.Ids()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("incorrect ids %v", ids)
	}
}

func TestHashSecretToCurve(t *testing.T) {
	proof := Proof{
		Secret: "test_message",
	}

	hashed, err := proof.HashSecretToCurve()
	if err != nil {
		t.Fatalf("proof.HashSecretToCurve(). %v", err)
	}

	if hashed.Y == "" {
		t.Fatal("Y was not set")
	}

	again, err := proof.HashSecretToCurve()
	if err != nil {
		t.Fatalf("proof.HashSecretToCurve(). %v", err)
	}

	if hashed.Y != again.Y {
		t.Errorf("hash to curve is not deterministic: %v != %v", hashed.Y, again.Y)
	}
}

func TestProofDataToProof(t *testing.T) {
	data := ProofData{
		Amount: 32,
		Id:     "keyset-1",
		Secret: "test_message",
		C:      "02deadbeef",
	}

	proof, err := data.Proof("proof-id", "mint-1", true)
	if err != nil {
		t.Fatalf("data.Proof(). %v", err)
	}

	if proof.State != PROOF_UNSPENT {
		t.Errorf("new proofs must start unspent, got %v", proof.State)
	}
	if !proof.Reserved {
		t.Error("reserved flag was dropped")
	}
	if proof.KeysetId != "keyset-1" || proof.MintId != "mint-1" {
		t.Errorf("issuer fields are wrong: %v %v", proof.KeysetId, proof.MintId)
	}

	if _, err := (ProofData{Amount: 32, Secret: "s"}).Proof("id", "mint-1", false); !errors.Is(err, ErrInvalidProofData) {
		t.Errorf("missing signature was accepted: %v", err)
	}
	if proof.Y == "" {
		t.Error("Y was not derived from the secret")
	}
}

func TestProofStateParsing(t *testing.T) {
	for _, valid := range []string{"UNSPENT", "PENDING_SEND", "PENDING_SWAP", "SPENT", "INVALID"} {
		if _, err := ProofStateFromString(valid); err != nil {
			t.Errorf("state %v should parse: %v", valid, err)
		}
	}

	if _, err := ProofStateFromString("PENDING"); err == nil {
		t.Error("bare PENDING is not a wallet state and should not parse")
	}

	if !PROOF_PENDING_SEND.Pending() || !PROOF_PENDING_SWAP.Pending() {
		t.Error("pending states should report Pending()")
	}
	if PROOF_UNSPENT.Pending() {
		t.Error("unspent is not pending")
	}
	if !PROOF_SPENT.Terminal() || !PROOF_INVALID.Terminal() {
		t.Error("spent and invalid are terminal")
	}
}
