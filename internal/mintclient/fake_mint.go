package mintclient

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/google/uuid"
	"github.com/satchelwallet/satchel/api/cashu"
	"github.com/satchelwallet/satchel/pkg/crypto"
)

const fakeKeysetId = "00fakemintkeyset"

// FakeMint is an in process mint with one signing key. It verifies and signs
// for real, so the wallet's blinding and unblinding run against it exactly as
// they would against a remote mint. SwapErr injects a failure into Swap for
// tests that exercise rollback paths.
type FakeMint struct {
	key *secp256k1.PrivateKey

	SwapErr error

	mu     sync.Mutex
	quotes map[string]uint64
	spent  map[string]bool
}

func NewFakeMint() (*FakeMint, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("secp256k1.GeneratePrivateKey(): %w", err)
	}
	return &FakeMint{
		key:    key,
		quotes: make(map[string]uint64),
		spent:  make(map[string]bool),
	}, nil
}

func (f *FakeMint) keys() cashu.KeysetKeys {
	keyHex := hex.EncodeToString(f.key.PubKey().SerializeCompressed())
	keys := make(map[string]string)
	// one key for every denomination up to 2^31
	for i := 0; i < 32; i++ {
		keys[strconv.FormatUint(uint64(1)<<i, 10)] = keyHex
	}
	return cashu.KeysetKeys{
		Id:   fakeKeysetId,
		Unit: cashu.Sat.String(),
		Keys: keys,
	}
}

func (f *FakeMint) ActiveKeys(ctx context.Context, mintUrl string) (cashu.KeysetKeys, error) {
	return f.keys(), nil
}

func (f *FakeMint) sign(outputs []blindOutput) ([]cashu.BlindSignature, error) {
	signatures := make([]cashu.BlindSignature, 0, len(outputs))
	for _, output := range outputs {
		B_, err := parsePublicKey(output.message.B_)
		if err != nil {
			return nil, fmt.Errorf("parsePublicKey(output.message.B_): %w", err)
		}
		C_ := crypto.SignBlindedMessage(B_, f.key)
		signatures = append(signatures, cashu.BlindSignature{
			Amount: output.message.Amount,
			Id:     output.message.Id,
			C_:     hex.EncodeToString(C_.SerializeCompressed()),
		})
	}
	return signatures, nil
}

func (f *FakeMint) Swap(ctx context.Context, mintUrl string, inputs []cashu.ProofData) ([]cashu.ProofData, error) {
	if f.SwapErr != nil {
		return nil, f.SwapErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	amount := uint64(0)
	for _, input := range inputs {
		if f.spent[input.Secret] {
			return nil, cashu.ErrorResponse{Code: cashu.PROOF_ALREADY_SPENT}
		}
		C, err := parsePublicKey(input.C)
		if err != nil || !crypto.Verify(input.Secret, f.key, C) {
			return nil, cashu.ErrorResponse{Code: cashu.PROOF_VERIFICATION_FAILED}
		}
		amount += input.Amount
	}
	for _, input := range inputs {
		f.spent[input.Secret] = true
	}

	outputs, err := newBlindOutputs(amount, fakeKeysetId)
	if err != nil {
		return nil, fmt.Errorf("newBlindOutputs(amount, fakeKeysetId): %w", err)
	}
	signatures, err := f.sign(outputs)
	if err != nil {
		return nil, fmt.Errorf("f.sign(outputs): %w", err)
	}

	return proofDataFromSignatures(signatures, outputs, f.keys())
}

func (f *FakeMint) RequestMintQuote(ctx context.Context, mintUrl string, amount uint64) (cashu.PostMintQuoteBolt11Response, error) {
	quote := uuid.NewString()

	f.mu.Lock()
	f.quotes[quote] = amount
	f.mu.Unlock()

	// payment settles instantly, the quote is immediately redeemable
	return cashu.PostMintQuoteBolt11Response{
		Quote:   quote,
		Request: "lnbcfake" + quote,
		Expiry:  cashu.ExpiryTimeMinUnit(cashu.ExpiryMinutesDefault),
		Unit:    cashu.Sat.String(),
		State:   cashu.PAID,
	}, nil
}

func (f *FakeMint) MintProofs(ctx context.Context, mintUrl string, quote string, amount uint64) ([]cashu.ProofData, error) {
	f.mu.Lock()
	quoted, ok := f.quotes[quote]
	if ok {
		delete(f.quotes, quote)
	}
	f.mu.Unlock()

	if !ok {
		return nil, cashu.ErrorResponse{Code: cashu.REQUEST_NOT_PAID}
	}
	if quoted != amount {
		return nil, cashu.ErrorResponse{Code: cashu.TRANSACTION_NOT_BALANCED}
	}

	outputs, err := newBlindOutputs(amount, fakeKeysetId)
	if err != nil {
		return nil, fmt.Errorf("newBlindOutputs(amount, fakeKeysetId): %w", err)
	}
	signatures, err := f.sign(outputs)
	if err != nil {
		return nil, fmt.Errorf("f.sign(outputs): %w", err)
	}

	return proofDataFromSignatures(signatures, outputs, f.keys())
}

func (f *FakeMint) ClientType() Backend {
	return FAKEMINT
}
