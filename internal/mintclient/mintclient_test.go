package mintclient

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/satchelwallet/satchel/api/cashu"
	"github.com/satchelwallet/satchel/pkg/crypto"
)

func sumProofData(data []cashu.ProofData) uint64 {
	total := uint64(0)
	for _, d := range data {
		total += d.Amount
	}
	return total
}

func TestFakeMintQuoteAndMint(t *testing.T) {
	fake, err := NewFakeMint()
	if err != nil {
		t.Fatalf("NewFakeMint(): %v", err)
	}
	ctx := context.Background()

	quote, err := fake.RequestMintQuote(ctx, "", 1000)
	if err != nil {
		t.Fatalf(`fake.RequestMintQuote(ctx, "", 1000): %v`, err)
	}
	if quote.State != cashu.PAID {
		t.Fatalf("fake quote state: got %v, expected %v", quote.State, cashu.PAID)
	}

	proofs, err := fake.MintProofs(ctx, "", quote.Quote, 1000)
	if err != nil {
		t.Fatalf(`fake.MintProofs(ctx, "", quote.Quote, 1000): %v`, err)
	}
	if sumProofData(proofs) != 1000 {
		t.Errorf("minted amount: got %v, expected 1000", sumProofData(proofs))
	}

	// replaying a redeemed quote must fail
	_, err = fake.MintProofs(ctx, "", quote.Quote, 1000)
	var errorResponse cashu.ErrorResponse
	if !errors.As(err, &errorResponse) || errorResponse.Code != cashu.REQUEST_NOT_PAID {
		t.Errorf("expected REQUEST_NOT_PAID on replay, got %v", err)
	}
}

func TestFakeMintSwapRoundtrip(t *testing.T) {
	fake, err := NewFakeMint()
	if err != nil {
		t.Fatalf("NewFakeMint(): %v", err)
	}
	ctx := context.Background()

	quote, err := fake.RequestMintQuote(ctx, "", 96)
	if err != nil {
		t.Fatalf(`fake.RequestMintQuote(ctx, "", 96): %v`, err)
	}
	inputs, err := fake.MintProofs(ctx, "", quote.Quote, 96)
	if err != nil {
		t.Fatalf("fake.MintProofs: %v", err)
	}

	fresh, err := fake.Swap(ctx, "", inputs)
	if err != nil {
		t.Fatalf(`fake.Swap(ctx, "", inputs): %v`, err)
	}
	if sumProofData(fresh) != 96 {
		t.Errorf("swap output amount: got %v, expected 96", sumProofData(fresh))
	}

	// swapped inputs are spent and cannot be swapped again
	_, err = fake.Swap(ctx, "", inputs)
	var errorResponse cashu.ErrorResponse
	if !errors.As(err, &errorResponse) || errorResponse.Code != cashu.PROOF_ALREADY_SPENT {
		t.Errorf("expected PROOF_ALREADY_SPENT on double swap, got %v", err)
	}
	if !errorResponse.RejectedProofs() {
		t.Error("PROOF_ALREADY_SPENT should count as rejected proofs")
	}
}

func TestFakeMintSwapFailureInjection(t *testing.T) {
	fake, err := NewFakeMint()
	if err != nil {
		t.Fatalf("NewFakeMint(): %v", err)
	}

	injected := errors.New("mint unreachable")
	fake.SwapErr = injected

	_, err = fake.Swap(context.Background(), "", []cashu.ProofData{{Amount: 1}})
	if !errors.Is(err, injected) {
		t.Errorf("expected injected error, got %v", err)
	}
}

// testMintServer speaks just enough of the mint protocol for the rest client:
// one keyset, one signing key.
func testMintServer(t *testing.T, key *secp256k1.PrivateKey) *httptest.Server {
	t.Helper()

	keys := make(map[string]string)
	keyHex := hex.EncodeToString(key.PubKey().SerializeCompressed())
	for i := 0; i < 32; i++ {
		keys[strconv.FormatUint(uint64(1)<<i, 10)] = keyHex
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/keys", func(w http.ResponseWriter, r *http.Request) {
		response := cashu.KeysResponse{Keysets: []cashu.KeysetKeys{{
			Id:   "009a1f293253e41e",
			Unit: cashu.Sat.String(),
			Keys: keys,
		}}}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			t.Errorf("encoding keys response: %v", err)
		}
	})
	mux.HandleFunc("POST /v1/swap", func(w http.ResponseWriter, r *http.Request) {
		var request cashu.PostSwapRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("decoding swap request: %v", err)
			return
		}

		inputTotal := uint64(0)
		for _, input := range request.Inputs {
			inputTotal += input.Amount
		}
		outputTotal := uint64(0)
		signatures := make([]cashu.BlindSignature, 0, len(request.Outputs))
		for _, output := range request.Outputs {
			outputTotal += output.Amount
			B_bytes, err := hex.DecodeString(output.B_)
			if err != nil {
				t.Errorf("decoding B_: %v", err)
				return
			}
			B_, err := secp256k1.ParsePubKey(B_bytes)
			if err != nil {
				t.Errorf("parsing B_: %v", err)
				return
			}
			C_ := crypto.SignBlindedMessage(B_, key)
			signatures = append(signatures, cashu.BlindSignature{
				Amount: output.Amount,
				Id:     output.Id,
				C_:     hex.EncodeToString(C_.SerializeCompressed()),
			})
		}

		if inputTotal != outputTotal {
			w.WriteHeader(http.StatusBadRequest)
			if err := json.NewEncoder(w).Encode(cashu.ErrorResponse{Code: cashu.TRANSACTION_NOT_BALANCED}); err != nil {
				t.Errorf("encoding error response: %v", err)
			}
			return
		}

		if err := json.NewEncoder(w).Encode(cashu.PostSwapResponse{Signatures: signatures}); err != nil {
			t.Errorf("encoding swap response: %v", err)
		}
	})

	return httptest.NewServer(mux)
}

func TestRestClientSwap(t *testing.T) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("secp256k1.GeneratePrivateKey(): %v", err)
	}
	server := testMintServer(t, key)
	defer server.Close()

	// build a genuine input signed by the server's key
	secret, err := cashu.GenerateRandomSecret()
	if err != nil {
		t.Fatalf("cashu.GenerateRandomSecret(): %v", err)
	}
	Y, err := crypto.HashToCurve([]byte(secret))
	if err != nil {
		t.Fatalf("crypto.HashToCurve([]byte(secret)): %v", err)
	}
	C := crypto.SignBlindedMessage(Y, key)
	input := cashu.ProofData{
		Amount: 64,
		Id:     "009a1f293253e41e",
		Secret: secret,
		C:      hex.EncodeToString(C.SerializeCompressed()),
	}

	client := NewRestClient()
	fresh, err := client.Swap(context.Background(), server.URL, []cashu.ProofData{input})
	if err != nil {
		t.Fatalf("client.Swap(context.Background(), server.URL, inputs): %v", err)
	}

	if sumProofData(fresh) != 64 {
		t.Fatalf("swap output amount: got %v, expected 64", sumProofData(fresh))
	}
	// the unblinded signatures must verify under the mint key
	for _, proof := range fresh {
		cBytes, err := hex.DecodeString(proof.C)
		if err != nil {
			t.Fatalf("hex.DecodeString(proof.C): %v", err)
		}
		cPoint, err := secp256k1.ParsePubKey(cBytes)
		if err != nil {
			t.Fatalf("secp256k1.ParsePubKey(cBytes): %v", err)
		}
		if !crypto.Verify(proof.Secret, key, cPoint) {
			t.Errorf("unblinded proof does not verify: %+v", proof)
		}
	}
}

func TestRestClientSurfacesMintError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(cashu.ErrorResponse{Detail: "Token already spent.", Code: cashu.PROOF_ALREADY_SPENT}); err != nil {
			t.Errorf("encoding error response: %v", err)
		}
	}))
	defer server.Close()

	client := NewRestClient()
	_, err := client.RequestMintQuote(context.Background(), server.URL, 10)

	var errorResponse cashu.ErrorResponse
	if !errors.As(err, &errorResponse) {
		t.Fatalf("expected ErrorResponse, got %v", err)
	}
	if errorResponse.Code != cashu.PROOF_ALREADY_SPENT {
		t.Errorf("error code: got %v, expected %v", errorResponse.Code, cashu.PROOF_ALREADY_SPENT)
	}
}
