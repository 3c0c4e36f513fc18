package mintclient

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/satchelwallet/satchel/api/cashu"
	"github.com/satchelwallet/satchel/pkg/crypto"
)

// blindOutput pairs a blinded message with the secret and blinding factor the
// wallet needs to unblind the mint's signature for it.
type blindOutput struct {
	message cashu.BlindedMessage
	secret  string
	r       *secp256k1.PrivateKey
}

// newBlindOutputs splits the amount into power of two denominations and
// blinds a fresh secret for each one.
func newBlindOutputs(amount uint64, keysetId string) ([]blindOutput, error) {
	amounts := cashu.AmountSplit(amount)
	outputs := make([]blindOutput, 0, len(amounts))

	for _, amt := range amounts {
		secret, err := cashu.GenerateRandomSecret()
		if err != nil {
			return nil, fmt.Errorf("cashu.GenerateRandomSecret(): %w", err)
		}

		r, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, fmt.Errorf("secp256k1.GeneratePrivateKey(): %w", err)
		}

		B_, r, err := crypto.BlindMessage(secret, r)
		if err != nil {
			return nil, fmt.Errorf("crypto.BlindMessage(secret, r): %w", err)
		}

		outputs = append(outputs, blindOutput{
			message: cashu.BlindedMessage{
				Amount: amt,
				Id:     keysetId,
				B_:     hex.EncodeToString(B_.SerializeCompressed()),
			},
			secret: secret,
			r:      r,
		})
	}

	return outputs, nil
}

func blindedMessages(outputs []blindOutput) []cashu.BlindedMessage {
	messages := make([]cashu.BlindedMessage, 0, len(outputs))
	for _, output := range outputs {
		messages = append(messages, output.message)
	}
	return messages
}

// proofDataFromSignatures unblinds the mint's signatures into spendable wire
// proofs. Signatures must come back in output order.
func proofDataFromSignatures(signatures []cashu.BlindSignature, outputs []blindOutput, keys cashu.KeysetKeys) ([]cashu.ProofData, error) {
	if len(signatures) != len(outputs) {
		return nil, ErrMismatchedSignatures
	}

	proofs := make([]cashu.ProofData, 0, len(signatures))
	for i, signature := range signatures {
		output := outputs[i]

		keyHex, ok := keys.Keys[strconv.FormatUint(signature.Amount, 10)]
		if !ok {
			return nil, fmt.Errorf("%w: %v", cashu.ErrNoKeyForAmount, signature.Amount)
		}
		K, err := parsePublicKey(keyHex)
		if err != nil {
			return nil, fmt.Errorf("parsePublicKey(keyHex): %w", err)
		}

		C_, err := parsePublicKey(signature.C_)
		if err != nil {
			return nil, fmt.Errorf("parsePublicKey(signature.C_): %w", err)
		}

		C := crypto.UnblindSignature(C_, output.r, K)

		proofs = append(proofs, cashu.ProofData{
			Amount: signature.Amount,
			Id:     signature.Id,
			Secret: output.secret,
			C:      hex.EncodeToString(C.SerializeCompressed()),
		})
	}

	return proofs, nil
}

func parsePublicKey(keyHex string) (*secp256k1.PublicKey, error) {
	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("hex.DecodeString(keyHex): %w", err)
	}
	pubkey, err := secp256k1.ParsePubKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("secp256k1.ParsePubKey(keyBytes): %w", err)
	}
	return pubkey, nil
}
