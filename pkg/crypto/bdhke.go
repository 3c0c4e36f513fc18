package crypto

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Domain separator from NUT-00. Both sides must derive the same point for a
// secret or signatures will not verify.
const hashToCurveDomainSeparator = "Secp256k1_HashToCurve_Cashu_"

var ErrNoValidPoint = errors.New("no valid curve point for message")

// HashToCurve maps a message deterministically onto a secp256k1 point by
// hashing with an incrementing counter until the digest is a valid
// x coordinate.
func HashToCurve(message []byte) (*secp256k1.PublicKey, error) {
	msgToHash := sha256.Sum256(append([]byte(hashToCurveDomainSeparator), message...))

	const maxAttempts = 1 << 16
	buf := make([]byte, 0, sha256.Size+4)
	counter := make([]byte, 4)

	for i := uint32(0); i < maxAttempts; i++ {
		binary.LittleEndian.PutUint32(counter, i)
		buf = append(buf[:0], msgToHash[:]...)
		buf = append(buf, counter...)

		hash := sha256.Sum256(buf)

		pubkey, err := secp256k1.ParsePubKey(append([]byte{0x02}, hash[:]...))
		if err == nil {
			return pubkey, nil
		}
	}

	return nil, ErrNoValidPoint
}

// BlindMessage computes B_ = Y + r*G for the secret, where Y is the secret's
// curve point. The blinding factor r is returned alongside so the caller can
// unblind the mint's signature later.
func BlindMessage(secret string, r *secp256k1.PrivateKey) (*secp256k1.PublicKey, *secp256k1.PrivateKey, error) {
	y, err := HashToCurve([]byte(secret))
	if err != nil {
		return nil, nil, err
	}

	var yPoint, rPoint, result secp256k1.JacobianPoint
	y.AsJacobian(&yPoint)
	r.PubKey().AsJacobian(&rPoint)

	secp256k1.AddNonConst(&yPoint, &rPoint, &result)
	result.ToAffine()

	return secp256k1.NewPublicKey(&result.X, &result.Y), r, nil
}

// SignBlindedMessage is the mint side operation C_ = k*B_.
func SignBlindedMessage(B_ *secp256k1.PublicKey, k *secp256k1.PrivateKey) *secp256k1.PublicKey {
	var bPoint, result secp256k1.JacobianPoint
	B_.AsJacobian(&bPoint)

	secp256k1.ScalarMultNonConst(&k.Key, &bPoint, &result)
	result.ToAffine()

	return secp256k1.NewPublicKey(&result.X, &result.Y)
}

// UnblindSignature removes the blinding factor from the mint's signature:
// C = C_ - r*K, where K is the mint public key for the denomination.
func UnblindSignature(C_ *secp256k1.PublicKey, r *secp256k1.PrivateKey, K *secp256k1.PublicKey) *secp256k1.PublicKey {
	var rNeg secp256k1.ModNScalar
	rNeg.Set(&r.Key).Negate()

	var kPoint, rK, cPoint, result secp256k1.JacobianPoint
	K.AsJacobian(&kPoint)

	secp256k1.ScalarMultNonConst(&rNeg, &kPoint, &rK)
	rK.ToAffine()

	C_.AsJacobian(&cPoint)
	secp256k1.AddNonConst(&cPoint, &rK, &result)
	result.ToAffine()

	return secp256k1.NewPublicKey(&result.X, &result.Y)
}

// Verify checks C == k*HashToCurve(secret), the mint's redemption check.
func Verify(secret string, k *secp256k1.PrivateKey, C *secp256k1.PublicKey) bool {
	y, err := HashToCurve([]byte(secret))
	if err != nil {
		return false
	}

	return SignBlindedMessage(y, k).IsEqual(C)
}
