package cashu

import (
	"crypto/rand"
	"encoding/hex"
)

// AmountSplit decomposes an amount into the power-of-two denominations the
// mint signs, smallest first.
func AmountSplit(amount uint64) []uint64 {
	rv := []uint64{}
	for pos := 0; amount > 0; pos++ {
		if amount&1 == 1 {
			rv = append(rv, 1<<pos)
		}
		amount >>= 1
	}
	return rv
}

// GenerateRandomSecret creates a fresh proof secret. Secrets are random hex
// so they are globally unique for the lifetime of the wallet.
func GenerateRandomSecret() (string, error) {
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(secret), nil
}
