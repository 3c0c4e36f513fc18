package mintclient

import (
	"context"
	"errors"

	"github.com/satchelwallet/satchel/api/cashu"
)

type Backend uint

const REST Backend = iota + 1
const FAKEMINT Backend = iota + 2

var (
	ErrMismatchedSignatures = errors.New("mint returned a different number of signatures than outputs")
	ErrNoActiveSatKeyset    = errors.New("mint exposes no active sat keyset")
)

// MintClient is the wallet's view of a mint. Swap is the core operation: it
// hands proofs to the mint and receives fresh ones of the same total value,
// handling the blinding on the wallet side.
type MintClient interface {
	ActiveKeys(ctx context.Context, mintUrl string) (cashu.KeysetKeys, error)
	Swap(ctx context.Context, mintUrl string, inputs []cashu.ProofData) ([]cashu.ProofData, error)
	RequestMintQuote(ctx context.Context, mintUrl string, amount uint64) (cashu.PostMintQuoteBolt11Response, error)
	MintProofs(ctx context.Context, mintUrl string, quote string, amount uint64) ([]cashu.ProofData, error)
	ClientType() Backend
}
