package cashu

import "errors"

var (
	ErrCouldNotParseUnitString = errors.New("Could not parse unit string")
	ErrUnknownProofState       = errors.New("Unknown proof state")
	ErrInvalidTrustLevel       = errors.New("Invalid trust level")

	// ErrDuplicateSecret signals that a proof with the same secret already
	// exists. It is a benign idempotency signal, not a failure.
	ErrDuplicateSecret = errors.New("Proof secret already exists")

	ErrProofNotFound    = errors.New("Proof not found")
	ErrMintNotFound     = errors.New("Mint not found")
	ErrNotPendingState  = errors.New("Claim target is not a pending state")
	ErrNoKeyForAmount   = errors.New("Keyset has no key for amount")
	ErrInvalidProofData = errors.New("Invalid proof data")
)

// ErrorCode is the numeric error space of the mint protocol. The wallet only
// needs the subset it can react to.
type ErrorCode uint

const (
	PROOF_VERIFICATION_FAILED ErrorCode = 10001
	PROOF_ALREADY_SPENT       ErrorCode = 11001
	PROOFS_PENDING            ErrorCode = 11002
	TRANSACTION_NOT_BALANCED  ErrorCode = 11005
	KEYSET_NOT_KNOW           ErrorCode = 12001
	INACTIVE_KEYSET           ErrorCode = 12002
	REQUEST_NOT_PAID          ErrorCode = 20001
	QUOTE_ALREADY_ISSUED      ErrorCode = 20002
	QUOTE_PENDING             ErrorCode = 20005

	UNKNOWN ErrorCode = 99999
)

func (e ErrorCode) String() string {
	error := ""
	switch e {
	case PROOF_VERIFICATION_FAILED:
		error = "Proof could not be verified"
	case PROOF_ALREADY_SPENT:
		error = "Proof is already spent"
	case PROOFS_PENDING:
		error = "Proofs are pending"
	case TRANSACTION_NOT_BALANCED:
		error = "Transaction is not balanced (inputs != outputs)"
	case KEYSET_NOT_KNOW:
		error = "Keyset is not known"
	case INACTIVE_KEYSET:
		error = "Keyset is inactive, cannot sign messages"
	case REQUEST_NOT_PAID:
		error = "Request has not been paid"
	case QUOTE_ALREADY_ISSUED:
		error = "Quote has already been issued"
	case QUOTE_PENDING:
		error = "Quote is pending"
	case UNKNOWN:
		error = "Unknown error"
	}
	return error
}

// ErrorResponse is the error body a mint returns on a failed request.
type ErrorResponse struct {
	Detail string    `json:"detail"`
	Code   ErrorCode `json:"code"`
}

func (e ErrorResponse) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Code.String()
}

// RejectedProofs reports whether the mint refused the inputs themselves, as
// opposed to a transient or protocol level failure. Proofs rejected this way
// must never be retried as-is.
func (e ErrorResponse) RejectedProofs() bool {
	switch e.Code {
	case PROOF_VERIFICATION_FAILED, PROOF_ALREADY_SPENT:
		return true
	}
	return false
}
