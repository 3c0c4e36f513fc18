package cashu

import (
	"encoding/hex"
	"fmt"
	"time"

	gonutsCrypto "github.com/elnosh/gonuts/crypto"
)

const MethodBolt11 = "bolt11"

const ExpiryMinutesDefault int64 = 15

func ExpiryTimeMinUnit(minutes int64) int64 {
	duration := time.Duration(minutes) * time.Minute
	return time.Now().Add(duration).Unix()
}

type Unit int

const Sat Unit = iota + 1
const Msat Unit = iota + 2
const USD Unit = iota + 3
const EUR Unit = iota + 4

// String - Creating common behavior - give the type a String function
func (d Unit) String() string {
	return [...]string{"sat", "msat", "usd", "eur"}[d-1]
}

func UnitFromString(s string) (Unit, error) {
	switch s {
	case "sat":
		return Sat, nil
	case "msat":
		return Msat, nil
	case "usd":
		return USD, nil
	case "eur":
		return EUR, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrCouldNotParseUnitString, s)
	}
}

type ProofState string

const PROOF_UNSPENT ProofState = "UNSPENT"
const PROOF_PENDING_SEND ProofState = "PENDING_SEND"
const PROOF_PENDING_SWAP ProofState = "PENDING_SWAP"
const PROOF_SPENT ProofState = "SPENT"
const PROOF_INVALID ProofState = "INVALID"

// Pending reports whether the state is one of the two claimed variants.
func (s ProofState) Pending() bool {
	return s == PROOF_PENDING_SEND || s == PROOF_PENDING_SWAP
}

// Terminal states are never left once entered.
func (s ProofState) Terminal() bool {
	return s == PROOF_SPENT || s == PROOF_INVALID
}

func ProofStateFromString(s string) (ProofState, error) {
	switch ProofState(s) {
	case PROOF_UNSPENT, PROOF_PENDING_SEND, PROOF_PENDING_SWAP, PROOF_SPENT, PROOF_INVALID:
		return ProofState(s), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownProofState, s)
	}
}

// Proof is a single bearer token held by the wallet. Amount, Secret, C, Y,
// MintId and KeysetId never change after insertion; only State, Reserved and
// LockOwner mutate.
type Proof struct {
	Id        string     `json:"id" db:"id"`
	Amount    uint64     `json:"amount" db:"amount"`
	Secret    string     `json:"secret" db:"secret"`
	C         string     `json:"C" db:"c"`
	Y         string     `json:"Y" db:"y"`
	MintId    string     `json:"mint_id" db:"mint_id"`
	KeysetId  string     `json:"keyset_id" db:"keyset_id"`
	State     ProofState `json:"state" db:"state"`
	Reserved  bool       `json:"reserved" db:"reserved"`
	LockOwner *string    `json:"lock_owner" db:"lock_owner"`
	LockedAt  *int64     `json:"locked_at" db:"locked_at"`
	CreatedAt int64      `json:"created_at" db:"created_at"`
}

func (p Proof) HashSecretToCurve() (Proof, error) {
	parsedSecret := []byte(p.Secret)

	y, err := gonutsCrypto.HashToCurve(parsedSecret)
	if err != nil {
		return p, fmt.Errorf("crypto.HashToCurve: %w", err)
	}

	p.Y = hex.EncodeToString(y.SerializeCompressed())
	return p, nil
}

// Data strips a stored proof down to the wire shape the mint protocol uses.
func (p Proof) Data() ProofData {
	return ProofData{
		Amount: p.Amount,
		Id:     p.KeysetId,
		Secret: p.Secret,
		C:      p.C,
	}
}

type Proofs []Proof

func (p Proofs) Amount() uint64 {
	amount := uint64(0)
	for i := 0; i < len(p); i++ {
		amount += p[i].Amount
	}
	return amount
}

func (p Proofs) Ids() []string {
	ids := make([]string, 0, len(p))
	for i := 0; i < len(p); i++ {
		ids = append(ids, p[i].Id)
	}
	return ids
}

func (p Proofs) Secrets() []string {
	secrets := make([]string, 0, len(p))
	for i := 0; i < len(p); i++ {
		secrets = append(secrets, p[i].Secret)
	}
	return secrets
}

func (p Proofs) Data() []ProofData {
	data := make([]ProofData, 0, len(p))
	for i := 0; i < len(p); i++ {
		data = append(data, p[i].Data())
	}
	return data
}

// ProofData is the proof as it travels in the mint protocol: the keyset id
// takes the "id" slot and there is no local bookkeeping.
type ProofData struct {
	Amount uint64 `json:"amount"`
	Id     string `json:"id"`
	Secret string `json:"secret"`
	C      string `json:"C"`
}

// Proof lifts wire data into a stored proof. The caller supplies the local id
// and the issuing mint; Y is derived from the secret.
func (d ProofData) Proof(id string, mintId string, reserved bool) (Proof, error) {
	if d.Secret == "" || d.C == "" || d.Amount == 0 {
		return Proof{}, ErrInvalidProofData
	}
	proof := Proof{
		Id:        id,
		Amount:    d.Amount,
		Secret:    d.Secret,
		C:         d.C,
		MintId:    mintId,
		KeysetId:  d.Id,
		State:     PROOF_UNSPENT,
		Reserved:  reserved,
		CreatedAt: time.Now().Unix(),
	}

	return proof.HashSecretToCurve()
}

type TrustLevel string

const (
	TrustUntrusted TrustLevel = "untrusted"
	TrustLow       TrustLevel = "low"
	TrustMedium    TrustLevel = "medium"
	TrustHigh      TrustLevel = "high"
)

func TrustLevelFromString(s string) (TrustLevel, error) {
	switch TrustLevel(s) {
	case TrustUntrusted, TrustLow, TrustMedium, TrustHigh:
		return TrustLevel(s), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidTrustLevel, s)
	}
}

// Mint is a record of an issuer this wallet holds proofs from.
type Mint struct {
	Id           string     `json:"id" db:"id"`
	Url          string     `json:"url" db:"url"`
	TrustLevel   TrustLevel `json:"trust_level" db:"trust_level"`
	LastSyncedAt int64      `json:"last_synced_at" db:"last_synced_at"`
}

// Keyset is the wallet's record of a mint signing keyset. At most the newest
// keyset per mint is active; rotation deactivates predecessors.
type Keyset struct {
	Id               string `json:"id" db:"id"`
	MintId           string `json:"mint_id" db:"mint_id"`
	ExternalKeysetId string `json:"external_keyset_id" db:"external_keyset_id"`
	Active           bool   `json:"active" db:"active"`
	CreatedAt        int64  `json:"created_at" db:"created_at"`
}

type BlindedMessage struct {
	Amount uint64 `json:"amount"`
	Id     string `json:"id"`
	B_     string `json:"B_"`
}

type BlindSignature struct {
	Amount uint64 `json:"amount"`
	Id     string `json:"id"`
	C_     string `json:"C_"`
}

type PostSwapRequest struct {
	Inputs  []ProofData      `json:"inputs"`
	Outputs []BlindedMessage `json:"outputs"`
}

type PostSwapResponse struct {
	Signatures []BlindSignature `json:"signatures"`
}

type PostMintQuoteBolt11Request struct {
	Amount uint64 `json:"amount"`
	Unit   string `json:"unit"`
}

type ACTION_STATE string

const (
	UNPAID  ACTION_STATE = "UNPAID"
	PAID    ACTION_STATE = "PAID"
	PENDING ACTION_STATE = "PENDING"
	ISSUED  ACTION_STATE = "ISSUED"
)

type PostMintQuoteBolt11Response struct {
	Quote   string       `json:"quote"`
	Request string       `json:"request"`
	Expiry  int64        `json:"expiry"`
	Unit    string       `json:"unit"`
	State   ACTION_STATE `json:"state"`
}

type PostMintBolt11Request struct {
	Quote   string           `json:"quote"`
	Outputs []BlindedMessage `json:"outputs"`
}

type PostMintBolt11Response struct {
	Signatures []BlindSignature `json:"signatures"`
}

type KeysetKeys struct {
	Id   string            `json:"id"`
	Unit string            `json:"unit"`
	Keys map[string]string `json:"keys"`
}

type KeysResponse struct {
	Keysets []KeysetKeys `json:"keysets"`
}

type BasicKeysetResponse struct {
	Id     string `json:"id"`
	Unit   string `json:"unit"`
	Active bool   `json:"active"`
}

type KeysetsResponse struct {
	Keysets []BasicKeysetResponse `json:"keysets"`
}
