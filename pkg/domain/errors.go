package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Reason is a short machine-checkable label distinguishing the cause of
// a ValidationError or SignatureInvalid (§4.1, §7).
type Reason string

const (
	ReasonBadEcdsa         Reason = "bad_ecdsa"
	ReasonWrongSigner      Reason = "wrong_signer"
	ReasonPreSignNotSet    Reason = "presign_not_set"
	ReasonErc1271Rejected  Reason = "erc1271_rejected"
	ReasonErc1271Reverted  Reason = "erc1271_reverted"
	ReasonExpired          Reason = "expired"
	ReasonLimitNotRespected Reason = "limit_not_respected"
	ReasonOverFill         Reason = "over_fill"
	ReasonUnknownToken     Reason = "unknown_token"
	ReasonUnknownOrder     Reason = "unknown_order"
	ReasonVaultRelayerTarget Reason = "vault_relayer_target"
	ReasonReservedFlagBits Reason = "reserved_flag_bits"
	ReasonAmountOverflow   Reason = "amount_overflow"
)

// ValidationError reports a structurally or semantically invalid
// proposal; the driver drops the affected proposal and continues with
// others (§7).
type ValidationError struct {
	Reason Reason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Reason, e.Detail)
}

func NewValidationError(reason Reason, detail string) *ValidationError {
	return &ValidationError{Reason: reason, Detail: detail}
}

// SignatureInvalid reports a failed verify() call (§4.1).
type SignatureInvalid struct {
	Reason Reason
}

func (e *SignatureInvalid) Error() string {
	return fmt.Sprintf("signature invalid: %s", e.Reason)
}

// ExpiredError reports a trade whose order has passed valid_to (§4.2 step 1).
type ExpiredError struct {
	UID OrderUID
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("order %s expired", e.UID.Hex())
}

// LimitViolatedError reports a trade that fails the limit-price check (§4.2 step 2).
type LimitViolatedError struct {
	UID OrderUID
}

func (e *LimitViolatedError) Error() string {
	return fmt.Sprintf("order %s violates its limit price", e.UID.Hex())
}

// OverFillError reports a trade that would push filled[uid] past cap(uid).
type OverFillError struct {
	UID   OrderUID
	Want  string
	Cap   string
}

func (e *OverFillError) Error() string {
	return fmt.Sprintf("order %s over-fill: want %s, cap %s", e.UID.Hex(), e.Want, e.Cap)
}

// TokenDeltaMismatch reports a simulated balance change for a token
// that disagrees with what clearing computed the settlement call
// should move: the proposal's claimed trades don't hold up against
// what actually happens on chain (§4.4).
type TokenDeltaMismatch struct {
	Token common.Address
	Want  *big.Int
	Got   *big.Int
}

func (e *TokenDeltaMismatch) Error() string {
	return fmt.Sprintf("token %s delta mismatch: want %s, got %s", e.Token.Hex(), e.Want, e.Got)
}

// InvariantViolated is the single class of internal-consistency error
// that must never be silenced: whoever observes it aborts the process
// (§7, §9 "cancellation vs. panics").
type InvariantViolated struct {
	What string
}

func (e *InvariantViolated) Error() string {
	return fmt.Sprintf("invariant violated: %s", e.What)
}
