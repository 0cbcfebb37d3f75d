// Package sigverify implements §4.1: validating the four signing
// schemes a CoW order may use against its EIP-712 digest.
package sigverify

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cowbatch/settlement/pkg/domain"
)

// Eip1271MagicValue is the fixed 4-byte return value a contract must
// produce from isValidSignature to be considered valid (§4.1).
var Eip1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}

// ChainReader is the narrow slice of node/contract state verification
// needs. It is satisfied by a thin RPC-backed adapter in production and
// by a map-backed fake in tests (§6 "Blockchain node RPC" is an
// external collaborator; this is the interface this package needs from
// it).
type ChainReader interface {
	// PreSignature reads the settlement contract's preSignature(uid)
	// flag, staleness bounded by the given block (§4.1).
	PreSignature(ctx context.Context, block uint64, uid domain.OrderUID) (bool, error)

	// IsValidSignature calls isValidSignature(digest, sig) on the
	// contract at addr and returns its 4-byte result, or an error if
	// the call reverted or the node could not be reached.
	IsValidSignature(ctx context.Context, block uint64, addr common.Address, digest [32]byte, sig []byte) ([4]byte, error)
}

// Verify checks order's signature against the claimed owner, per the
// scheme named in order.SigningScheme. block bounds the staleness of
// any on-chain read (PreSign, Eip1271) to the auction's observed block.
func Verify(ctx context.Context, d domain.EIP712Domain, block uint64, uid domain.OrderUID, order *domain.Order, owner common.Address, chain ChainReader) error {
	digest, err := domain.Digest(d, order)
	if err != nil {
		return fmt.Errorf("sigverify: digest: %w", err)
	}

	switch order.SigningScheme {
	case domain.Eip712:
		recovered, err := RecoverECDSA(digest, order.Signature)
		if err != nil {
			return &domain.SignatureInvalid{Reason: domain.ReasonBadEcdsa}
		}
		if recovered != owner {
			return &domain.SignatureInvalid{Reason: domain.ReasonWrongSigner}
		}
		return nil

	case domain.EthSign:
		wrapped := EthSignDigest(digest)
		recovered, err := RecoverECDSA(wrapped, order.Signature)
		if err != nil {
			return &domain.SignatureInvalid{Reason: domain.ReasonBadEcdsa}
		}
		if recovered != owner {
			return &domain.SignatureInvalid{Reason: domain.ReasonWrongSigner}
		}
		return nil

	case domain.PreSign:
		if chain == nil {
			return fmt.Errorf("sigverify: presign requires a chain reader")
		}
		set, err := chain.PreSignature(ctx, block, uid)
		if err != nil {
			return fmt.Errorf("sigverify: presignature read: %w", err)
		}
		if !set {
			return &domain.SignatureInvalid{Reason: domain.ReasonPreSignNotSet}
		}
		return nil

	case domain.Eip1271:
		if chain == nil {
			return fmt.Errorf("sigverify: eip1271 requires a chain reader")
		}
		result, err := chain.IsValidSignature(ctx, block, owner, digest, order.Signature)
		if err != nil {
			return &domain.SignatureInvalid{Reason: domain.ReasonErc1271Reverted}
		}
		if result != Eip1271MagicValue {
			return &domain.SignatureInvalid{Reason: domain.ReasonErc1271Rejected}
		}
		return nil

	default:
		return fmt.Errorf("sigverify: unknown signing scheme %d", order.SigningScheme)
	}
}
