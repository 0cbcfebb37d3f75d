package submitter

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/cowbatch/settlement/pkg/crypto"
)

// settleGasLimit is a conservative static gas limit for a settle() call.
// A production deployment may prefer to estimate this per-auction, but a
// fixed ceiling keeps this signer free of another RPC round trip.
const settleGasLimit = 2_000_000

// ECDSASigner signs settle() calls with a fixed set of solver private
// keys, one ecdsa.PrivateKey per configured SolverAccount (loaded via
// crypto.FromPrivateKeyHex, the teacher's key-wrapping type). It never
// logs or returns key material; only the resulting raw signed
// transaction bytes leave this type, matching the config layer's
// "private key material must never appear in logs" requirement.
type ECDSASigner struct {
	chainID *big.Int
	mu      sync.Mutex
	signers map[common.Address]*crypto.Signer
}

// NewECDSASigner builds an ECDSASigner from hex-encoded private keys,
// keyed by the address each key derives to.
func NewECDSASigner(chainID *big.Int, privateKeyHexes []string) (*ECDSASigner, error) {
	s := &ECDSASigner{chainID: chainID, signers: make(map[common.Address]*crypto.Signer)}
	for _, hexKey := range privateKeyHexes {
		signer, err := crypto.FromPrivateKeyHex(hexKey)
		if err != nil {
			return nil, fmt.Errorf("submitter: load solver key: %w", err)
		}
		s.signers[signer.Address()] = signer
	}
	return s, nil
}

// Sign implements Signer by building a legacy transaction, hashing it
// under EIP-155 replay protection, and signing that hash with the
// matching solver's key.
func (s *ECDSASigner) Sign(ctx context.Context, solver common.Address, nonce uint64, to common.Address, data []byte, gasPrice *big.Int) ([]byte, common.Hash, error) {
	s.mu.Lock()
	signer, ok := s.signers[solver]
	s.mu.Unlock()
	if !ok {
		return nil, common.Hash{}, fmt.Errorf("submitter: no key configured for solver %s", solver.Hex())
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      settleGasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	ethSigner := types.NewEIP155Signer(s.chainID)
	hash := ethSigner.Hash(tx)

	sig, err := signer.Sign(hash[:])
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("submitter: sign tx: %w", err)
	}

	signedTx, err := tx.WithSignature(ethSigner, sig)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("submitter: attach signature: %w", err)
	}

	raw, err := signedTx.MarshalBinary()
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("submitter: marshal signed tx: %w", err)
	}
	return raw, signedTx.Hash(), nil
}
