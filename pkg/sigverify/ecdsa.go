package sigverify

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// RecoverECDSA recovers the signer address from a 32-byte digest and a
// 65-byte [R || S || V] signature, matching the teacher's
// crypto.RecoverAddress convention. V may be given as 0/1 or 27/28;
// go-ethereum's Ecrecover wants 0/1, so it is normalized first.
func RecoverECDSA(digest [32]byte, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("sigverify: signature must be 65 bytes, got %d", len(signature))
	}

	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pubkeyBytes, err := crypto.Ecrecover(digest[:], sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("sigverify: ecrecover: %w", err)
	}

	pubkey, err := crypto.UnmarshalPubkey(pubkeyBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("sigverify: unmarshal pubkey: %w", err)
	}

	return crypto.PubkeyToAddress(*pubkey), nil
}

// EthSignDigest rewraps a digest the way personal_sign / EthSign does:
// keccak256("\x19Ethereum Signed Message:\n32" || digest) (§4.1).
func EthSignDigest(digest [32]byte) [32]byte {
	prefix := []byte("\x19Ethereum Signed Message:\n32")
	raw := append(append([]byte{}, prefix...), digest[:]...)
	return crypto.Keccak256Hash(raw)
}
