package voucher

import (
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DeriveID computes the id the voucher manager assigns on issue:
// keccak256(abi.encode(manager, spender, salt)).
func DeriveID(manager, spender common.Address, salt [32]byte) common.Hash {
	// Each element occupies a 32-byte slot; addresses are right-aligned.
	encoded := make([]byte, 3*32)
	copy(encoded[12:32], manager.Bytes())
	copy(encoded[44:64], spender.Bytes())
	copy(encoded[64:96], salt[:])
	return crypto.Keccak256Hash(encoded)
}

// NewSalt returns 32 random bytes for an issue call.
func NewSalt() ([32]byte, error) {
	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return salt, fmt.Errorf("read salt: %w", err)
	}
	return salt, nil
}
