package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrBadSignature is returned when a signature does not belong to the claimed wallet.
var ErrBadSignature = errors.New("invalid signature")

// HashMessage returns the EIP-191 personal-message hash of msg.
func HashMessage(msg []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return crypto.Keccak256([]byte(prefix), msg)
}

// Recover returns the address that produced sig over msg. sig is R || S || V
// with V in {0,1} or {27,28}.
func Recover(msg, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature length %d", len(sig))
	}
	norm := make([]byte, crypto.SignatureLength)
	copy(norm, sig)
	if norm[crypto.RecoveryIDOffset] >= 27 {
		norm[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(HashMessage(msg), norm)
	if err != nil {
		return common.Address{}, fmt.Errorf("ecrecover: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyHex checks a 0x-prefixed hex signature over msg against wallet.
func VerifyHex(msg []byte, sigHex string, wallet common.Address) error {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return fmt.Errorf("%w: bad hex", ErrBadSignature)
	}
	got, err := Recover(msg, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if got != wallet {
		return ErrBadSignature
	}
	return nil
}
