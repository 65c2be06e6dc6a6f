package chain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/sha3"
)

// ZeroAddress stands in for an unknown creator.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

var validate = validator.New()

// ValidAddress reports whether s has the shape of an EVM address:
// 0x followed by 40 hex digits, in any case.
func ValidAddress(s string) bool {
	return validate.Var(s, "required,eth_addr") == nil
}

// ValidateAddress returns ErrInvalidAddress wrapped with the offending value.
func ValidateAddress(s string) error {
	if !ValidAddress(s) {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, s)
	}
	return nil
}

// ChecksumAddress returns the EIP-55 mixed-case form of a valid address.
func ChecksumAddress(address string) string {
	lower := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X"))

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	hash := h.Sum(nil)

	out := make([]byte, len(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		nibble := hash[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if c >= 'a' && c <= 'f' && nibble&0x0f >= 8 {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return "0x" + string(out)
}

// NewWalletAddress generates a random, checksummed address for a group to
// collect funds at. It is not backed by a key.
func NewWalletAddress() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate wallet address: %w", err)
	}
	return ChecksumAddress("0x" + hex.EncodeToString(buf)), nil
}

// ExplorerURL links a transaction on the block explorer.
func ExplorerURL(explorerBase, txHash string) string {
	return strings.TrimSuffix(explorerBase, "/") + "/tx/" + txHash
}
