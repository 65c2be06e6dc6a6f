package chain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// SignatureLength is the size of an r || s || v wallet signature.
const SignatureLength = 65

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidKey       = errors.New("invalid private key")
)

// TextHash is the EIP-191 personal_sign digest of message, the hash wallets
// sign when asked to sign a plain text message.
func TextHash(message string) []byte {
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return h.Sum(nil)
}

// PublicKeyAddress derives the checksummed account address of pub.
func PublicKeyAddress(pub *secp256k1.PublicKey) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(pub.SerializeUncompressed()[1:])
	return ChecksumAddress("0x" + hex.EncodeToString(h.Sum(nil)[12:]))
}

// ParsePrivateKey decodes a hex encoded secp256k1 private key, with or
// without a 0x prefix.
func ParsePrivateKey(s string) (*secp256k1.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if err != nil || len(raw) != secp256k1.PrivKeyBytesLen {
		return nil, ErrInvalidKey
	}
	return secp256k1.PrivKeyFromBytes(raw), nil
}

// SignMessage signs message the way personal_sign does. The result is
// r || s || v with v in {27, 28}.
func SignMessage(key *secp256k1.PrivateKey, message string) []byte {
	// SignCompact lays the signature out as v || r || s.
	compact := ecdsa.SignCompact(key, TextHash(message), false)
	return append(compact[1:], compact[0])
}

// DecodeSignature parses a hex encoded wallet signature.
func DecodeSignature(s string) ([]byte, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	return sig, nil
}

// RecoverSigner returns the address whose key produced sig over message.
// Both v conventions, {0, 1} and {27, 28}, are accepted.
func RecoverSigner(message string, sig []byte) (string, error) {
	if len(sig) != SignatureLength {
		return "", fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	v := sig[64]
	if v < 27 {
		v += 27
	}
	if v != 27 && v != 28 {
		return "", fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, sig[64])
	}

	compact := make([]byte, SignatureLength)
	compact[0] = v
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, TextHash(message))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return PublicKeyAddress(pub), nil
}
