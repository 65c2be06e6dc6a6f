package chain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    bool
	}{
		{"lowercase", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", true},
		{"checksummed", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", true},
		{"zero address", ZeroAddress, true},
		{"missing prefix", "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", false},
		{"too short", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1bea", false},
		{"non hex", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beazz", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidAddress(tt.address))
		})
	}
}

func TestValidateAddress(t *testing.T) {
	err := ValidateAddress("not-an-address")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidAddress))
	assert.Contains(t, err.Error(), "not-an-address")
}

func TestChecksumAddress(t *testing.T) {
	vectors := []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	}

	for _, want := range vectors {
		t.Run(want, func(t *testing.T) {
			assert.Equal(t, want, ChecksumAddress(strings.ToLower(want)))
			assert.Equal(t, want, ChecksumAddress(want))
		})
	}
}

func TestNewWalletAddress(t *testing.T) {
	a, err := NewWalletAddress()
	require.NoError(t, err)
	b, err := NewWalletAddress()
	require.NoError(t, err)

	assert.True(t, ValidAddress(a))
	assert.Equal(t, a, ChecksumAddress(a), "generated address should be checksummed")
	assert.NotEqual(t, a, b)
}

func TestExplorerURL(t *testing.T) {
	assert.Equal(t, "https://sepolia.basescan.org/tx/0xabc", ExplorerURL("https://sepolia.basescan.org", "0xabc"))
	assert.Equal(t, "https://sepolia.basescan.org/tx/0xabc", ExplorerURL("https://sepolia.basescan.org/", "0xabc"))
}

func TestReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"timeout", ErrConfirmationTimeout, "not confirmed yet"},
		{"gas funds", errors.New("insufficient funds for gas * price + value"), "Insufficient ETH"},
		{"rejected", errors.New("MetaMask: user rejected the request"), "rejected by the user"},
		{"allowance", errors.New("gas required exceeds allowance (30000000)"), "exceeds allowance"},
		{"reverted", ErrReverted, "reverted"},
		{"other", errors.New("nonce too low"), "Failed to send transaction: nonce too low"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.want == "" {
				assert.Empty(t, Reason(tt.err))
				return
			}
			assert.Contains(t, Reason(tt.err), tt.want)
		})
	}
}
