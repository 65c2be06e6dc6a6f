package auth

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/settle/internal/chain"
	"github.com/mmynk/settle/internal/chain/simulated"
	"github.com/mmynk/settle/internal/models"
)

const address = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

func TestJWTManager(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, expiresAt, err := m.Generate(address, "0x14a34")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, address, claims.Address)
	assert.Equal(t, "0x14a34", claims.ChainID)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewJWTManager("other", time.Hour).Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		expired := NewJWTManager("test-secret", -time.Minute)
		token, _, err := expired.Generate(address, "")
		require.NoError(t, err)
		_, err = m.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Validate("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

const (
	creatorKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	payerKey   = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

func mustKey(t *testing.T, hexKey string) *secp256k1.PrivateKey {
	t.Helper()
	key, err := chain.ParsePrivateKey(hexKey)
	require.NoError(t, err)
	return key
}

func sign(key *secp256k1.PrivateKey, message string) string {
	return "0x" + hex.EncodeToString(chain.SignMessage(key, message))
}

func TestChallenges(t *testing.T) {
	c := NewChallenges(time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	ch := c.Issue(address)
	assert.Contains(t, ch.Message, address)
	assert.Contains(t, ch.Message, ch.Nonce)
	assert.Equal(t, now.Add(time.Minute), ch.ExpiresAt)

	t.Run("single use", func(t *testing.T) {
		ch := c.Issue(address)
		got, err := c.Take(address, ch.Nonce)
		require.NoError(t, err)
		assert.Equal(t, ch, got)
		_, err = c.Take(address, ch.Nonce)
		assert.ErrorIs(t, err, ErrUnknownChallenge)
	})

	t.Run("bound to its address", func(t *testing.T) {
		ch := c.Issue(address)
		_, err := c.Take("0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359", ch.Nonce)
		assert.ErrorIs(t, err, ErrUnknownChallenge)
		_, err = c.Take(address, ch.Nonce)
		assert.ErrorIs(t, err, ErrUnknownChallenge, "a failed take still burns the nonce")
	})

	t.Run("expires", func(t *testing.T) {
		ch := c.Issue(address)
		now = now.Add(time.Minute)
		_, err := c.Take(address, ch.Nonce)
		assert.ErrorIs(t, err, ErrUnknownChallenge)
	})
}

func TestWalletAuthenticator(t *testing.T) {
	ctx := context.Background()
	creator := mustKey(t, creatorKey)
	payer := mustKey(t, payerKey)
	creatorAddress := chain.PublicKeyAddress(creator.PubKey())

	connectAs := func(a *WalletAuthenticator, claimed string, key *secp256k1.PrivateKey) (string, error) {
		ch, err := a.Challenge(ctx, claimed)
		require.NoError(t, err)
		return a.Authenticate(ctx, Credentials{
			Address:   claimed,
			Nonce:     ch.Nonce,
			Signature: sign(key, ch.Message),
		})
	}

	t.Run("accepts the key holder", func(t *testing.T) {
		a := NewWalletAuthenticator(NewChallenges(0), nil)
		got, err := connectAs(a, strings.ToLower(creatorAddress), creator)
		require.NoError(t, err)
		assert.Equal(t, creatorAddress, got)
	})

	t.Run("rejects another key", func(t *testing.T) {
		a := NewWalletAuthenticator(NewChallenges(0), nil)
		_, err := connectAs(a, creatorAddress, payer)
		assert.ErrorIs(t, err, ErrSignatureMismatch)
	})

	t.Run("rejects a replayed signature", func(t *testing.T) {
		a := NewWalletAuthenticator(NewChallenges(0), nil)
		ch, err := a.Challenge(ctx, creatorAddress)
		require.NoError(t, err)
		creds := Credentials{Address: creatorAddress, Nonce: ch.Nonce, Signature: sign(creator, ch.Message)}

		_, err = a.Authenticate(ctx, creds)
		require.NoError(t, err)
		_, err = a.Authenticate(ctx, creds)
		assert.ErrorIs(t, err, ErrUnknownChallenge)
	})

	t.Run("rejects a signature over another message", func(t *testing.T) {
		a := NewWalletAuthenticator(NewChallenges(0), nil)
		ch, err := a.Challenge(ctx, creatorAddress)
		require.NoError(t, err)
		_, err = a.Authenticate(ctx, Credentials{
			Address:   creatorAddress,
			Nonce:     ch.Nonce,
			Signature: sign(creator, "Sign in to Settle"),
		})
		assert.Error(t, err)
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		a := NewWalletAuthenticator(NewChallenges(0), nil)
		_, err := a.Challenge(ctx, "0x123")
		assert.ErrorIs(t, err, chain.ErrInvalidAddress)

		ch, err := a.Challenge(ctx, creatorAddress)
		require.NoError(t, err)
		_, err = a.Authenticate(ctx, Credentials{Address: creatorAddress, Nonce: ch.Nonce, Signature: "0xdead"})
		assert.ErrorIs(t, err, chain.ErrInvalidSignature)
	})

	t.Run("no address and no wallet", func(t *testing.T) {
		_, err := NewWalletAuthenticator(NewChallenges(0), nil).Authenticate(ctx, Credentials{})
		assert.ErrorIs(t, err, ErrNoWallet)
	})

	t.Run("server wallet signs for itself", func(t *testing.T) {
		wallet := simulated.NewWallet(creator, models.ChainInfo{})
		got, err := NewWalletAuthenticator(NewChallenges(0), wallet).Authenticate(ctx, Credentials{})
		require.NoError(t, err)
		assert.Equal(t, creatorAddress, got)
		assert.True(t, wallet.IsConnected(ctx))
	})
}
