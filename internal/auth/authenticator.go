package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmynk/settle/internal/chain"
)

var (
	ErrNoWallet          = errors.New("no wallet address given and no wallet connected")
	ErrSignatureMismatch = errors.New("signature was not made by the claimed address")
)

// Credentials is what a client presents to connect: the address it claims,
// and its signature over the challenge issued under Nonce.
type Credentials struct {
	Address   string
	Nonce     string
	Signature string
}

// Authenticator turns a connect request into a wallet identity.
// This abstraction allows swapping between identity sources (a browser wallet
// signing a challenge, a server-side wallet provider) without changing the
// service layer code.
type Authenticator interface {
	// Challenge issues a message for address to sign.
	Challenge(ctx context.Context, address string) (Challenge, error)
	// Authenticate returns the checksummed address of the connecting wallet
	// once it has proven it holds the address's key.
	Authenticate(ctx context.Context, creds Credentials) (string, error)
}

// WalletAuthenticator verifies signed challenges. When a client presents no
// address it asks the server's wallet provider, if any, to sign instead.
type WalletAuthenticator struct {
	challenges *Challenges
	wallet     chain.WalletProvider
}

// NewWalletAuthenticator creates a WalletAuthenticator. wallet may be nil.
func NewWalletAuthenticator(challenges *Challenges, wallet chain.WalletProvider) *WalletAuthenticator {
	return &WalletAuthenticator{challenges: challenges, wallet: wallet}
}

func (a *WalletAuthenticator) Challenge(ctx context.Context, address string) (Challenge, error) {
	if err := chain.ValidateAddress(address); err != nil {
		return Challenge{}, err
	}
	return a.challenges.Issue(chain.ChecksumAddress(address)), nil
}

func (a *WalletAuthenticator) Authenticate(ctx context.Context, creds Credentials) (string, error) {
	if creds.Address == "" {
		return a.authenticateServerWallet(ctx)
	}

	if err := chain.ValidateAddress(creds.Address); err != nil {
		return "", err
	}
	address := chain.ChecksumAddress(creds.Address)

	ch, err := a.challenges.Take(address, creds.Nonce)
	if err != nil {
		return "", err
	}
	sig, err := chain.DecodeSignature(creds.Signature)
	if err != nil {
		return "", err
	}
	return verify(ch, sig)
}

// authenticateServerWallet runs the challenge against the server's own
// wallet provider.
func (a *WalletAuthenticator) authenticateServerWallet(ctx context.Context) (string, error) {
	if a.wallet == nil {
		return "", ErrNoWallet
	}
	address, ok := a.wallet.CurrentAccount(ctx)
	if !ok {
		connected, err := a.wallet.Connect(ctx)
		if err != nil {
			return "", err
		}
		address = connected
	}

	ch, err := a.Challenge(ctx, address)
	if err != nil {
		return "", err
	}
	if _, err := a.challenges.Take(ch.Address, ch.Nonce); err != nil {
		return "", err
	}
	sig, err := a.wallet.SignMessage(ctx, ch.Message)
	if err != nil {
		return "", fmt.Errorf("wallet failed to sign challenge: %w", err)
	}
	return verify(ch, sig)
}

func verify(ch Challenge, sig []byte) (string, error) {
	signer, err := chain.RecoverSigner(ch.Message, sig)
	if err != nil {
		return "", err
	}
	if signer != ch.Address {
		return "", fmt.Errorf("%w: signed by %s", ErrSignatureMismatch, signer)
	}
	return ch.Address, nil
}
