package simulated

import (
	"context"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/mmynk/settle/internal/chain"
	"github.com/mmynk/settle/internal/models"
)

var _ chain.WalletProvider = (*Wallet)(nil)

// Wallet is a wallet provider holding a single key.
type Wallet struct {
	mu        sync.RWMutex
	key       *secp256k1.PrivateKey
	account   string
	connected bool
	info      models.ChainInfo
}

// NewWallet creates a disconnected wallet for key on the given chain.
func NewWallet(key *secp256k1.PrivateKey, info models.ChainInfo) *Wallet {
	return &Wallet{key: key, account: chain.PublicKeyAddress(key.PubKey()), info: info}
}

func (w *Wallet) Connect(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = true
	return w.account, nil
}

func (w *Wallet) Disconnect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = false
	return nil
}

func (w *Wallet) CurrentAccount(ctx context.Context) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.connected {
		return "", false
	}
	return w.account, true
}

func (w *Wallet) IsConnected(ctx context.Context) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

func (w *Wallet) ChainInfo(ctx context.Context) models.ChainInfo {
	return w.info
}

func (w *Wallet) SignMessage(ctx context.Context, message string) ([]byte, error) {
	if !w.IsConnected(ctx) {
		return nil, chain.ErrNotConnected
	}
	return chain.SignMessage(w.key, message), nil
}
