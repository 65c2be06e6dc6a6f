package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultChallengeTTL is how long a sign-in challenge stays usable.
const DefaultChallengeTTL = 5 * time.Minute

var ErrUnknownChallenge = errors.New("unknown or expired challenge")

// Challenge is a sign-in message a wallet must sign to prove it holds the
// key for Address.
type Challenge struct {
	Address   string
	Nonce     string
	Message   string
	ExpiresAt time.Time
}

// Challenges hands out single-use challenges. They live in process memory,
// so a challenge must be answered by the instance that issued it.
type Challenges struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	pending map[string]Challenge
}

// NewChallenges creates a challenge store. A non-positive ttl means
// DefaultChallengeTTL.
func NewChallenges(ttl time.Duration) *Challenges {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return &Challenges{
		ttl:     ttl,
		now:     time.Now,
		pending: make(map[string]Challenge),
	}
}

// Issue creates a challenge for a checksummed address.
func (c *Challenges) Issue(address string) Challenge {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for nonce, ch := range c.pending {
		if !now.Before(ch.ExpiresAt) {
			delete(c.pending, nonce)
		}
	}

	ch := Challenge{
		Address:   address,
		Nonce:     uuid.NewString(),
		ExpiresAt: now.Add(c.ttl),
	}
	ch.Message = fmt.Sprintf("Sign in to Settle\n\nAddress: %s\nNonce: %s\nIssued At: %s",
		ch.Address, ch.Nonce, now.UTC().Format(time.RFC3339))
	c.pending[ch.Nonce] = ch
	return ch
}

// Take consumes the challenge issued to address under nonce. A challenge can
// be taken once, whether or not the signature then checks out.
func (c *Challenges) Take(address, nonce string) (Challenge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.pending[nonce]
	if !ok {
		return Challenge{}, ErrUnknownChallenge
	}
	delete(c.pending, nonce)

	if !strings.EqualFold(ch.Address, address) || !c.now().Before(ch.ExpiresAt) {
		return Challenge{}, ErrUnknownChallenge
	}
	return ch, nil
}
