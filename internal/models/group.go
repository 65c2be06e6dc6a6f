package models

import (
	"strings"
	"time"
)

// Group represents a shared expense split between a fixed number of people.
// The creator is the implicit Nth splitter, so a group holds
// NumberOfSplitters-1 payments.
type Group struct {
	// ID is the unique identifier for the group. Fabricated groups use a "temp-" prefix.
	ID string `json:"id"`

	// Name is the display name of the group (e.g., "Ski Trip").
	Name string `json:"name"`

	// TotalAmount is the full expense as a decimal string.
	TotalAmount string `json:"totalAmount"`

	// WalletAddress is the destination that collects payments.
	WalletAddress string `json:"walletAddress"`

	// CreatorAddress identifies the creating wallet. Used for ownership filtering.
	CreatorAddress string `json:"creatorAddress"`

	// NumberOfSplitters includes the creator.
	NumberOfSplitters int `json:"numberOfSplitters"`

	// AmountPerPerson is TotalAmount / NumberOfSplitters rounded to 2 decimals at
	// creation time. It is never recomputed.
	AmountPerPerson string `json:"amountPerPerson"`

	// Payments are the embedded copies of this group's payments, in creation order.
	Payments []Payment `json:"payments"`

	// AmountCollected is derived from the paid payments. See ledger.RecomputeCollected.
	AmountCollected string `json:"amountCollected"`

	// CreatedAt is when the group was created.
	CreatedAt time.Time `json:"createdAt"`

	// Network, TokenSymbol and TokenAddress are copied from the chain configuration.
	Network      string `json:"network"`
	TokenSymbol  string `json:"tokenSymbol"`
	TokenAddress string `json:"tokenAddress"`
}

// HasPayment reports whether the group embeds a payment with the given id.
func (g *Group) HasPayment(paymentID string) bool {
	return g.PaymentIndex(paymentID) >= 0
}

// PaymentIndex returns the index of the embedded payment, or -1.
func (g *Group) PaymentIndex(paymentID string) int {
	for i := range g.Payments {
		if g.Payments[i].ID == paymentID {
			return i
		}
	}
	return -1
}

// OwnedBy reports whether address created the group. Addresses compare
// case-insensitively since checksummed and lowercase forms are equivalent.
func (g *Group) OwnedBy(address string) bool {
	return strings.EqualFold(g.CreatorAddress, address)
}

// IsTemporary reports whether the group was fabricated by the payment path.
func (g *Group) IsTemporary() bool {
	return strings.HasPrefix(g.ID, TempGroupPrefix)
}

// TempGroupPrefix marks groups fabricated for a payment link whose group was
// never seen by this store.
const TempGroupPrefix = "temp-"

// ChainInfo describes the network and token a group settles in.
type ChainInfo struct {
	ChainID      string `json:"chainId"`
	Network      string `json:"network"`
	TokenSymbol  string `json:"tokenSymbol"`
	TokenAddress string `json:"tokenAddress"`
}
