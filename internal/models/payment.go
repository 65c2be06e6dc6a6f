package models

import "time"

// Payment is one member's obligation toward a group.
//
// Paid is monotonic: once true it never reverts. PaidAt, PaidBy,
// TransactionHash and ExplorerURL are set together when Paid flips.
type Payment struct {
	// ID is the shareable key embedded in payment links.
	ID string `json:"id"`

	// Amount is the owning group's AmountPerPerson at creation time.
	Amount string `json:"amount"`

	Paid   bool       `json:"paid"`
	PaidAt *time.Time `json:"paidAt,omitempty"`
	PaidBy string     `json:"paidBy,omitempty"`

	// TransactionHash is set once the transfer confirmed.
	TransactionHash string `json:"transactionHash,omitempty"`

	// TxHash is set as soon as a transfer was submitted, even if it never
	// confirms, so the payer can look it up later.
	TxHash      string `json:"txHash,omitempty"`
	ExplorerURL string `json:"explorerUrl,omitempty"`

	// MemberName is an optional display label, editable at any time.
	MemberName string `json:"memberName,omitempty"`
}
