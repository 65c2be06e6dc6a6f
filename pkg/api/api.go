// Package api defines the messages exchanged with the settle.v1 services.
// Request fields carry validator tags checked by the service layer.
package api

import "time"

// ChainInfo describes the network and token payments settle in.
type ChainInfo struct {
	ChainID      string `json:"chainId"`
	Network      string `json:"network"`
	TokenSymbol  string `json:"tokenSymbol"`
	TokenAddress string `json:"tokenAddress"`
}

type Payment struct {
	ID              string     `json:"id"`
	Amount          string     `json:"amount"`
	Paid            bool       `json:"paid"`
	PaidAt          *time.Time `json:"paidAt,omitempty"`
	PaidBy          string     `json:"paidBy,omitempty"`
	TransactionHash string     `json:"transactionHash,omitempty"`
	TxHash          string     `json:"txHash,omitempty"`
	ExplorerURL     string     `json:"explorerUrl,omitempty"`
	MemberName      string     `json:"memberName,omitempty"`
	// Link is the shareable payment link.
	Link string `json:"link,omitempty"`
}

type Group struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	TotalAmount       string    `json:"totalAmount"`
	WalletAddress     string    `json:"walletAddress"`
	CreatorAddress    string    `json:"creatorAddress"`
	NumberOfSplitters int       `json:"numberOfSplitters"`
	AmountPerPerson   string    `json:"amountPerPerson"`
	AmountCollected   string    `json:"amountCollected"`
	Payments          []Payment `json:"payments"`
	CreatedAt         time.Time `json:"createdAt"`
	Network           string    `json:"network"`
	TokenSymbol       string    `json:"tokenSymbol"`
	TokenAddress      string    `json:"tokenAddress"`
	Temporary         bool      `json:"temporary,omitempty"`

	// Summary of the embedded payments.
	PaidCount   int    `json:"paidCount"`
	UnpaidCount int    `json:"unpaidCount"`
	Outstanding string `json:"outstanding"`
}

// WalletService

type ChallengeRequest struct {
	Address string `json:"address" validate:"required,eth_addr"`
}

type ChallengeResponse struct {
	Nonce string `json:"nonce"`
	// Message is the text the wallet signs with personal_sign.
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ConnectRequest struct {
	// Address is the wallet's account. Empty asks the server-side wallet.
	Address string `json:"address" validate:"omitempty,eth_addr"`
	// Nonce names the challenge from Challenge; Signature is the wallet's
	// hex signature over its message.
	Nonce     string `json:"nonce" validate:"required_with=Address"`
	Signature string `json:"signature" validate:"required_with=Address"`
}

type ConnectResponse struct {
	Address   string    `json:"address"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Chain     ChainInfo `json:"chain"`
}

type ChainInfoRequest struct{}

type ChainInfoResponse struct {
	Chain ChainInfo `json:"chain"`
}

// LedgerService

type CreateGroupRequest struct {
	Name              string `json:"name" validate:"required,max=100"`
	TotalAmount       string `json:"totalAmount" validate:"required,numeric"`
	NumberOfSplitters int    `json:"numberOfSplitters" validate:"gte=2,lte=100"`
}

type CreateGroupResponse struct {
	Group Group `json:"group"`
}

type GetGroupRequest struct {
	GroupID string `json:"groupId" validate:"required"`
}

type GetGroupResponse struct {
	Group Group `json:"group"`
}

type ListUserGroupsRequest struct {
	// Address defaults to the connected wallet and must match it when set.
	Address string `json:"address" validate:"omitempty,eth_addr"`
}

type ListUserGroupsResponse struct {
	Groups []Group `json:"groups"`
}

type GetPaymentRequest struct {
	PaymentID string `json:"paymentId" validate:"required"`
}

type GetPaymentResponse struct {
	Payment Payment `json:"payment"`
	Group   Group   `json:"group"`
}

type UpdateMemberNameRequest struct {
	GroupID    string `json:"groupId" validate:"required"`
	PaymentID  string `json:"paymentId" validate:"required"`
	MemberName string `json:"memberName" validate:"max=100"`
}

type UpdateMemberNameResponse struct{}

type RecomputeCollectedRequest struct {
	GroupID string `json:"groupId" validate:"required"`
}

type RecomputeCollectedResponse struct {
	AmountCollected string `json:"amountCollected"`
}

type ClaimRequest struct {
	GroupID string `json:"groupId" validate:"required"`
	// Destination defaults to the connected wallet.
	Destination string `json:"destination" validate:"omitempty,eth_addr"`
}

type ClaimResponse struct {
	GroupID     string `json:"groupId"`
	Amount      string `json:"amount"`
	Destination string `json:"destination"`
	TxHash      string `json:"txHash"`
	ExplorerURL string `json:"explorerUrl"`
}

type WatchGroupsRequest struct {
	// Address defaults to the connected wallet and must match it when set.
	Address         string `json:"address" validate:"omitempty,eth_addr"`
	SelectedGroupID string `json:"selectedGroupId"`
}

type WatchGroupsResponse struct {
	Trigger  string  `json:"trigger"`
	Groups   []Group `json:"groups"`
	Selected string  `json:"selected"`
}

// PaymentService

// PaymentRef identifies a payment either by a full link or by its parts.
// Fields set explicitly win over the ones parsed from Link.
type PaymentRef struct {
	Link      string `json:"link"`
	PaymentID string `json:"paymentId" validate:"required_without=Link"`
	Amount    string `json:"amount" validate:"omitempty,numeric"`
	GroupName string `json:"groupName" validate:"max=100"`
}

type LocateRequest struct {
	PaymentRef
}

type LocateResponse struct {
	State   string  `json:"state"`
	Payment Payment `json:"payment"`
	// Group is empty when the payment has no group yet.
	Group  *Group `json:"group,omitempty"`
	Amount string `json:"amount"`
}

type PreviewRequest struct {
	PaymentRef
}

type PreviewResponse struct {
	Destination  string `json:"destination"`
	Amount       string `json:"amount"`
	TokenSymbol  string `json:"tokenSymbol"`
	TokenAddress string `json:"tokenAddress"`
	Network      string `json:"network"`
	Fee          string `json:"fee,omitempty"`
	Sufficient   *bool  `json:"sufficient,omitempty"`
	Warning      string `json:"warning,omitempty"`
}

type SubmitRequest struct {
	PaymentRef
}

// SubmitResponse is returned for every submission that reached the
// executor, including ones that did not confirm.
type SubmitResponse struct {
	Outcome     string `json:"outcome"`
	PaymentID   string `json:"paymentId"`
	GroupID     string `json:"groupId,omitempty"`
	Amount      string `json:"amount"`
	TxHash      string `json:"txHash,omitempty"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
	Reason      string `json:"reason,omitempty"`
}
