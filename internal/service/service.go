// Package service implements the settle.v1 Connect services on top of the
// ledger and the payment reconciler.
package service

import (
	"errors"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"
	"github.com/go-playground/validator/v10"

	"github.com/mmynk/settle/internal/auth"
	"github.com/mmynk/settle/internal/calculator"
	"github.com/mmynk/settle/internal/chain"
	"github.com/mmynk/settle/internal/ledger"
	"github.com/mmynk/settle/internal/link"
	"github.com/mmynk/settle/internal/models"
	"github.com/mmynk/settle/internal/reconciler"
	"github.com/mmynk/settle/internal/storage"
	"github.com/mmynk/settle/pkg/api"
	"github.com/mmynk/settle/pkg/api/apiconnect"
)

// TxHashHeader carries the transaction hash on errors for transfers that were sent.
const TxHashHeader = "Settle-Tx-Hash"

// AuthenticatedProcedures act on behalf of the connected wallet and need a
// session token. The remaining procedures accept anonymous callers.
var AuthenticatedProcedures = []string{
	apiconnect.LedgerServiceCreateGroupProcedure,
	apiconnect.LedgerServiceListUserGroupsProcedure,
	apiconnect.LedgerServiceUpdateMemberNameProcedure,
	apiconnect.LedgerServiceClaimProcedure,
	apiconnect.LedgerServiceWatchGroupsProcedure,
	apiconnect.PaymentServiceSubmitProcedure,
}

// Register mounts the services on mux.
func Register(mux *http.ServeMux, walletSvc *WalletService, ledgerSvc *LedgerService, paymentSvc *PaymentService, opts ...connect.HandlerOption) {
	mux.Handle(apiconnect.NewWalletServiceHandler(walletSvc, opts...))
	mux.Handle(apiconnect.NewLedgerServiceHandler(ledgerSvc, opts...))
	mux.Handle(apiconnect.NewPaymentServiceHandler(paymentSvc, opts...))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateRequest(msg any) error {
	if err := validate.Struct(msg); err != nil {
		return connect.NewError(connect.CodeInvalidArgument, err)
	}
	return nil
}

var (
	errNotConnected  = errors.New("connect a wallet first")
	errNotYourWallet = errors.New("not the connected wallet")
)

// toConnectError maps domain errors to Connect codes.
func toConnectError(err error) error {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return err
	}

	var validationErrs validator.ValidationErrors
	var transferErr *reconciler.TransferError
	switch {
	case errors.As(err, &transferErr):
		cerr := connect.NewError(connect.CodeUnavailable, errors.New(transferErr.Reason))
		if transferErr.TxHash != "" {
			cerr.Meta().Set(TxHashHeader, transferErr.TxHash)
		}
		return cerr
	case errors.As(err, &validationErrs),
		errors.Is(err, ledger.ErrValidation),
		errors.Is(err, chain.ErrInvalidAddress),
		errors.Is(err, link.ErrInvalidLink):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, ledger.ErrGroupNotFound), errors.Is(err, ledger.ErrPaymentNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, ledger.ErrAlreadyPaid), errors.Is(err, reconciler.ErrNoFundsToClaim):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, reconciler.ErrNotOwner), errors.Is(err, errNotYourWallet):
		return connect.NewError(connect.CodePermissionDenied, err)
	case errors.Is(err, auth.ErrNoWallet),
		errors.Is(err, auth.ErrUnknownChallenge),
		errors.Is(err, auth.ErrSignatureMismatch),
		errors.Is(err, chain.ErrInvalidSignature),
		errors.Is(err, errNotConnected):
		return connect.NewError(connect.CodeUnauthenticated, err)
	case errors.Is(err, storage.ErrConflict):
		return connect.NewError(connect.CodeAborted, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

func toAPIChainInfo(info models.ChainInfo) api.ChainInfo {
	return api.ChainInfo{
		ChainID:      info.ChainID,
		Network:      info.Network,
		TokenSymbol:  info.TokenSymbol,
		TokenAddress: info.TokenAddress,
	}
}

// converter renders models with payment links against a public base URL.
type converter struct {
	linkBase string
}

func (c converter) payment(p *models.Payment, groupName string) api.Payment {
	out := api.Payment{
		ID:              p.ID,
		Amount:          p.Amount,
		Paid:            p.Paid,
		PaidAt:          p.PaidAt,
		PaidBy:          p.PaidBy,
		TransactionHash: p.TransactionHash,
		TxHash:          p.TxHash,
		ExplorerURL:     p.ExplorerURL,
		MemberName:      p.MemberName,
	}
	if c.linkBase != "" {
		l, err := link.Build(c.linkBase, link.Link{PaymentID: p.ID, Amount: p.Amount, GroupName: groupName})
		if err != nil {
			slog.Warn("Failed to build payment link", "payment_id", p.ID, "error", err)
		}
		out.Link = l
	}
	return out
}

func (c converter) group(g *models.Group) api.Group {
	payments := make([]api.Payment, len(g.Payments))
	summaryInput := make([]calculator.PaymentForSummary, len(g.Payments))
	for i := range g.Payments {
		payments[i] = c.payment(&g.Payments[i], g.Name)
		summaryInput[i] = calculator.PaymentForSummary{Amount: g.Payments[i].Amount, Paid: g.Payments[i].Paid}
	}
	summary := calculator.SummarizePayments(summaryInput)

	return api.Group{
		ID:                g.ID,
		Name:              g.Name,
		TotalAmount:       g.TotalAmount,
		WalletAddress:     g.WalletAddress,
		CreatorAddress:    g.CreatorAddress,
		NumberOfSplitters: g.NumberOfSplitters,
		AmountPerPerson:   g.AmountPerPerson,
		AmountCollected:   g.AmountCollected,
		Payments:          payments,
		CreatedAt:         g.CreatedAt,
		Network:           g.Network,
		TokenSymbol:       g.TokenSymbol,
		TokenAddress:      g.TokenAddress,
		Temporary:         g.IsTemporary(),
		PaidCount:         summary.PaidCount,
		UnpaidCount:       summary.UnpaidCount,
		Outstanding:       summary.Outstanding,
	}
}

func (c converter) groups(gs []*models.Group) []api.Group {
	out := make([]api.Group, len(gs))
	for i, g := range gs {
		out[i] = c.group(g)
	}
	return out
}
