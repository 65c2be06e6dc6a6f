package service

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/settle/internal/link"
	"github.com/mmynk/settle/internal/middleware"
	"github.com/mmynk/settle/internal/reconciler"
	"github.com/mmynk/settle/pkg/api"
)

// PaymentService implements the Connect PaymentService. Each call
// locates the payment afresh, so clients hold no attempt state between calls.
type PaymentService struct {
	reconciler *reconciler.Reconciler
	conv       converter
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(r *reconciler.Reconciler, linkBase string) *PaymentService {
	return &PaymentService{reconciler: r, conv: converter{linkBase: linkBase}}
}

// Locate finds the payment behind a link, fabricating placeholder records
// for links this server has never seen.
func (s *PaymentService) Locate(ctx context.Context, req *connect.Request[api.LocateRequest]) (*connect.Response[api.LocateResponse], error) {
	a, err := s.locate(ctx, req.Msg.PaymentRef)
	if err != nil {
		return nil, err
	}

	resp := &api.LocateResponse{
		State:   a.State.String(),
		Payment: s.conv.payment(a.Payment, a.GroupName),
		Amount:  a.EffectiveAmount(),
	}
	if a.Group != nil {
		g := s.conv.group(a.Group)
		resp.Group = &g
		resp.Payment = s.conv.payment(a.Payment, a.Group.Name)
	}
	return connect.NewResponse(resp), nil
}

// Preview describes the transfer a Submit would make.
func (s *PaymentService) Preview(ctx context.Context, req *connect.Request[api.PreviewRequest]) (*connect.Response[api.PreviewResponse], error) {
	a, err := s.locate(ctx, req.Msg.PaymentRef)
	if err != nil {
		return nil, err
	}

	pv, err := s.reconciler.Preview(ctx, a, middleware.GetAddress(ctx))
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.PreviewResponse{
		Destination:  pv.Destination,
		Amount:       pv.Amount,
		TokenSymbol:  pv.Token.Symbol,
		TokenAddress: pv.Token.Address,
		Network:      pv.Network,
		Fee:          pv.Fee,
		Sufficient:   pv.Sufficient,
		Warning:      pv.Warning,
	}), nil
}

// Submit pays the payment from the connected wallet. Transfers that were
// rejected, timed out or reverted are reported in the response outcome,
// not as errors.
func (s *PaymentService) Submit(ctx context.Context, req *connect.Request[api.SubmitRequest]) (*connect.Response[api.SubmitResponse], error) {
	payer := middleware.GetAddress(ctx)
	if payer == "" {
		return nil, toConnectError(errNotConnected)
	}
	a, err := s.locate(ctx, req.Msg.PaymentRef)
	if err != nil {
		return nil, err
	}

	res, err := s.reconciler.Submit(ctx, a, payer, "")
	if res == nil {
		return nil, toConnectError(err)
	}
	var transferErr *reconciler.TransferError
	if err != nil && !errors.As(err, &transferErr) {
		// The transfer confirmed; only the bookkeeping after it failed.
		slog.Error("Submit finished with error", "payment_id", res.PaymentID, "tx_hash", res.TxHash, "error", err)
	}

	return connect.NewResponse(&api.SubmitResponse{
		Outcome:     string(res.Outcome),
		PaymentID:   res.PaymentID,
		GroupID:     res.GroupID,
		Amount:      res.Amount,
		TxHash:      res.TxHash,
		ExplorerURL: res.ExplorerURL,
		Reason:      res.Reason,
	}), nil
}

func (s *PaymentService) locate(ctx context.Context, ref api.PaymentRef) (*reconciler.Attempt, error) {
	if err := validateRequest(ref); err != nil {
		return nil, err
	}

	var l link.Link
	if ref.Link != "" {
		parsed, err := link.Parse(ref.Link)
		if err != nil {
			return nil, toConnectError(err)
		}
		l = parsed
	}
	if ref.PaymentID != "" {
		l.PaymentID = ref.PaymentID
	}
	if ref.Amount != "" {
		l.Amount = ref.Amount
	}
	if ref.GroupName != "" {
		l.GroupName = ref.GroupName
	}

	a, err := s.reconciler.Locate(ctx, l, middleware.GetAddress(ctx))
	if err != nil {
		slog.Warn("Payment lookup failed", "payment_id", l.PaymentID, "error", err)
		return nil, toConnectError(err)
	}
	return a, nil
}
