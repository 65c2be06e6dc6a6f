package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/settle/internal/ledger"
	"github.com/mmynk/settle/internal/metrics"
	"github.com/mmynk/settle/internal/middleware"
	"github.com/mmynk/settle/internal/reconciler"
	"github.com/mmynk/settle/internal/watch"
	"github.com/mmynk/settle/pkg/api"
)

// LedgerService implements the Connect LedgerService.
type LedgerService struct {
	ledger     *ledger.Store
	reconciler *reconciler.Reconciler
	poller     *watch.Poller
	metrics    *metrics.Metrics
	conv       converter
}

// NewLedgerService creates a new LedgerService. linkBase is the public URL
// payment links are built against; m may be nil.
func NewLedgerService(l *ledger.Store, r *reconciler.Reconciler, poller *watch.Poller, m *metrics.Metrics, linkBase string) *LedgerService {
	return &LedgerService{
		ledger:     l,
		reconciler: r,
		poller:     poller,
		metrics:    m,
		conv:       converter{linkBase: linkBase},
	}
}

// CreateGroup creates a group owned by the connected wallet.
func (s *LedgerService) CreateGroup(ctx context.Context, req *connect.Request[api.CreateGroupRequest]) (*connect.Response[api.CreateGroupResponse], error) {
	creator := middleware.GetAddress(ctx)
	slog.Info("CreateGroup request received",
		"name", req.Msg.Name,
		"total", req.Msg.TotalAmount,
		"splitters", req.Msg.NumberOfSplitters,
		"creator", creator,
	)
	if creator == "" {
		return nil, toConnectError(errNotConnected)
	}
	if err := validateRequest(req.Msg); err != nil {
		return nil, err
	}

	group, err := s.ledger.CreateGroup(ctx, req.Msg.Name, req.Msg.TotalAmount, req.Msg.NumberOfSplitters, creator)
	if err != nil {
		slog.Error("CreateGroup failed", "error", err)
		return nil, toConnectError(err)
	}
	s.metrics.GroupCreated()

	return connect.NewResponse(&api.CreateGroupResponse{Group: s.conv.group(group)}), nil
}

// GetGroup retrieves a group by ID.
func (s *LedgerService) GetGroup(ctx context.Context, req *connect.Request[api.GetGroupRequest]) (*connect.Response[api.GetGroupResponse], error) {
	if err := validateRequest(req.Msg); err != nil {
		return nil, err
	}

	group, ok := s.ledger.GetGroup(ctx, req.Msg.GroupID)
	if !ok {
		return nil, toConnectError(fmt.Errorf("%w: %s", ledger.ErrGroupNotFound, req.Msg.GroupID))
	}

	return connect.NewResponse(&api.GetGroupResponse{Group: s.conv.group(group)}), nil
}

// ListUserGroups lists the groups a wallet created, newest first.
func (s *LedgerService) ListUserGroups(ctx context.Context, req *connect.Request[api.ListUserGroupsRequest]) (*connect.Response[api.ListUserGroupsResponse], error) {
	if err := validateRequest(req.Msg); err != nil {
		return nil, err
	}
	address, err := ownAddress(ctx, req.Msg.Address)
	if err != nil {
		return nil, toConnectError(err)
	}

	groups := s.ledger.GetUserGroups(ctx, address)
	slog.Info("ListUserGroups successful", "address", address, "count", len(groups))

	return connect.NewResponse(&api.ListUserGroupsResponse{Groups: s.conv.groups(groups)}), nil
}

// GetPayment retrieves a payment and the group it belongs to.
func (s *LedgerService) GetPayment(ctx context.Context, req *connect.Request[api.GetPaymentRequest]) (*connect.Response[api.GetPaymentResponse], error) {
	if err := validateRequest(req.Msg); err != nil {
		return nil, err
	}

	payment, group, ok := s.ledger.GetPayment(ctx, req.Msg.PaymentID)
	if !ok {
		return nil, toConnectError(fmt.Errorf("%w: %s", ledger.ErrPaymentNotFound, req.Msg.PaymentID))
	}

	return connect.NewResponse(&api.GetPaymentResponse{
		Payment: s.conv.payment(payment, group.Name),
		Group:   s.conv.group(group),
	}), nil
}

// UpdateMemberName labels a payment. Only the group's creator may do so.
func (s *LedgerService) UpdateMemberName(ctx context.Context, req *connect.Request[api.UpdateMemberNameRequest]) (*connect.Response[api.UpdateMemberNameResponse], error) {
	if err := validateRequest(req.Msg); err != nil {
		return nil, err
	}
	group, ok := s.ledger.GetGroup(ctx, req.Msg.GroupID)
	if !ok {
		return nil, toConnectError(fmt.Errorf("%w: %s", ledger.ErrGroupNotFound, req.Msg.GroupID))
	}
	if !group.OwnedBy(middleware.GetAddress(ctx)) {
		return nil, toConnectError(reconciler.ErrNotOwner)
	}

	if err := s.ledger.UpdateMemberName(ctx, req.Msg.GroupID, req.Msg.PaymentID, req.Msg.MemberName); err != nil {
		slog.Error("UpdateMemberName failed", "group_id", req.Msg.GroupID, "payment_id", req.Msg.PaymentID, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.UpdateMemberNameResponse{}), nil
}

// RecomputeCollected derives a group's collected amount from its paid payments.
func (s *LedgerService) RecomputeCollected(ctx context.Context, req *connect.Request[api.RecomputeCollectedRequest]) (*connect.Response[api.RecomputeCollectedResponse], error) {
	if err := validateRequest(req.Msg); err != nil {
		return nil, err
	}

	collected, err := s.ledger.RecomputeCollected(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.RecomputeCollectedResponse{AmountCollected: collected}), nil
}

// Claim sends a group's collected funds to the creator.
func (s *LedgerService) Claim(ctx context.Context, req *connect.Request[api.ClaimRequest]) (*connect.Response[api.ClaimResponse], error) {
	if err := validateRequest(req.Msg); err != nil {
		return nil, err
	}
	caller := middleware.GetAddress(ctx)
	if caller == "" {
		return nil, toConnectError(errNotConnected)
	}
	destination := req.Msg.Destination
	if destination == "" {
		destination = caller
	}

	res, err := s.reconciler.Claim(ctx, req.Msg.GroupID, caller, destination)
	if err != nil {
		slog.Error("Claim failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.ClaimResponse{
		GroupID:     res.GroupID,
		Amount:      res.Amount,
		Destination: res.Destination,
		TxHash:      res.TxHash,
		ExplorerURL: res.ExplorerURL,
	}), nil
}

// WatchGroups streams a wallet's groups whenever they may have changed.
func (s *LedgerService) WatchGroups(ctx context.Context, req *connect.Request[api.WatchGroupsRequest], stream *connect.ServerStream[api.WatchGroupsResponse]) error {
	if err := validateRequest(req.Msg); err != nil {
		return err
	}
	address, err := ownAddress(ctx, req.Msg.Address)
	if err != nil {
		return toConnectError(err)
	}

	err = s.poller.Watch(ctx, address, req.Msg.SelectedGroupID, func(snap watch.Snapshot) error {
		return stream.Send(&api.WatchGroupsResponse{
			Trigger:  string(snap.Trigger),
			Groups:   s.conv.groups(snap.Groups),
			Selected: snap.Selected,
		})
	})
	if err != nil && ctx.Err() == nil {
		return toConnectError(err)
	}
	return nil
}

// ownAddress resolves the wallet a request asks about. Callers may only ask
// about the wallet they connected with.
func ownAddress(ctx context.Context, requested string) (string, error) {
	caller := middleware.GetAddress(ctx)
	if caller == "" {
		return "", errNotConnected
	}
	if requested != "" && !strings.EqualFold(requested, caller) {
		return "", fmt.Errorf("%w: %s", errNotYourWallet, requested)
	}
	return caller, nil
}
