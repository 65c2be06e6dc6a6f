// Package apiconnect wires the settle.v1 services to Connect handlers and
// clients. Every handler and client uses the JSON codec from package api.
package apiconnect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/settle/pkg/api"
)

const (
	WalletServiceName  = "settle.v1.WalletService"
	LedgerServiceName  = "settle.v1.LedgerService"
	PaymentServiceName = "settle.v1.PaymentService"
)

// Fully-qualified procedure names, usable as HTTP paths.
const (
	WalletServiceChallengeProcedure = "/" + WalletServiceName + "/Challenge"
	WalletServiceConnectProcedure   = "/" + WalletServiceName + "/Connect"
	WalletServiceChainInfoProcedure = "/" + WalletServiceName + "/ChainInfo"

	LedgerServiceCreateGroupProcedure        = "/" + LedgerServiceName + "/CreateGroup"
	LedgerServiceGetGroupProcedure           = "/" + LedgerServiceName + "/GetGroup"
	LedgerServiceListUserGroupsProcedure     = "/" + LedgerServiceName + "/ListUserGroups"
	LedgerServiceGetPaymentProcedure         = "/" + LedgerServiceName + "/GetPayment"
	LedgerServiceUpdateMemberNameProcedure   = "/" + LedgerServiceName + "/UpdateMemberName"
	LedgerServiceRecomputeCollectedProcedure = "/" + LedgerServiceName + "/RecomputeCollected"
	LedgerServiceClaimProcedure              = "/" + LedgerServiceName + "/Claim"
	LedgerServiceWatchGroupsProcedure        = "/" + LedgerServiceName + "/WatchGroups"

	PaymentServiceLocateProcedure  = "/" + PaymentServiceName + "/Locate"
	PaymentServicePreviewProcedure = "/" + PaymentServiceName + "/Preview"
	PaymentServiceSubmitProcedure  = "/" + PaymentServiceName + "/Submit"
)

// WalletServiceHandler is implemented by the wallet service.
type WalletServiceHandler interface {
	Challenge(context.Context, *connect.Request[api.ChallengeRequest]) (*connect.Response[api.ChallengeResponse], error)
	Connect(context.Context, *connect.Request[api.ConnectRequest]) (*connect.Response[api.ConnectResponse], error)
	ChainInfo(context.Context, *connect.Request[api.ChainInfoRequest]) (*connect.Response[api.ChainInfoResponse], error)
}

// LedgerServiceHandler is implemented by the ledger service.
type LedgerServiceHandler interface {
	CreateGroup(context.Context, *connect.Request[api.CreateGroupRequest]) (*connect.Response[api.CreateGroupResponse], error)
	GetGroup(context.Context, *connect.Request[api.GetGroupRequest]) (*connect.Response[api.GetGroupResponse], error)
	ListUserGroups(context.Context, *connect.Request[api.ListUserGroupsRequest]) (*connect.Response[api.ListUserGroupsResponse], error)
	GetPayment(context.Context, *connect.Request[api.GetPaymentRequest]) (*connect.Response[api.GetPaymentResponse], error)
	UpdateMemberName(context.Context, *connect.Request[api.UpdateMemberNameRequest]) (*connect.Response[api.UpdateMemberNameResponse], error)
	RecomputeCollected(context.Context, *connect.Request[api.RecomputeCollectedRequest]) (*connect.Response[api.RecomputeCollectedResponse], error)
	Claim(context.Context, *connect.Request[api.ClaimRequest]) (*connect.Response[api.ClaimResponse], error)
	WatchGroups(context.Context, *connect.Request[api.WatchGroupsRequest], *connect.ServerStream[api.WatchGroupsResponse]) error
}

// PaymentServiceHandler is implemented by the payment service.
type PaymentServiceHandler interface {
	Locate(context.Context, *connect.Request[api.LocateRequest]) (*connect.Response[api.LocateResponse], error)
	Preview(context.Context, *connect.Request[api.PreviewRequest]) (*connect.Response[api.PreviewResponse], error)
	Submit(context.Context, *connect.Request[api.SubmitRequest]) (*connect.Response[api.SubmitResponse], error)
}

func handlerOptions(opts []connect.HandlerOption) connect.HandlerOption {
	return connect.WithHandlerOptions(append([]connect.HandlerOption{connect.WithCodec(api.Codec{})}, opts...)...)
}

func clientOptions(opts []connect.ClientOption) connect.ClientOption {
	return connect.WithClientOptions(append([]connect.ClientOption{connect.WithCodec(api.Codec{})}, opts...)...)
}

// route dispatches on the request path the way a ServeMux would, returning
// 404 for unknown procedures.
func route(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := handlers[r.URL.Path]; ok {
			h.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

func servicePath(name string) string {
	return "/" + name + "/"
}

// NewWalletServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewWalletServiceHandler(svc WalletServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opt := handlerOptions(opts)
	return servicePath(WalletServiceName), route(map[string]http.Handler{
		WalletServiceChallengeProcedure: connect.NewUnaryHandler(WalletServiceChallengeProcedure, svc.Challenge, opt),
		WalletServiceConnectProcedure:   connect.NewUnaryHandler(WalletServiceConnectProcedure, svc.Connect, opt),
		WalletServiceChainInfoProcedure: connect.NewUnaryHandler(WalletServiceChainInfoProcedure, svc.ChainInfo, opt),
	})
}

// NewLedgerServiceHandler builds an HTTP handler from the service implementation.
func NewLedgerServiceHandler(svc LedgerServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opt := handlerOptions(opts)
	return servicePath(LedgerServiceName), route(map[string]http.Handler{
		LedgerServiceCreateGroupProcedure:        connect.NewUnaryHandler(LedgerServiceCreateGroupProcedure, svc.CreateGroup, opt),
		LedgerServiceGetGroupProcedure:           connect.NewUnaryHandler(LedgerServiceGetGroupProcedure, svc.GetGroup, opt),
		LedgerServiceListUserGroupsProcedure:     connect.NewUnaryHandler(LedgerServiceListUserGroupsProcedure, svc.ListUserGroups, opt),
		LedgerServiceGetPaymentProcedure:         connect.NewUnaryHandler(LedgerServiceGetPaymentProcedure, svc.GetPayment, opt),
		LedgerServiceUpdateMemberNameProcedure:   connect.NewUnaryHandler(LedgerServiceUpdateMemberNameProcedure, svc.UpdateMemberName, opt),
		LedgerServiceRecomputeCollectedProcedure: connect.NewUnaryHandler(LedgerServiceRecomputeCollectedProcedure, svc.RecomputeCollected, opt),
		LedgerServiceClaimProcedure:              connect.NewUnaryHandler(LedgerServiceClaimProcedure, svc.Claim, opt),
		LedgerServiceWatchGroupsProcedure:        connect.NewServerStreamHandler(LedgerServiceWatchGroupsProcedure, svc.WatchGroups, opt),
	})
}

// NewPaymentServiceHandler builds an HTTP handler from the service implementation.
func NewPaymentServiceHandler(svc PaymentServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opt := handlerOptions(opts)
	return servicePath(PaymentServiceName), route(map[string]http.Handler{
		PaymentServiceLocateProcedure:  connect.NewUnaryHandler(PaymentServiceLocateProcedure, svc.Locate, opt),
		PaymentServicePreviewProcedure: connect.NewUnaryHandler(PaymentServicePreviewProcedure, svc.Preview, opt),
		PaymentServiceSubmitProcedure:  connect.NewUnaryHandler(PaymentServiceSubmitProcedure, svc.Submit, opt),
	})
}

// WalletServiceClient is a client for settle.v1.WalletService.
type WalletServiceClient struct {
	challenge *connect.Client[api.ChallengeRequest, api.ChallengeResponse]
	connect   *connect.Client[api.ConnectRequest, api.ConnectResponse]
	chainInfo *connect.Client[api.ChainInfoRequest, api.ChainInfoResponse]
}

// NewWalletServiceClient constructs a client. baseURL is the server root,
// e.g. http://localhost:8080.
func NewWalletServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *WalletServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opt := clientOptions(opts)
	return &WalletServiceClient{
		challenge: connect.NewClient[api.ChallengeRequest, api.ChallengeResponse](httpClient, baseURL+WalletServiceChallengeProcedure, opt),
		connect:   connect.NewClient[api.ConnectRequest, api.ConnectResponse](httpClient, baseURL+WalletServiceConnectProcedure, opt),
		chainInfo: connect.NewClient[api.ChainInfoRequest, api.ChainInfoResponse](httpClient, baseURL+WalletServiceChainInfoProcedure, opt),
	}
}

func (c *WalletServiceClient) Challenge(ctx context.Context, req *connect.Request[api.ChallengeRequest]) (*connect.Response[api.ChallengeResponse], error) {
	return c.challenge.CallUnary(ctx, req)
}

func (c *WalletServiceClient) Connect(ctx context.Context, req *connect.Request[api.ConnectRequest]) (*connect.Response[api.ConnectResponse], error) {
	return c.connect.CallUnary(ctx, req)
}

func (c *WalletServiceClient) ChainInfo(ctx context.Context, req *connect.Request[api.ChainInfoRequest]) (*connect.Response[api.ChainInfoResponse], error) {
	return c.chainInfo.CallUnary(ctx, req)
}

// LedgerServiceClient is a client for settle.v1.LedgerService.
type LedgerServiceClient struct {
	createGroup        *connect.Client[api.CreateGroupRequest, api.CreateGroupResponse]
	getGroup           *connect.Client[api.GetGroupRequest, api.GetGroupResponse]
	listUserGroups     *connect.Client[api.ListUserGroupsRequest, api.ListUserGroupsResponse]
	getPayment         *connect.Client[api.GetPaymentRequest, api.GetPaymentResponse]
	updateMemberName   *connect.Client[api.UpdateMemberNameRequest, api.UpdateMemberNameResponse]
	recomputeCollected *connect.Client[api.RecomputeCollectedRequest, api.RecomputeCollectedResponse]
	claim              *connect.Client[api.ClaimRequest, api.ClaimResponse]
	watchGroups        *connect.Client[api.WatchGroupsRequest, api.WatchGroupsResponse]
}

// NewLedgerServiceClient constructs a client.
func NewLedgerServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *LedgerServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opt := clientOptions(opts)
	return &LedgerServiceClient{
		createGroup:        connect.NewClient[api.CreateGroupRequest, api.CreateGroupResponse](httpClient, baseURL+LedgerServiceCreateGroupProcedure, opt),
		getGroup:           connect.NewClient[api.GetGroupRequest, api.GetGroupResponse](httpClient, baseURL+LedgerServiceGetGroupProcedure, opt),
		listUserGroups:     connect.NewClient[api.ListUserGroupsRequest, api.ListUserGroupsResponse](httpClient, baseURL+LedgerServiceListUserGroupsProcedure, opt),
		getPayment:         connect.NewClient[api.GetPaymentRequest, api.GetPaymentResponse](httpClient, baseURL+LedgerServiceGetPaymentProcedure, opt),
		updateMemberName:   connect.NewClient[api.UpdateMemberNameRequest, api.UpdateMemberNameResponse](httpClient, baseURL+LedgerServiceUpdateMemberNameProcedure, opt),
		recomputeCollected: connect.NewClient[api.RecomputeCollectedRequest, api.RecomputeCollectedResponse](httpClient, baseURL+LedgerServiceRecomputeCollectedProcedure, opt),
		claim:              connect.NewClient[api.ClaimRequest, api.ClaimResponse](httpClient, baseURL+LedgerServiceClaimProcedure, opt),
		watchGroups:        connect.NewClient[api.WatchGroupsRequest, api.WatchGroupsResponse](httpClient, baseURL+LedgerServiceWatchGroupsProcedure, opt),
	}
}

func (c *LedgerServiceClient) CreateGroup(ctx context.Context, req *connect.Request[api.CreateGroupRequest]) (*connect.Response[api.CreateGroupResponse], error) {
	return c.createGroup.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) GetGroup(ctx context.Context, req *connect.Request[api.GetGroupRequest]) (*connect.Response[api.GetGroupResponse], error) {
	return c.getGroup.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) ListUserGroups(ctx context.Context, req *connect.Request[api.ListUserGroupsRequest]) (*connect.Response[api.ListUserGroupsResponse], error) {
	return c.listUserGroups.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) GetPayment(ctx context.Context, req *connect.Request[api.GetPaymentRequest]) (*connect.Response[api.GetPaymentResponse], error) {
	return c.getPayment.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) UpdateMemberName(ctx context.Context, req *connect.Request[api.UpdateMemberNameRequest]) (*connect.Response[api.UpdateMemberNameResponse], error) {
	return c.updateMemberName.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) RecomputeCollected(ctx context.Context, req *connect.Request[api.RecomputeCollectedRequest]) (*connect.Response[api.RecomputeCollectedResponse], error) {
	return c.recomputeCollected.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) Claim(ctx context.Context, req *connect.Request[api.ClaimRequest]) (*connect.Response[api.ClaimResponse], error) {
	return c.claim.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) WatchGroups(ctx context.Context, req *connect.Request[api.WatchGroupsRequest]) (*connect.ServerStreamForClient[api.WatchGroupsResponse], error) {
	return c.watchGroups.CallServerStream(ctx, req)
}

// PaymentServiceClient is a client for settle.v1.PaymentService.
type PaymentServiceClient struct {
	locate  *connect.Client[api.LocateRequest, api.LocateResponse]
	preview *connect.Client[api.PreviewRequest, api.PreviewResponse]
	submit  *connect.Client[api.SubmitRequest, api.SubmitResponse]
}

// NewPaymentServiceClient constructs a client.
func NewPaymentServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *PaymentServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opt := clientOptions(opts)
	return &PaymentServiceClient{
		locate:  connect.NewClient[api.LocateRequest, api.LocateResponse](httpClient, baseURL+PaymentServiceLocateProcedure, opt),
		preview: connect.NewClient[api.PreviewRequest, api.PreviewResponse](httpClient, baseURL+PaymentServicePreviewProcedure, opt),
		submit:  connect.NewClient[api.SubmitRequest, api.SubmitResponse](httpClient, baseURL+PaymentServiceSubmitProcedure, opt),
	}
}

func (c *PaymentServiceClient) Locate(ctx context.Context, req *connect.Request[api.LocateRequest]) (*connect.Response[api.LocateResponse], error) {
	return c.locate.CallUnary(ctx, req)
}

func (c *PaymentServiceClient) Preview(ctx context.Context, req *connect.Request[api.PreviewRequest]) (*connect.Response[api.PreviewResponse], error) {
	return c.preview.CallUnary(ctx, req)
}

func (c *PaymentServiceClient) Submit(ctx context.Context, req *connect.Request[api.SubmitRequest]) (*connect.Response[api.SubmitResponse], error) {
	return c.submit.CallUnary(ctx, req)
}
