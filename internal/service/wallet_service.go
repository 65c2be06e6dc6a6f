package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/settle/internal/auth"
	"github.com/mmynk/settle/internal/chain"
	"github.com/mmynk/settle/internal/models"
	"github.com/mmynk/settle/pkg/api"
)

// WalletService implements the WalletService RPC interface.
type WalletService struct {
	authenticator auth.Authenticator
	jwtManager    *auth.JWTManager
	// wallet may be nil when the server has no wallet of its own.
	wallet   chain.WalletProvider
	fallback models.ChainInfo
}

// NewWalletService creates a new wallet service. fallback is reported as
// the chain info whenever no wallet is connected.
func NewWalletService(authenticator auth.Authenticator, jwtManager *auth.JWTManager, wallet chain.WalletProvider, fallback models.ChainInfo) *WalletService {
	return &WalletService{
		authenticator: authenticator,
		jwtManager:    jwtManager,
		wallet:        wallet,
		fallback:      fallback,
	}
}

// Challenge issues a sign-in message for a wallet to sign.
func (s *WalletService) Challenge(ctx context.Context, req *connect.Request[api.ChallengeRequest]) (*connect.Response[api.ChallengeResponse], error) {
	if err := validateRequest(req.Msg); err != nil {
		return nil, err
	}

	ch, err := s.authenticator.Challenge(ctx, req.Msg.Address)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.ChallengeResponse{
		Nonce:     ch.Nonce,
		Message:   ch.Message,
		ExpiresAt: ch.ExpiresAt,
	}), nil
}

// Connect verifies a signed challenge and issues a session token for the
// signing wallet.
func (s *WalletService) Connect(ctx context.Context, req *connect.Request[api.ConnectRequest]) (*connect.Response[api.ConnectResponse], error) {
	if err := validateRequest(req.Msg); err != nil {
		return nil, err
	}

	address, err := s.authenticator.Authenticate(ctx, auth.Credentials{
		Address:   req.Msg.Address,
		Nonce:     req.Msg.Nonce,
		Signature: req.Msg.Signature,
	})
	if err != nil {
		slog.Warn("Wallet connection failed", "address", req.Msg.Address, "error", err)
		return nil, toConnectError(err)
	}

	info := s.chainInfo(ctx)
	token, expiresAt, err := s.jwtManager.Generate(address, info.ChainID)
	if err != nil {
		slog.Error("Failed to generate token", "address", address, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	slog.Info("Wallet connected", "address", address, "network", info.Network)

	return connect.NewResponse(&api.ConnectResponse{
		Address:   address,
		Token:     token,
		ExpiresAt: expiresAt,
		Chain:     toAPIChainInfo(info),
	}), nil
}

// ChainInfo reports the network and token in use.
func (s *WalletService) ChainInfo(ctx context.Context, req *connect.Request[api.ChainInfoRequest]) (*connect.Response[api.ChainInfoResponse], error) {
	return connect.NewResponse(&api.ChainInfoResponse{Chain: toAPIChainInfo(s.chainInfo(ctx))}), nil
}

func (s *WalletService) chainInfo(ctx context.Context) models.ChainInfo {
	if s.wallet == nil || !s.wallet.IsConnected(ctx) {
		return s.fallback
	}
	info := s.wallet.ChainInfo(ctx)
	if info.ChainID == "" {
		return s.fallback
	}
	return info
}
