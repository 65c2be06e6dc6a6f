package middleware

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/settle/internal/auth"
	"github.com/mmynk/settle/internal/chain"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// AddressKey is the context key for storing the authenticated wallet address.
	AddressKey contextKey = "address"
	// ChainIDKey is the context key for the chain the wallet connected on.
	ChainIDKey contextKey = "chain_id"
)

// GetAddress extracts the wallet address from the context.
// Returns empty string if not found.
func GetAddress(ctx context.Context) string {
	address, _ := ctx.Value(AddressKey).(string)
	return address
}

// GetChainID extracts the chain id from the context.
func GetChainID(ctx context.Context) string {
	chainID, _ := ctx.Value(ChainIDKey).(string)
	return chainID
}

// WithAddress returns a context carrying the given wallet address.
func WithAddress(ctx context.Context, address string) context.Context {
	return context.WithValue(ctx, AddressKey, chain.ChecksumAddress(address))
}

// RequireAuth returns an interceptor that validates JWT tokens and requires
// authentication on the listed procedures. Other procedures accept a valid
// token when present and run anonymously otherwise. With no procedures listed
// every call requires a token.
func RequireAuth(jwtManager *auth.JWTManager, procedures ...string) connect.Interceptor {
	required := make(map[string]bool, len(procedures))
	for _, p := range procedures {
		required[p] = true
	}
	return &authInterceptor{
		jwt: jwtManager,
		required: func(procedure string) bool {
			return len(required) == 0 || required[procedure]
		},
	}
}

type authInterceptor struct {
	jwt      *auth.JWTManager
	required func(procedure string) bool
}

func (i *authInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		ctx, err := i.authenticate(ctx, req.Spec().Procedure, req.Header())
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

func (i *authInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *authInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		ctx, err := i.authenticate(ctx, conn.Spec().Procedure, conn.RequestHeader())
		if err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

// authenticate adds the wallet identity to ctx when the request carries a
// valid bearer token.
func (i *authInterceptor) authenticate(ctx context.Context, procedure string, header http.Header) (context.Context, error) {
	required := i.required(procedure)

	// Extract Authorization header
	authHeader := header.Get("Authorization")
	if authHeader == "" {
		if required {
			return ctx, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
		}
		return ctx, nil
	}

	// Parse Bearer token
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		if required {
			return ctx, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidToken)
		}
		return ctx, nil
	}

	claims, err := i.jwt.Validate(parts[1])
	if err != nil {
		if required {
			return ctx, connect.NewError(connect.CodeUnauthenticated, err)
		}
		return ctx, nil
	}

	ctx = WithAddress(ctx, claims.Address)
	ctx = context.WithValue(ctx, ChainIDKey, claims.ChainID)
	return ctx, nil
}
