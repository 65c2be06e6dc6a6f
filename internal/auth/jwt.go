package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("authorization token required")
)

// Issuer is set on and required of every session token.
const Issuer = "settle"

// JWTManager issues and checks wallet session tokens.
type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
	parser        *jwt.Parser
}

// Claims identify a connected wallet.
type Claims struct {
	Address string `json:"address"`
	ChainID string `json:"chain_id,omitempty"`
	jwt.RegisteredClaims
}

// NewJWTManager creates a JWT manager. Tokens are HS256-signed with
// secretKey and expire after tokenDuration.
func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(Issuer),
			jwt.WithExpirationRequired(),
		),
	}
}

// Generate issues a token for address on chainID and reports when it expires.
func (m *JWTManager) Generate(address, chainID string) (string, time.Time, error) {
	issuedAt := time.Now()
	expiresAt := issuedAt.Add(m.tokenDuration)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Address: address,
		ChainID: chainID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   address,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}).SignedString(m.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate returns the claims of a well-formed, unexpired token signed
// with this manager's secret.
func (m *JWTManager) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := m.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return m.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Address == "" {
		return nil, fmt.Errorf("%w: no wallet address", ErrInvalidToken)
	}
	return claims, nil
}
