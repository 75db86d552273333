package service

import (
	"errors"
	"fmt"
	"time"

	"reseller-ledger/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// sellerClaims is the JWT body issued to sellers and back-office admins.
type sellerClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTTokenService implements ports.TokenService using HS256 JWT.
type JWTTokenService struct {
	secret []byte
	expiry time.Duration
	issuer string
}

// NewJWTTokenService creates a new JWT token service.
func NewJWTTokenService(secret string, expiry time.Duration, issuer string) *JWTTokenService {
	return &JWTTokenService{
		secret: []byte(secret),
		expiry: expiry,
		issuer: issuer,
	}
}

// Generate signs a token for sellerID with the given role.
func (s *JWTTokenService) Generate(sellerID uuid.UUID, role string) (string, time.Time, error) {
	if role != ports.RoleSeller && role != ports.RoleAdmin {
		return "", time.Time{}, fmt.Errorf("unknown role %q", role)
	}
	now := time.Now()
	expiresAt := now.Add(s.expiry)

	claims := sellerClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sellerID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses a token and returns its seller and role.
func (s *JWTTokenService) Validate(tokenString string) (*ports.TokenClaims, error) {
	var claims sellerClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	sellerID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid seller ID in token: %w", err)
	}
	if claims.Role != ports.RoleSeller && claims.Role != ports.RoleAdmin {
		return nil, errors.New("missing role claim")
	}

	return &ports.TokenClaims{
		SellerID: sellerID,
		Role:     claims.Role,
	}, nil
}
