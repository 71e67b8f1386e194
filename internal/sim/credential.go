package sim

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidCredential = errors.New("invalid join credential")
	ErrExpiredCredential = errors.New("join credential has expired")
)

// JoinClaims binds a join credential to one room and one viewer.
type JoinClaims struct {
	jwt.RegisteredClaims
	RoomID   string `json:"room_id"`
	ViewerID string `json:"viewer_id"`
}

// CredentialIssuer mints and validates short-lived HMAC join credentials.
type CredentialIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewCredentialIssuer creates an issuer.
func NewCredentialIssuer(secret string, ttl time.Duration) *CredentialIssuer {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &CredentialIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: "stream-cart-sim",
	}
}

// Issue mints a join credential for one viewer and one room.
func (i *CredentialIssuer) Issue(roomID, viewerID string) (string, error) {
	now := time.Now()
	claims := &JoinClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   viewerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		RoomID:   roomID,
		ViewerID: viewerID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Validate checks a join credential and returns its claims.
func (i *CredentialIssuer) Validate(tokenString string) (*JoinClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JoinClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCredential
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCredential
		}
		return nil, ErrInvalidCredential
	}

	claims, ok := token.Claims.(*JoinClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidCredential
	}
	return claims, nil
}
