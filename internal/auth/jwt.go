// Package auth verifies the bearer credentials issued by the account
// service. Tokens are HS256-signed JWTs whose subject is the numeric
// user id; the device id travels alongside so a token stops working
// when the account moves to another device.
package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arailymkabykenova/MemeBattle/internal/game"
)

// Identity is the verified caller of a request or socket connection.
type Identity struct {
	UserID   int64
	DeviceID string
}

// Claims mirrors the token payload of the account service.
type Claims struct {
	DeviceID  string `json:"device_id"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// Verifier validates access tokens against a shared HS256 secret.
type Verifier struct {
	secret []byte
	ttl    time.Duration
}

func NewVerifier(secret string, ttl time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), ttl: ttl}
}

// Verify parses and validates a token, returning the identity it
// asserts. All failures come back as authentication errors.
func (v *Verifier) Verify(token string) (Identity, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, game.Unauthenticated("invalid token")
	}
	if claims.TokenType != "access" {
		return Identity{}, game.Unauthenticated("invalid token")
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, game.Unauthenticated("invalid token")
	}
	if claims.DeviceID == "" {
		return Identity{}, game.Unauthenticated("invalid token")
	}
	return Identity{UserID: userID, DeviceID: claims.DeviceID}, nil
}

// Sign mints a token for the identity. The server itself only verifies;
// signing exists for tests and local tooling.
func (v *Verifier) Sign(id Identity, now time.Time) (string, error) {
	claims := Claims{
		DeviceID:  id.DeviceID,
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
