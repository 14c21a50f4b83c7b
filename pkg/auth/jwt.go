package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/darcho/darcho/config"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrWrongType    = errors.New("auth: wrong token type")
)

// Claims holds the typed JWT payload. RegisteredClaims.ID is the session id.
type Claims struct {
	UserID    uint   `json:"user_id"`
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// SessionID is the jti the token was issued for.
func (c *Claims) SessionID() string { return c.ID }

// Pair is what login and refresh hand back to the client.
type Pair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func secret() []byte {
	return []byte(config.JWTSecret())
}

func sign(userID uint, role, sessionID, typ string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		UserID:    userID,
		Role:      role,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   fmt.Sprint(userID),
			Issuer:    "darcho",
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret())
	return s, exp, err
}

// IssuePair signs an access and a refresh token bound to sessionID.
func IssuePair(userID uint, role, sessionID string) (*Pair, error) {
	access, accessExp, err := sign(userID, role, sessionID, TypeAccess, config.AccessTokenTTL())
	if err != nil {
		return nil, fmt.Errorf("auth: sign access: %w", err)
	}
	refresh, refreshExp, err := sign(userID, role, sessionID, TypeRefresh, config.RefreshTokenTTL())
	if err != nil {
		return nil, fmt.Errorf("auth: sign refresh: %w", err)
	}
	return &Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresAt:        accessExp.UTC(),
		RefreshExpiresAt: refreshExp.UTC(),
	}, nil
}

// Parse validates signature, expiry and token type.
func Parse(t, wantType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(t, &Claims{}, func(tok *jwt.Token) (interface{}, error) {
		return secret(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer("darcho"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != wantType {
		return nil, ErrWrongType
	}
	return claims, nil
}

// HashPassword returns a bcrypt hash of the plain-text password.
func HashPassword(plain string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares a bcrypt hash against the plain-text candidate.
func CheckPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
