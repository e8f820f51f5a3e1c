package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kedevs/blogapi/config"
	"github.com/kedevs/blogapi/internal/store"
	"github.com/oklog/ulid/v2"
)

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// Claims is the signed payload of both token kinds.
type Claims struct {
	TokenType TokenKind `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair is the result of a successful login.
type TokenPair struct {
	Access           string    `json:"access"`
	Refresh          string    `json:"refresh"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// TokenIssuer signs and verifies HS256 tokens. Verification re-reads the user
// so deactivation and privilege changes apply to tokens already issued.
type TokenIssuer struct {
	users      UserLookup
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type TokenOption func(*TokenIssuer)

// WithClock replaces time.Now for issuing and checking expiry.
func WithClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		t.now = now
	}
}

func NewTokenIssuer(users UserLookup, cfg config.AuthConfig, opts ...TokenOption) *TokenIssuer {
	issuer := &TokenIssuer{
		users:      users,
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer
}

// Issue signs a fresh access and refresh token for p.
func (t *TokenIssuer) Issue(p Principal) (TokenPair, error) {
	if !p.IsAuthenticated() {
		return TokenPair{}, ErrUnauthenticated
	}

	access, accessExp, err := t.sign(p.ID, TokenAccess, t.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := t.sign(p.ID, TokenRefresh, t.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		Access:           access,
		Refresh:          refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyToken checks signature, issuer, expiry and kind, then resolves the
// principal from the user's current state. A token stays valid up to and
// including the second its exp claim names.
func (t *TokenIssuer) VerifyToken(ctx context.Context, tokenString string, kind TokenKind) (Principal, error) {
	claims := Claims{}
	// exp is inclusive, so registered claims are checked by hand below.
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Principal{}, ErrTokenInvalid
	}
	if claims.ExpiresAt == nil || claims.Issuer != t.issuer {
		return Principal{}, ErrTokenInvalid
	}
	if t.now().After(claims.ExpiresAt.Time) {
		return Principal{}, ErrTokenExpired
	}
	if claims.TokenType != kind {
		return Principal{}, ErrTokenInvalid
	}

	userID, err := strconv.Atoi(strings.TrimSpace(claims.Subject))
	if err != nil || userID <= 0 {
		return Principal{}, ErrTokenInvalid
	}

	user, err := t.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Principal{}, ErrTokenInvalid
		}
		return Principal{}, fmt.Errorf("load token subject: %w", err)
	}
	if !user.IsActive {
		return Principal{}, ErrTokenInvalid
	}

	return PrincipalFromUser(user), nil
}

// Refresh exchanges a valid refresh token for a new access token.
func (t *TokenIssuer) Refresh(ctx context.Context, refreshToken string) (string, error) {
	principal, err := t.VerifyToken(ctx, refreshToken, TokenRefresh)
	if err != nil {
		return "", err
	}
	access, _, err := t.sign(principal.ID, TokenAccess, t.accessTTL)
	return access, err
}

// sign works in whole seconds so the returned expiry equals the exp claim.
func (t *TokenIssuer) sign(userID int, kind TokenKind, ttl time.Duration) (string, time.Time, error) {
	now := t.now().Truncate(time.Second)
	expiresAt := now.Add(ttl)
	claims := Claims{
		TokenType: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Issuer:    t.issuer,
			Subject:   strconv.Itoa(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, expiresAt, nil
}
