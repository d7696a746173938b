package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"codejudge/internal/gateway/repository"
	pkgerrors "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const accessTokenType = "access"

type UserInfo struct {
	ID        int64
	Role      string
	ExpiresAt time.Time
}

// AuthConfig configures token verification and issuance.
type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration
}

type AuthService struct {
	jwtSecret  []byte
	jwtIssuer  string
	accessTTL  time.Duration
	revocation *repository.TokenRevocationRepository
	now        func() time.Time
}

func NewAuthService(cfg AuthConfig, revocation *repository.TokenRevocationRepository) *AuthService {
	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{
		jwtSecret:  []byte(cfg.JWTSecret),
		jwtIssuer:  cfg.JWTIssuer,
		accessTTL:  ttl,
		revocation: revocation,
		now:        time.Now,
	}
}

type tokenClaims struct {
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Authenticate verifies the token and rejects revoked ones exactly like expired ones.
func (s *AuthService) Authenticate(ctx context.Context, raw string) (UserInfo, error) {
	if raw == "" {
		return UserInfo{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, err := s.parseToken(raw)
	if err != nil {
		return UserInfo{}, err
	}
	userID, err := parseUserID(claims.Subject)
	if err != nil {
		return UserInfo{}, err
	}
	if s.revocation != nil {
		revoked, err := s.revocation.IsRevoked(ctx, raw)
		if err != nil {
			return UserInfo{}, pkgerrors.Wrapf(err, pkgerrors.ServiceUnavailable, "token revocation lookup failed")
		}
		if revoked {
			return UserInfo{}, pkgerrors.New(pkgerrors.TokenExpired)
		}
	}
	info := UserInfo{ID: userID, Role: claims.Role}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// IssueAccessToken signs an HS256 access token for userID.
func (s *AuthService) IssueAccessToken(userID int64, role string) (string, time.Time, error) {
	if len(s.jwtSecret) == 0 {
		return "", time.Time{}, pkgerrors.New(pkgerrors.TokenGenerationFailed).WithMessage("jwt secret is not configured")
	}
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	claims := tokenClaims{
		Role:      role,
		TokenType: accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    s.jwtIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, pkgerrors.Wrapf(err, pkgerrors.TokenGenerationFailed, "sign token failed")
	}
	return signed, expiresAt.Truncate(time.Second), nil
}

// Refresh issues a new access token for the holder of raw and revokes raw.
func (s *AuthService) Refresh(ctx context.Context, raw string) (string, time.Time, error) {
	info, err := s.Authenticate(ctx, raw)
	if err != nil {
		return "", time.Time{}, err
	}
	if s.revocation == nil {
		return "", time.Time{}, pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("token revocation is unavailable")
	}
	token, expiresAt, err := s.IssueAccessToken(info.ID, info.Role)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.revocation.Revoke(ctx, raw, info.ExpiresAt); err != nil {
		return "", time.Time{}, pkgerrors.Wrapf(err, pkgerrors.CacheError, "revoke token failed")
	}
	logger.Info(ctx, "token refreshed", zap.Int64("user_id", info.ID), zap.Time("expires_at", expiresAt))
	return token, expiresAt, nil
}

// Logout revokes raw until its exp claim. An invalid or already expired token is rejected
// the same way Authenticate would reject it.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	info, err := s.Authenticate(ctx, raw)
	if err != nil {
		return err
	}
	if s.revocation == nil {
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("token revocation is unavailable")
	}
	if info.ExpiresAt.IsZero() {
		return pkgerrors.New(pkgerrors.TokenInvalid).WithMessage("token has no expiry")
	}
	if err := s.revocation.Revoke(ctx, raw, info.ExpiresAt); err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.CacheError, "revoke token failed")
	}
	logger.Info(ctx, "token revoked", zap.Int64("user_id", info.ID), zap.Time("expires_at", info.ExpiresAt))
	return nil
}

func (s *AuthService) parseToken(raw string) (*tokenClaims, error) {
	if len(s.jwtSecret) == 0 {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if !parsed.Valid {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if s.jwtIssuer != "" && claims.Issuer != s.jwtIssuer {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.TokenType != accessTokenType {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return claims, nil
}

func parseUserID(subject string) (int64, error) {
	userID, err := strconv.ParseInt(subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return userID, nil
}
