package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/content-approval-api/internal/models"
	"github.com/noah-isme/content-approval-api/pkg/adminapi"
	"github.com/noah-isme/content-approval-api/pkg/config"
	appErrors "github.com/noah-isme/content-approval-api/pkg/errors"
)

// IdentityService turns bearer tokens into caller identities.
type IdentityService struct {
	cfg      config.IdentityConfig
	client   *http.Client
	cache    *CacheService
	observer adminapi.CallObserver
	logger   *zap.Logger
}

// NewIdentityService constructs the service. cache and observer may be nil.
func NewIdentityService(cfg config.IdentityConfig, cache *CacheService, observer adminapi.CallObserver, logger *zap.Logger) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if cfg.JWTSecret == "" && cfg.ProfileURL == "" {
		logger.Warn("identity lookup not configured, every caller is anonymous")
	}
	return &IdentityService{
		cfg:      cfg,
		client:   &http.Client{Timeout: timeout},
		cache:    cache,
		observer: observer,
		logger:   logger,
	}
}

func identityCacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "identity:" + hex.EncodeToString(sum[:])
}

// Resolve returns the identity behind token. A missing token or a token the
// profile endpoint does not recognise is anonymous, not an error.
func (s *IdentityService) Resolve(ctx context.Context, token string) (*models.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return &models.Identity{}, nil
	}

	key := identityCacheKey(token)
	var cached models.Identity
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	var (
		identity *models.Identity
		err      error
	)
	switch {
	case s.cfg.JWTSecret != "":
		identity, err = s.ValidateToken(token)
	case s.cfg.ProfileURL != "":
		identity, err = s.fetchProfile(ctx, token)
	default:
		return &models.Identity{}, nil
	}
	if err != nil {
		return nil, err
	}

	if identity.Authenticated() {
		s.cache.Set(ctx, key, identity, s.cfg.CacheTTL)
	}
	return identity, nil
}

// ValidateToken parses an HS256 access token and returns its identity.
func (s *IdentityService) ValidateToken(tokenString string) (*models.Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.JWTIssuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.IdentityClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return &models.Identity{Email: strings.TrimSpace(claims.Email), Name: claims.Name}, nil
}

type profileResponse struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (s *IdentityService) fetchProfile(ctx context.Context, token string) (*models.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.ProfileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.observe(0, start)
		return nil, appErrors.WrapAs(appErrors.ErrRemoteCallFailed, err, "identity lookup failed")
	}
	defer resp.Body.Close()
	s.observe(resp.StatusCode, start)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &models.Identity{}, nil
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrRemoteCallFailed, err, "identity lookup failed")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &adminapi.StatusError{Operation: "profile", StatusCode: resp.StatusCode, Body: string(raw)}
		return nil, appErrors.WrapAs(appErrors.ErrRemoteCallFailed, statusErr, "identity lookup failed")
	}

	var profile profileResponse
	if err := json.Unmarshal(raw, &profile); err != nil {
		s.logger.Warn("profile response is not JSON", zap.Error(err))
		return &models.Identity{}, nil
	}
	return &models.Identity{Email: strings.TrimSpace(profile.Email), Name: profile.Name}, nil
}

func (s *IdentityService) observe(status int, start time.Time) {
	if s.observer != nil {
		s.observer.ObserveRemoteCall("identity", "profile", status, time.Since(start))
	}
}
