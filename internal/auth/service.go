package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abduss/dropbucket/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	keyLength         = 32
	prefixLength      = 8
	maxPrefixAttempts = 3
	adminSubject      = "admin"
)

// keyStore abstracts the persistence layer.
type keyStore interface {
	CreateKey(ctx context.Context, key APIKey) (APIKey, error)
	FindKeyByPrefix(ctx context.Context, prefix string) (APIKey, error)
	ListKeys(ctx context.Context) ([]KeyInfo, error)
	DeleteKeyByPrefix(ctx context.Context, prefix string) error
	TouchKey(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Service encapsulates API key management and request authentication.
type Service struct {
	store    keyStore
	cfg      config.AuthConfig
	nowFunc  func() time.Time
	idIssuer string
	parser   *jwt.Parser
}

// NewService creates a Service with dependencies.
func NewService(store keyStore, cfg config.AuthConfig) *Service {
	return &Service{
		store:    store,
		cfg:      cfg,
		nowFunc:  time.Now,
		idIssuer: "dropbucket",
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name})),
	}
}

// CreateKey generates a new API key. The raw key is only returned here.
func (s *Service) CreateKey(ctx context.Context, name string) (CreatedKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return CreatedKey{}, ErrNameRequired
	}

	for attempt := 0; attempt < maxPrefixAttempts; attempt++ {
		raw, err := generateRawKey()
		if err != nil {
			return CreatedKey{}, fmt.Errorf("generate api key: %w", err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(raw), s.cfg.BcryptCost)
		if err != nil {
			return CreatedKey{}, fmt.Errorf("hash api key: %w", err)
		}

		stored, err := s.store.CreateKey(ctx, APIKey{
			ID:        uuid.New(),
			Name:      name,
			Prefix:    raw[:prefixLength],
			KeyHash:   string(hash),
			CreatedAt: s.nowFunc().UTC(),
		})
		if errors.Is(err, ErrPrefixTaken) {
			continue
		}
		if err != nil {
			return CreatedKey{}, err
		}

		return CreatedKey{
			ID:        stored.ID,
			Name:      stored.Name,
			Prefix:    stored.Prefix,
			Key:       raw,
			CreatedAt: stored.CreatedAt,
		}, nil
	}
	return CreatedKey{}, ErrPrefixTaken
}

// ListKeys returns every stored API key.
func (s *Service) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	return s.store.ListKeys(ctx)
}

// RevokeKey deletes the key with prefix. Buckets it owns are left in place
// and expire normally.
func (s *Service) RevokeKey(ctx context.Context, prefix string) (bool, error) {
	if err := s.store.DeleteKeyByPrefix(ctx, prefix); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Authenticate resolves a bearer credential, which is either an API key, the
// configured admin key or an access token issued by IssueAccessToken.
func (s *Service) Authenticate(ctx context.Context, credential string) (Principal, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Principal{}, ErrUnauthorized
	}

	if strings.Count(credential, ".") == 2 {
		return s.ValidateAccessToken(credential)
	}

	if admin := s.cfg.AdminAPIKey; admin != "" &&
		subtle.ConstantTimeCompare([]byte(credential), []byte(admin)) == 1 {
		return Principal{Prefix: adminSubject, IsAdmin: true}, nil
	}

	if len(credential) < prefixLength {
		return Principal{}, ErrUnauthorized
	}

	key, err := s.store.FindKeyByPrefix(ctx, credential[:prefixLength])
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return Principal{}, ErrUnauthorized
		}
		return Principal{}, fmt.Errorf("find api key: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(credential)); err != nil {
		return Principal{}, ErrUnauthorized
	}

	if err := s.store.TouchKey(ctx, key.ID, s.nowFunc().UTC()); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("prefix", key.Prefix).Msg("record api key use")
	}

	return Principal{KeyID: key.ID, Prefix: key.Prefix}, nil
}

// IssueAccessToken signs a short-lived token for an authenticated principal.
func (s *Service) IssueAccessToken(p Principal) (AccessToken, error) {
	now := s.nowFunc()
	expiresAt := now.Add(s.cfg.AccessTokenTTL)

	subject := p.KeyID.String()
	if p.KeyID == uuid.Nil {
		subject = adminSubject
	}

	claims := jwt.MapClaims{
		"sub":      subject,
		"iss":      s.idIssuer,
		"aud":      "dropbucket-api",
		"iat":      now.Unix(),
		"exp":      expiresAt.Unix(),
		"prefix":   p.Prefix,
		"is_admin": p.IsAdmin,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.AccessTokenSecret))
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign access token: %w", err)
	}
	return AccessToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// ValidateAccessToken verifies the token signature and extracts the principal.
func (s *Service) ValidateAccessToken(tokenString string) (Principal, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Principal{}, ErrUnauthorized
	}

	parsed, err := s.parser.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.AccessTokenSecret), nil
	})
	if err != nil || !parsed.Valid {
		return Principal{}, ErrUnauthorized
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, ErrUnauthorized
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return Principal{}, ErrUnauthorized
	}

	expFloat, okExp := claims["exp"].(float64)
	if !okExp || time.Unix(int64(expFloat), 0).Before(s.nowFunc()) {
		return Principal{}, ErrUnauthorized
	}

	prefix, _ := claims["prefix"].(string)
	isAdmin, _ := claims["is_admin"].(bool)

	if sub == adminSubject {
		if !isAdmin {
			return Principal{}, ErrUnauthorized
		}
		return Principal{Prefix: adminSubject, IsAdmin: true}, nil
	}

	keyID, err := uuid.Parse(sub)
	if err != nil {
		return Principal{}, ErrUnauthorized
	}
	return Principal{KeyID: keyID, Prefix: prefix, IsAdmin: isAdmin}, nil
}

func generateRawKey() (string, error) {
	raw := make([]byte, keyLength)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
