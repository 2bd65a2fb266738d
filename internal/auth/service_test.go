package auth

import (
	"context"
	"testing"
	"time"

	"github.com/abduss/dropbucket/internal/config"
	"github.com/google/uuid"
)

func testConfig() config.AuthConfig {
	return config.AuthConfig{
		AdminAPIKey:       "admin-secret-key",
		AccessTokenSecret: "access-secret",
		AccessTokenTTL:    time.Minute,
		BcryptCost:        4,
	}
}

func TestCreateKeyStoresOnlyHash(t *testing.T) {
	store := newMemoryStore()
	service := NewService(store, testConfig())

	created, err := service.CreateKey(context.Background(), "ci runner")
	if err != nil {
		t.Fatalf("CreateKey returned error: %v", err)
	}

	if len(created.Key) != 43 {
		t.Fatalf("expected 43 character key, got %d", len(created.Key))
	}
	if created.Prefix != created.Key[:8] {
		t.Fatalf("prefix %q does not match key start", created.Prefix)
	}

	stored, ok := store.keys[created.Prefix]
	if !ok {
		t.Fatalf("expected key stored under prefix")
	}
	if stored.KeyHash == created.Key || stored.KeyHash == "" {
		t.Fatalf("expected bcrypt hash to be stored, got %q", stored.KeyHash)
	}
}

func TestCreateKeyRequiresName(t *testing.T) {
	service := NewService(newMemoryStore(), testConfig())

	if _, err := service.CreateKey(context.Background(), "   "); err != ErrNameRequired {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}
}

func TestAuthenticateAPIKey(t *testing.T) {
	store := newMemoryStore()
	service := NewService(store, testConfig())

	created, err := service.CreateKey(context.Background(), "laptop")
	if err != nil {
		t.Fatalf("CreateKey returned error: %v", err)
	}

	principal, err := service.Authenticate(context.Background(), created.Key)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if principal.KeyID != created.ID || principal.IsAdmin {
		t.Fatalf("unexpected principal: %+v", principal)
	}
	if store.keys[created.Prefix].LastUsedAt == nil {
		t.Fatalf("expected last use to be recorded")
	}
}

func TestAuthenticateRejectsWrongSecret(t *testing.T) {
	store := newMemoryStore()
	service := NewService(store, testConfig())

	created, err := service.CreateKey(context.Background(), "laptop")
	if err != nil {
		t.Fatalf("CreateKey returned error: %v", err)
	}

	forged := created.Prefix + "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	if _, err := service.Authenticate(context.Background(), forged); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := service.Authenticate(context.Background(), "short"); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for short key, got %v", err)
	}
}

func TestAuthenticateAdminKey(t *testing.T) {
	service := NewService(newMemoryStore(), testConfig())

	principal, err := service.Authenticate(context.Background(), "admin-secret-key")
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if !principal.IsAdmin || principal.KeyID != uuid.Nil {
		t.Fatalf("unexpected admin principal: %+v", principal)
	}
}

func TestRevokedKeyNoLongerAuthenticates(t *testing.T) {
	store := newMemoryStore()
	service := NewService(store, testConfig())

	created, err := service.CreateKey(context.Background(), "temp")
	if err != nil {
		t.Fatalf("CreateKey returned error: %v", err)
	}

	revoked, err := service.RevokeKey(context.Background(), created.Prefix)
	if err != nil || !revoked {
		t.Fatalf("RevokeKey = %v, %v", revoked, err)
	}
	if _, err := service.Authenticate(context.Background(), created.Key); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized after revoke, got %v", err)
	}

	revoked, err = service.RevokeKey(context.Background(), created.Prefix)
	if err != nil || revoked {
		t.Fatalf("second RevokeKey = %v, %v", revoked, err)
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	store := newMemoryStore()
	service := NewService(store, testConfig())

	created, err := service.CreateKey(context.Background(), "laptop")
	if err != nil {
		t.Fatalf("CreateKey returned error: %v", err)
	}
	principal, err := service.Authenticate(context.Background(), created.Key)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}

	token, err := service.IssueAccessToken(principal)
	if err != nil {
		t.Fatalf("IssueAccessToken returned error: %v", err)
	}

	fromToken, err := service.Authenticate(context.Background(), token.Token)
	if err != nil {
		t.Fatalf("Authenticate with token returned error: %v", err)
	}
	if fromToken.KeyID != created.ID || fromToken.Prefix != created.Prefix {
		t.Fatalf("unexpected principal from token: %+v", fromToken)
	}
}

func TestExpiredAccessTokenRejected(t *testing.T) {
	service := NewService(newMemoryStore(), testConfig())

	issuedAt := time.Now().Add(-time.Hour)
	service.nowFunc = func() time.Time { return issuedAt }
	token, err := service.IssueAccessToken(Principal{KeyID: uuid.New(), Prefix: "abcdefgh"})
	if err != nil {
		t.Fatalf("IssueAccessToken returned error: %v", err)
	}

	service.nowFunc = time.Now
	if _, err := service.ValidateAccessToken(token.Token); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAdminAccessToken(t *testing.T) {
	service := NewService(newMemoryStore(), testConfig())

	token, err := service.IssueAccessToken(Principal{Prefix: adminSubject, IsAdmin: true})
	if err != nil {
		t.Fatalf("IssueAccessToken returned error: %v", err)
	}
	principal, err := service.ValidateAccessToken(token.Token)
	if err != nil {
		t.Fatalf("ValidateAccessToken returned error: %v", err)
	}
	if !principal.IsAdmin || principal.KeyID != uuid.Nil {
		t.Fatalf("unexpected principal: %+v", principal)
	}
}

// memoryStore implements keyStore for tests.
type memoryStore struct {
	keys map[string]APIKey
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: make(map[string]APIKey)}
}

func (m *memoryStore) CreateKey(ctx context.Context, key APIKey) (APIKey, error) {
	if _, ok := m.keys[key.Prefix]; ok {
		return APIKey{}, ErrPrefixTaken
	}
	m.keys[key.Prefix] = key
	return key, nil
}

func (m *memoryStore) FindKeyByPrefix(ctx context.Context, prefix string) (APIKey, error) {
	key, ok := m.keys[prefix]
	if !ok {
		return APIKey{}, ErrKeyNotFound
	}
	return key, nil
}

func (m *memoryStore) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	infos := make([]KeyInfo, 0, len(m.keys))
	for _, key := range m.keys {
		infos = append(infos, KeyInfo{APIKey: key})
	}
	return infos, nil
}

func (m *memoryStore) DeleteKeyByPrefix(ctx context.Context, prefix string) error {
	if _, ok := m.keys[prefix]; !ok {
		return ErrKeyNotFound
	}
	delete(m.keys, prefix)
	return nil
}

func (m *memoryStore) TouchKey(ctx context.Context, id uuid.UUID, at time.Time) error {
	for prefix, key := range m.keys {
		if key.ID == id {
			key.LastUsedAt = &at
			m.keys[prefix] = key
		}
	}
	return nil
}
