package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/provtrack/tierwatch/internal/api/middleware"
	"github.com/provtrack/tierwatch/internal/store"
	"github.com/provtrack/tierwatch/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// --- mock KeyStore ---

type mockKeyStore struct {
	created   *models.APIKey
	createErr error
	keys      []*models.APIKey
	revokeErr error
	revokedID uuid.UUID
}

func (m *mockKeyStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	m.created = key
	return m.createErr
}

func (m *mockKeyStore) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	return m.keys, nil
}

func (m *mockKeyStore) RevokeAPIKey(ctx context.Context, id, tenantID uuid.UUID) error {
	m.revokedID = id
	return m.revokeErr
}

// --- helpers ---

func adminReq(t *testing.T, method, path string, body any, tenantID uuid.UUID) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r.WithContext(mw.SetTenantID(r.Context(), tenantID))
}

// --- CreateKey tests ---

func TestCreateKeyHandler_Success(t *testing.T) {
	st := &mockKeyStore{}
	h := NewCreateKeyHandler(st)

	rec := httptest.NewRecorder()
	h(rec, adminReq(t, http.MethodPost, "/api/v1/admin/keys", map[string]any{"name": "ci"}, uuid.New()))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	data := parseData(t, rec)

	rawKey, _ := data["key"].(string)
	if !strings.HasPrefix(rawKey, "twk_") {
		t.Errorf("raw key must carry the twk_ prefix, got %q", rawKey)
	}
	if data["key_prefix"] != rawKey[:8] {
		t.Errorf("prefix must be the first 8 chars of the raw key")
	}

	if st.created == nil {
		t.Fatal("key was not stored")
	}
	if st.created.KeyHash == rawKey {
		t.Error("the raw key must never be stored")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(st.created.KeyHash), []byte(rawKey)); err != nil {
		t.Errorf("stored hash does not match raw key: %v", err)
	}
	if len(st.created.Scopes) != 1 || st.created.Scopes[0] != "read" {
		t.Errorf("expected default read scope, got %v", st.created.Scopes)
	}
}

func TestCreateKeyHandler_CustomScopes(t *testing.T) {
	st := &mockKeyStore{}
	h := NewCreateKeyHandler(st)

	rec := httptest.NewRecorder()
	h(rec, adminReq(t, http.MethodPost, "/api/v1/admin/keys",
		map[string]any{"name": "ops", "scopes": []string{"read", "admin"}}, uuid.New()))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if len(st.created.Scopes) != 2 {
		t.Errorf("expected custom scopes kept, got %v", st.created.Scopes)
	}
}

func TestCreateKeyHandler_MissingName(t *testing.T) {
	h := NewCreateKeyHandler(&mockKeyStore{})

	rec := httptest.NewRecorder()
	h(rec, adminReq(t, http.MethodPost, "/api/v1/admin/keys", map[string]any{}, uuid.New()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateKeyHandler_NoTenant(t *testing.T) {
	h := NewCreateKeyHandler(&mockKeyStore{})

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/admin/keys", strings.NewReader(`{"name":"x"}`))
	h(rec, r)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

// --- ListKeys tests ---

func TestListKeysHandler(t *testing.T) {
	st := &mockKeyStore{keys: []*models.APIKey{{ID: uuid.New(), Name: "ci"}}}
	h := NewListKeysHandler(st)

	rec := httptest.NewRecorder()
	h(rec, adminReq(t, http.MethodGet, "/api/v1/admin/keys", nil, uuid.New()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestListKeysHandler_EmptyIsArray(t *testing.T) {
	h := NewListKeysHandler(&mockKeyStore{})

	rec := httptest.NewRecorder()
	h(rec, adminReq(t, http.MethodGet, "/api/v1/admin/keys", nil, uuid.New()))

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(env.Data) != "[]" {
		t.Errorf("empty key list must serialize as [], got %s", env.Data)
	}
}

// --- RevokeKey tests ---

func revokeVia(t *testing.T, h http.HandlerFunc, keyID string, tenantID uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Delete("/api/v1/admin/keys/{keyID}", h)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, adminReq(t, http.MethodDelete, "/api/v1/admin/keys/"+keyID, nil, tenantID))
	return rec
}

func TestRevokeKeyHandler_Success(t *testing.T) {
	st := &mockKeyStore{}
	keyID := uuid.New()

	rec := revokeVia(t, NewRevokeKeyHandler(st), keyID.String(), uuid.New())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if st.revokedID != keyID {
		t.Errorf("expected revoke of %s, got %s", keyID, st.revokedID)
	}
}

func TestRevokeKeyHandler_NotFound(t *testing.T) {
	st := &mockKeyStore{revokeErr: store.ErrNotFound}

	rec := revokeVia(t, NewRevokeKeyHandler(st), uuid.NewString(), uuid.New())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRevokeKeyHandler_InvalidUUID(t *testing.T) {
	rec := revokeVia(t, NewRevokeKeyHandler(&mockKeyStore{}), "nope", uuid.New())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
