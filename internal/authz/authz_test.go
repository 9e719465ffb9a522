package authz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	_ "github.com/meridian-fin/meridian/testing"
)

type fakeKeyRepo struct {
	keys map[string]KeyRecord
}

func (f *fakeKeyRepo) FindKey(ctx context.Context, keyID string) (KeyRecord, error) {
	record, ok := f.keys[keyID]
	if !ok {
		return KeyRecord{}, ErrInvalidKey
	}
	return record, nil
}

func testService(t *testing.T) *Service {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-value"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return NewService(&fakeKeyRepo{keys: map[string]KeyRecord{
		"ak_live_1": {
			KeyID:      "ak_live_1",
			SecretHash: string(hash),
			Name:       "Reporting client",
			Active:     true,
			Grants:     []Grant{{Scope: GrantEntity, TargetID: 1}},
		},
		"ak_dead_1": {
			KeyID:      "ak_dead_1",
			SecretHash: string(hash),
			Name:       "Revoked client",
			Active:     false,
		},
	}}, "")
}

func TestAuthenticate(t *testing.T) {
	svc := testService(t)

	principal, err := svc.Authenticate(context.Background(), "ak_live_1.s3cret-value")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if principal.KeyID != "ak_live_1" || principal.Name != "Reporting client" {
		t.Fatalf("unexpected principal: %+v", principal)
	}
	if len(principal.Grants) != 1 {
		t.Fatalf("grants not loaded: %+v", principal.Grants)
	}
}

func TestAuthenticateRejections(t *testing.T) {
	svc := testService(t)
	cases := map[string]string{
		"wrong secret": "ak_live_1.nope",
		"unknown key":  "ak_missing.s3cret-value",
		"inactive key": "ak_dead_1.s3cret-value",
		"no separator": "ak_live_1",
		"empty":        "",
	}
	for name, presented := range cases {
		if _, err := svc.Authenticate(context.Background(), presented); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("%s: expected ErrInvalidKey got %v", name, err)
		}
	}
}

func TestAuthenticateWithPepper(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-value"+"orange-zest"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	repo := &fakeKeyRepo{keys: map[string]KeyRecord{
		"ak_pep_1": {KeyID: "ak_pep_1", SecretHash: string(hash), Name: "Peppered client", Active: true},
	}}

	svc := NewService(repo, "orange-zest")
	if _, err := svc.Authenticate(context.Background(), "ak_pep_1.s3cret-value"); err != nil {
		t.Fatalf("authenticate with pepper: %v", err)
	}

	// The stored hash must not verify against a different pepper.
	other := NewService(repo, "wrong-pepper")
	if _, err := other.Authenticate(context.Background(), "ak_pep_1.s3cret-value"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey with wrong pepper, got %v", err)
	}
}

func TestPrincipalGrants(t *testing.T) {
	admin := &Principal{Grants: []Grant{{Scope: GrantAll}}}
	if !admin.CanAccessEntity(42) || !admin.CanAccessOrganization(7) {
		t.Fatalf("all grant must cover everything")
	}

	scoped := &Principal{Grants: []Grant{
		{Scope: GrantEntity, TargetID: 1},
		{Scope: GrantOrganization, TargetID: 10},
	}}
	if !scoped.CanAccessEntity(1) || scoped.CanAccessEntity(2) {
		t.Fatalf("entity grant scoping broken")
	}
	if !scoped.CanAccessOrganization(10) || scoped.CanAccessOrganization(11) {
		t.Fatalf("organization grant scoping broken")
	}
	// An organization grant does not leak into entity-level access.
	if scoped.CanAccessEntity(10) {
		t.Fatalf("organization grant must not cover entity ids")
	}
	if !admin.HasFullAccess() || scoped.HasFullAccess() {
		t.Fatalf("full access must require an all grant")
	}

	var nobody *Principal
	if nobody.CanAccessEntity(1) || nobody.CanAccessOrganization(1) || nobody.HasFullAccess() {
		t.Fatalf("nil principal must have no access")
	}
}

func TestMiddleware(t *testing.T) {
	svc := testService(t)
	var seen *Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := Middleware(svc, nil)(next)

	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/reports", nil)
	req.Header.Set(HeaderAPIKey, "ak_live_1.wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad key, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/reports", nil)
	req.Header.Set(HeaderAPIKey, "ak_live_1.s3cret-value")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
	if seen == nil || seen.KeyID != "ak_live_1" {
		t.Fatalf("principal missing from context: %+v", seen)
	}
}
