package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/memberlink/memberlink/internal/app/api"
	"github.com/memberlink/memberlink/internal/domain/models"
)

func newTestClient(t *testing.T, handler http.Handler) *api.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return api.NewClient(srv.URL, 2*time.Second, zap.NewNop())
}

func TestLogin(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			t.Errorf("path = %q, want /auth/login", r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["email"] != "ada@example.org" {
			t.Errorf("email = %q, want ada@example.org", body["email"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"token":   "tok-1",
			"profile": models.UserProfile{Email: "ada@example.org"},
		})
	}))

	got, err := c.Login(context.Background(), "ada@example.org", "pw")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if got.Token != "tok-1" {
		t.Errorf("Token = %q, want tok-1", got.Token)
	}
}

func TestLogin_MissingToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"profile": models.UserProfile{}})
	}))

	if _, err := c.Login(context.Background(), "a@b.co", "pw"); err == nil {
		t.Error("Login without token in response should fail")
	}
}

func TestVerifyOTP_Invalid(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "wrong code"})
	}))

	err := c.VerifyOTP(context.Background(), "+15551234567", "000000")
	if !errors.Is(err, api.ErrInvalidCode) {
		t.Errorf("VerifyOTP err = %v, want ErrInvalidCode", err)
	}
}

func TestVerifyOTP_Valid(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	if err := c.VerifyOTP(context.Background(), "+15551234567", "123456"); err != nil {
		t.Errorf("VerifyOTP failed: %v", err)
	}
}

func TestVerificationStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want Bearer tok", got)
		}
		json.NewEncoder(w).Encode(map[string]bool{"verified": true})
	}))

	got, err := c.VerificationStatus(context.Background(), "tok")
	if err != nil {
		t.Fatalf("VerificationStatus failed: %v", err)
	}
	if !got {
		t.Error("VerificationStatus = false, want true")
	}
}

func TestVerificationStatus_RetriesTransientFailure(t *testing.T) {
	var calls int
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]bool{"verified": true})
	}))

	got, err := c.VerificationStatus(context.Background(), "tok")
	if err != nil {
		t.Fatalf("VerificationStatus failed: %v", err)
	}
	if !got {
		t.Error("VerificationStatus = false, want true")
	}
	if calls < 2 {
		t.Errorf("calls = %d, want >= 2", calls)
	}
}

func TestVerificationStatus_AuthFailureNotRetried(t *testing.T) {
	var calls int
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))

	start := time.Now()
	_, err := c.VerificationStatus(context.Background(), "revoked")
	if !errors.Is(err, api.ErrUnauthorized) {
		t.Fatalf("VerificationStatus err = %v, want ErrUnauthorized", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1; a revoked session is not transient", calls)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("VerificationStatus took %v, want an immediate failure", elapsed)
	}
}

func TestRegister(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.RegistrationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if req.Address.City != "Springfield" {
			t.Errorf("Address.City = %q, want Springfield", req.Address.City)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"token":   "tok-2",
			"profile": models.UserProfile{Name: req.Name},
		})
	}))

	got, err := c.Register(context.Background(), api.RegistrationRequest{
		Name:    "Ada",
		Email:   "ada@example.org",
		Address: models.AddressDraft{City: "Springfield"},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if got.Profile.Name != "Ada" {
		t.Errorf("Profile.Name = %q, want Ada", got.Profile.Name)
	}
}

func TestErrorEnvelope(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"message": "email already registered"})
	}))

	_, err := c.Register(context.Background(), api.RegistrationRequest{})
	if err == nil {
		t.Fatal("Register should fail")
	}
	if want := "email already registered"; !strings.Contains(err.Error(), want) {
		t.Errorf("err = %q, want it to contain %q", err.Error(), want)
	}
}

func TestUnauthorized(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	err := c.SignOut(context.Background(), "stale-token")
	if !errors.Is(err, api.ErrUnauthorized) {
		t.Errorf("SignOut err = %v, want ErrUnauthorized", err)
	}
}
