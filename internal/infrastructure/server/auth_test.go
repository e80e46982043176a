package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestIssueAndVerifyToken(t *testing.T) {
	token, err := IssueToken("s3cret", "learner-1", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	claims, err := VerifyToken("s3cret", token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.Subject != "learner-1" {
		t.Fatalf("expected subject learner-1, got %q", claims.Subject)
	}

	if _, err := VerifyToken("other", token); err == nil {
		t.Fatal("expected signature mismatch")
	}
	expired, _ := IssueToken("s3cret", "learner-1", time.Hour, time.Now().Add(-2*time.Hour))
	if _, err := VerifyToken("s3cret", expired); err == nil {
		t.Fatal("expected expired token to fail")
	}
	if _, err := IssueToken("", "x", time.Hour, time.Now()); err == nil {
		t.Fatal("expected empty secret to be rejected")
	}
}

func TestAuthenticate(t *testing.T) {
	var subject string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := ClaimsFromContext(r.Context()); ok {
			subject = claims.Subject
		}
		w.WriteHeader(http.StatusNoContent)
	})
	h := Authenticate("s3cret")(next)
	token, _ := IssueToken("s3cret", "learner-2", time.Hour, time.Now())

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"health is open", "/healthz", "", http.StatusNoContent},
		{"missing token", "/v1/due", "", http.StatusUnauthorized},
		{"wrong scheme", "/v1/due", "Basic " + token, http.StatusUnauthorized},
		{"garbage token", "/v1/due", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "/v1/due", "bearer " + token, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d (%s)", tc.want, rec.Code, rec.Body.String())
			}
			if rec.Code == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Fatal("expected WWW-Authenticate header")
			}
		})
	}
	if subject != "learner-2" {
		t.Fatalf("expected claims in context, got subject %q", subject)
	}
}

func TestServerRequiresTokenWhenSecretSet(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	cfg := testConfig()
	cfg.Server.JWTSecret = "s3cret"
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("api"))
	})
	srv := NewServer(cfg, logger, api, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/weights", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics should stay open, got %d", rec.Code)
	}
}
