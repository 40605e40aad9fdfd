package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestPreflight_AnswersOptionsLocally(t *testing.T) {
	e := echo.New()
	e.Use(Preflight("https://preview.example"))

	reached := false
	e.Any("/*", func(c echo.Context) error {
		reached = true
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodOptions, "/anything", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if reached {
		t.Error("OPTIONS request reached the proxy handler, want answered locally")
	}

	tests := []struct {
		key  string
		want string
	}{
		{"Access-Control-Allow-Origin", "https://preview.example"},
		{"Access-Control-Allow-Credentials", "true"},
		{"Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS"},
		{"Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With"},
	}
	for _, tt := range tests {
		if got := rec.Header().Get(tt.key); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestPreflight_PassesOtherMethodsThrough(t *testing.T) {
	e := echo.New()
	e.Use(Preflight("*"))

	reached := false
	e.GET("/x", func(c echo.Context) error {
		reached = true
		return c.String(http.StatusOK, "hit")
	})

	req := httptest.NewRequest(http.MethodGet, "/x", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if !reached {
		t.Error("GET request did not reach the handler")
	}
	if rec.Body.String() != "hit" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "hit")
	}
}
