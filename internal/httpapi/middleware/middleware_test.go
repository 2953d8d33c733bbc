package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/cookingpapa/internal/auth"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID_KeepsCallerID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFrom(c)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w := serve(r, req)
	if w.Body.String() != "abc" || w.Header().Get(RequestIDHeader) != "abc" {
		t.Fatalf("got body=%q header=%q", w.Body.String(), w.Header().Get(RequestIDHeader))
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(w.Body.String()) != 36 {
		t.Fatalf("expected generated uuid, got %q", w.Body.String())
	}
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zap.NewNop()))
	r.GET("/", func(c *gin.Context) { panic("boom") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(2)
	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst should be allowed")
	}
	if l.Allow("a") {
		t.Fatal("third request should be limited")
	}
	if !l.Allow("b") {
		t.Fatal("keys must not share a bucket")
	}
}

func TestRateLimit_Middleware(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(NewRateLimiter(1), ClientIPKey, zap.NewNop()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil)); w.Code != http.StatusOK {
		t.Fatalf("first status=%d", w.Code)
	}
	if w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil)); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second status=%d", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	r := gin.New()
	r.Use(AuthRequired("s3cret"))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, StaffFrom(c)) })

	tok, err := auth.SignJWT("staff-1", "Ming", "s3cret", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Token " + tok, http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + tok, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := serve(r, req)
			if w.Code != tc.want {
				t.Fatalf("status=%d want %d", w.Code, tc.want)
			}
			if tc.want == http.StatusOK && w.Body.String() != "staff-1" {
				t.Fatalf("staff id=%q", w.Body.String())
			}
		})
	}
}
