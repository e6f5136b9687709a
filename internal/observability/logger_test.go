package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestWithFields_Accumulates(t *testing.T) {
	ctx := WithFields(context.Background(), Field{Key: "affiliate_id", Value: "a-1"})
	ctx = WithFields(ctx, Field{Key: "commission_id", Value: "c-1"})

	fields := getObservabilityFields(ctx)
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}
	if fields[0].Key != "affiliate_id" || fields[1].Key != "commission_id" {
		t.Errorf("unexpected field order: %+v", fields)
	}
}

func TestMergeFields_MetricFieldsOverrideContext(t *testing.T) {
	ctx := WithFields(context.Background(), Field{Key: "job", Value: "ranked"})

	merged := mergeFields(ctx, []MetricField{{Key: "job", Value: "lottery"}, {Key: "count", Value: 3}})
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged fields, got %d", len(merged))
	}
	for _, f := range merged {
		if f.Key == "job" && f.String != "lottery" {
			t.Errorf("expected metric field to win, got %q", f.String)
		}
	}
}

func TestMiddleware_SetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(NewLogger()))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected generated X-Request-ID header")
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-fixed")
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "req-fixed" {
		t.Errorf("expected caller request id to be echoed, got %q", got)
	}
}

func TestGetRealClientIP(t *testing.T) {
	tests := []struct {
		name              string
		cloudFrontAddress string
		fallbackIP        string
		want              string
	}{
		{
			name:              "CloudFront header with port",
			cloudFrontAddress: "203.0.113.50:12345",
			want:              "203.0.113.50",
		},
		{
			name:              "CloudFront header IPv6 with port",
			cloudFrontAddress: "2001:db8::1:54321",
			want:              "2001:db8::1",
		},
		{
			name:       "No CloudFront header uses fallback",
			fallbackIP: "192.168.1.1",
			want:       "192.168.1.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cloudFrontAddress != "" {
				c.Request.Header.Set("CloudFront-Viewer-Address", tt.cloudFrontAddress)
			}
			if tt.fallbackIP != "" {
				c.Request.RemoteAddr = tt.fallbackIP + ":8080"
			}

			got := GetRealClientIP(c)
			if got != tt.want {
				t.Errorf("GetRealClientIP() = %v, want %v", got, tt.want)
			}
		})
	}
}
