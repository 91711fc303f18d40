package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{name: "remote addr", remote: "192.168.1.1:12345", want: "192.168.1.1"},
		{name: "ipv6 remote addr", remote: "[::1]:8080", want: "::1"},
		{
			name:    "proxy headers are ignored",
			remote:  "10.0.0.1:1",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.1", "X-Real-IP": "203.0.113.2"},
			want:    "10.0.0.1",
		},
		{name: "unparseable remote", remote: "pipe", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tt.want, httpx.ClientIP(req))
		})
	}
}

func TestForwardedIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers map[string]string
		want    string
		ok      bool
	}{
		{name: "no headers"},
		{
			name:    "first valid forwarded-for entry",
			headers: map[string]string{"X-Forwarded-For": "unknown, 203.0.113.1:4711, 192.168.1.1"},
			want:    "203.0.113.1",
			ok:      true,
		},
		{
			name:    "x-real-ip when forwarded-for absent",
			headers: map[string]string{"X-Real-IP": "203.0.113.2"},
			want:    "203.0.113.2",
			ok:      true,
		},
		{
			name:    "cloudflare header beats x-real-ip",
			headers: map[string]string{"CF-Connecting-IP": "198.51.100.7", "X-Real-IP": "203.0.113.2"},
			want:    "198.51.100.7",
			ok:      true,
		},
		{
			name:    "garbage headers",
			headers: map[string]string{"X-Forwarded-For": "nope", "X-Real-IP": "<script>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			got, ok := httpx.ForwardedIP(req)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRealIP(t *testing.T) {
	t.Parallel()

	var seen string
	h := httpx.RealIP()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = httpx.ClientIP(r)
	}))

	t.Run("forwarded address replaces remote", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1"
		req.Header.Set("X-Forwarded-For", "2001:db8::1, 10.0.0.1")
		h.ServeHTTP(httptest.NewRecorder(), req)
		require.Equal(t, "2001:db8::1", seen)
	})

	t.Run("no headers keeps remote", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1"
		h.ServeHTTP(httptest.NewRecorder(), req)
		require.Equal(t, "10.0.0.1", seen)
	})
}
