package security

import (
	"net/http/httptest"
	"testing"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		realIP     string
		trustProxy bool
		proxies    int
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "192.0.2.10:51234",
			want:       "192.0.2.10",
		},
		{
			name:       "forwarded header ignored without trust",
			remoteAddr: "192.0.2.10:51234",
			xff:        "203.0.113.7",
			want:       "192.0.2.10",
		},
		{
			name:       "single trusted proxy",
			remoteAddr: "10.0.0.2:443",
			xff:        "203.0.113.7",
			trustProxy: true,
			proxies:    1,
			want:       "203.0.113.7",
		},
		{
			name:       "client supplied entry ignored behind one proxy",
			remoteAddr: "10.0.0.2:443",
			xff:        "1.1.1.1, 203.0.113.7",
			trustProxy: true,
			proxies:    1,
			want:       "203.0.113.7",
		},
		{
			name:       "two trusted proxies",
			remoteAddr: "10.0.0.2:443",
			xff:        "1.1.1.1, 203.0.113.7, 10.0.0.3",
			trustProxy: true,
			proxies:    2,
			want:       "203.0.113.7",
		},
		{
			name:       "chain shorter than proxy count falls back to remote addr",
			remoteAddr: "10.0.0.2:443",
			xff:        "203.0.113.7",
			trustProxy: true,
			proxies:    2,
			want:       "10.0.0.2",
		},
		{
			name:       "invalid forwarded entry falls back to X-Real-IP",
			remoteAddr: "10.0.0.2:443",
			xff:        "203.0.113.7, garbage",
			realIP:     "203.0.113.9",
			trustProxy: true,
			want:       "203.0.113.9",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.0.2.44",
			want:       "192.0.2.44",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}

			if got := GetClientIP(r, tt.trustProxy, tt.proxies); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsForwardedHTTPS(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-Proto", "HTTPS")

	if IsForwardedHTTPS(r, false) {
		t.Error("header must be ignored when proxy is not trusted")
	}
	if !IsForwardedHTTPS(r, true) {
		t.Error("expected https from trusted proxy")
	}
}
