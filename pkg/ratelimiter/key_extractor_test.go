package ratelimiter

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newRequest(remoteAddr string, headers map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = remoteAddr
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	return req
}

func TestKeyExtractors(t *testing.T) {
	tests := []struct {
		name      string
		extractor KeyExtractor
		req       *http.Request
		want      string
		wantErr   bool
	}{
		{"ip with port", ExtractIP(), newRequest("192.168.1.1:12345", nil), "ip:192.168.1.1", false},
		{"ip without port", ExtractIP(), newRequest("192.168.1.1", nil), "ip:192.168.1.1", false},
		{"ipv6 with port", ExtractIP(), newRequest("[2001:db8::1]:8080", nil), "ip:2001:db8::1", false},
		{"empty remote addr", ExtractIP(), newRequest("", nil), "", true},

		{"proxy: first forwarded ip", ExtractIPWithProxy(),
			newRequest("10.0.0.1:80", map[string]string{"X-Forwarded-For": "203.0.113.1, 10.0.0.2"}), "ip:203.0.113.1", false},
		{"proxy: forwarded ip with spaces", ExtractIPWithProxy(),
			newRequest("10.0.0.1:80", map[string]string{"X-Forwarded-For": "  203.0.113.1  "}), "ip:203.0.113.1", false},
		{"proxy: real ip", ExtractIPWithProxy(),
			newRequest("10.0.0.1:80", map[string]string{"X-Real-IP": "203.0.113.2"}), "ip:203.0.113.2", false},
		{"proxy: forwarded wins over real ip", ExtractIPWithProxy(),
			newRequest("10.0.0.1:80", map[string]string{"X-Forwarded-For": "203.0.113.1", "X-Real-IP": "203.0.113.2"}), "ip:203.0.113.1", false},
		{"proxy: falls back to remote addr", ExtractIPWithProxy(), newRequest("192.168.1.1:80", nil), "ip:192.168.1.1", false},

		{"header present", ExtractHeader("X-API-Key"),
			newRequest("", map[string]string{"X-API-Key": "abc123"}), "header:X-API-Key:abc123", false},
		{"header missing", ExtractHeader("X-API-Key"), newRequest("", nil), "", true},

		{"bearer token", ExtractBearer(),
			newRequest("", map[string]string{"Authorization": "Bearer mytoken123"}), "bearer:mytoken123", false},
		{"bearer lowercase scheme", ExtractBearer(),
			newRequest("", map[string]string{"Authorization": "bearer mytoken123"}), "bearer:mytoken123", false},
		{"bearer missing header", ExtractBearer(), newRequest("", nil), "", true},
		{"bearer wrong scheme", ExtractBearer(),
			newRequest("", map[string]string{"Authorization": "Basic dXNlcjpwYXNz"}), "", true},
		{"bearer no token", ExtractBearer(),
			newRequest("", map[string]string{"Authorization": "Bearer"}), "", true},
		{"bearer empty token", ExtractBearer(),
			newRequest("", map[string]string{"Authorization": "Bearer  "}), "", true},

		{"static key", ExtractStatic("global"), newRequest("", nil), "global", false},
		{"empty static key", ExtractStatic(""), newRequest("", nil), "", true},

		{"composite uses first success", ExtractComposite(ExtractHeader("X-API-Key"), ExtractIP()),
			newRequest("192.168.1.1:80", map[string]string{"X-API-Key": "k1"}), "header:X-API-Key:k1", false},
		{"composite falls back", ExtractComposite(ExtractHeader("X-API-Key"), ExtractIP()),
			newRequest("192.168.1.1:80", nil), "ip:192.168.1.1", false},
		{"composite all fail", ExtractComposite(ExtractHeader("X-API-Key"), ExtractBearer()),
			newRequest("192.168.1.1:80", nil), "", true},
		{"composite empty", ExtractComposite(), newRequest("192.168.1.1:80", nil), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.extractor(tt.req)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got key %q", got)
				}
				if !errors.Is(err, ErrKeyExtractionFailed) {
					t.Errorf("error = %v, want ErrKeyExtractionFailed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestExtractCookie(t *testing.T) {
	extractor := ExtractCookie("session_id")

	req := newRequest("", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "sess123"})
	got, err := extractor(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "cookie:session_id:sess123" {
		t.Errorf("got %s, want cookie:session_id:sess123", got)
	}

	if _, err := extractor(newRequest("", nil)); err == nil {
		t.Error("expected error for missing cookie")
	}

	req = newRequest("", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: ""})
	if _, err := extractor(req); err == nil {
		t.Error("expected error for empty cookie")
	}
}

func TestParseKeyExtractorConfig(t *testing.T) {
	tests := []struct {
		config  string
		wantErr bool
	}{
		{"ip", false},
		{"ip-proxy", false},
		{"bearer", false},
		{"header:X-API-Key", false},
		{"cookie:session_id", false},
		{"static:global", false},
		{"header", true},
		{"header:", true},
		{"cookie", true},
		{"static", true},
		{"geo", true},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.config, func(t *testing.T) {
			extractor, err := ParseKeyExtractorConfig(tt.config)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("ParseKeyExtractorConfig(%q) error = %v, want ErrInvalidConfig", tt.config, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseKeyExtractorConfig(%q) unexpected error: %v", tt.config, err)
			}
			if extractor == nil {
				t.Fatal("extractor should not be nil")
			}
		})
	}

	extractor, _ := ParseKeyExtractorConfig("static:global")
	if key, _ := extractor(newRequest("", nil)); key != "global" {
		t.Errorf("static:global extractor key = %q, want global", key)
	}
}
