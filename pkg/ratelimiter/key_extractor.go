package ratelimiter

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// KeyExtractor identifies the client an HTTP request should be limited as.
type KeyExtractor func(*http.Request) (string, error)

// ExtractIP keys requests by the host part of r.RemoteAddr.
func ExtractIP() KeyExtractor {
	return func(r *http.Request) (string, error) {
		return remoteIP(r)
	}
}

// ExtractIPWithProxy prefers the first X-Forwarded-For entry, then X-Real-IP,
// then r.RemoteAddr. Only use it behind a proxy that sets these headers.
func ExtractIPWithProxy() KeyExtractor {
	return func(r *http.Request) (string, error) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return "ip:" + ip, nil
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return "ip:" + xri, nil
		}
		return remoteIP(r)
	}
}

func remoteIP(r *http.Request) (string, error) {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// no port
		ip = r.RemoteAddr
	}
	if ip == "" {
		return "", fmt.Errorf("%w: empty IP address", ErrKeyExtractionFailed)
	}
	return "ip:" + ip, nil
}

// ExtractHeader keys requests by the value of header name.
func ExtractHeader(name string) KeyExtractor {
	return func(r *http.Request) (string, error) {
		value := r.Header.Get(name)
		if value == "" {
			return "", fmt.Errorf("%w: header %s not found or empty", ErrKeyExtractionFailed, name)
		}
		return "header:" + name + ":" + value, nil
	}
}

// ExtractBearer keys requests by the token in "Authorization: Bearer <token>".
func ExtractBearer() KeyExtractor {
	return func(r *http.Request) (string, error) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			return "", fmt.Errorf("%w: Authorization header not found", ErrKeyExtractionFailed)
		}
		scheme, token, ok := strings.Cut(auth, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			return "", fmt.Errorf("%w: invalid Authorization header format", ErrKeyExtractionFailed)
		}
		if token = strings.TrimSpace(token); token == "" {
			return "", fmt.Errorf("%w: empty bearer token", ErrKeyExtractionFailed)
		}
		return "bearer:" + token, nil
	}
}

// ExtractCookie keys requests by the value of cookie name.
func ExtractCookie(name string) KeyExtractor {
	return func(r *http.Request) (string, error) {
		cookie, err := r.Cookie(name)
		if err != nil {
			return "", fmt.Errorf("%w: cookie %s not found: %v", ErrKeyExtractionFailed, name, err)
		}
		if cookie.Value == "" {
			return "", fmt.Errorf("%w: cookie %s has empty value", ErrKeyExtractionFailed, name)
		}
		return "cookie:" + name + ":" + cookie.Value, nil
	}
}

// ExtractStatic puts every request in the same bucket (a global limit).
func ExtractStatic(key string) KeyExtractor {
	return func(r *http.Request) (string, error) {
		if key == "" {
			return "", fmt.Errorf("%w: static key is empty", ErrKeyExtractionFailed)
		}
		return key, nil
	}
}

// ExtractComposite returns the key of the first extractor that succeeds.
//
// Example:
//
//	extractor := ExtractComposite(
//	    ExtractHeader("X-API-Key"),
//	    ExtractIPWithProxy(), // fallback
//	)
func ExtractComposite(extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) (string, error) {
		if len(extractors) == 0 {
			return "", fmt.Errorf("%w: no extractors provided", ErrKeyExtractionFailed)
		}
		var lastErr error
		for _, extract := range extractors {
			key, err := extract(r)
			if err == nil && key != "" {
				return key, nil
			}
			lastErr = err
		}
		if lastErr == nil {
			return "", fmt.Errorf("%w: all extractors returned empty key", ErrKeyExtractionFailed)
		}
		return "", fmt.Errorf("%w: all extractors failed: %v", ErrKeyExtractionFailed, lastErr)
	}
}

// ParseKeyExtractorConfig builds a KeyExtractor from its config string:
// "ip", "ip-proxy", "bearer", "header:<name>", "cookie:<name>" or "static:<key>".
// The empty string means "ip".
func ParseKeyExtractorConfig(config string) (KeyExtractor, error) {
	kind, arg, hasArg := strings.Cut(config, ":")

	switch kind {
	case "", "ip":
		return ExtractIP(), nil
	case "ip-proxy":
		return ExtractIPWithProxy(), nil
	case "bearer":
		return ExtractBearer(), nil
	case "header", "cookie", "static":
		if !hasArg || arg == "" {
			return nil, fmt.Errorf("%w: %s extractor requires format '%s:value'", ErrInvalidConfig, kind, kind)
		}
		switch kind {
		case "header":
			return ExtractHeader(arg), nil
		case "cookie":
			return ExtractCookie(arg), nil
		default:
			return ExtractStatic(arg), nil
		}
	default:
		return nil, fmt.Errorf("%w: unknown key extractor type: %s", ErrInvalidConfig, kind)
	}
}
