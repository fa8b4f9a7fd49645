package csrf

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"
)

var (
	// ErrMissingToken is returned when no CSRF header is present.
	ErrMissingToken = errors.New("csrf: token missing")
	// ErrAmbiguousToken is returned when a request carries more than one CSRF value.
	ErrAmbiguousToken = errors.New("csrf: ambiguous token")
)

// HeaderNames are the conventional CSRF header names, matched case-insensitively.
var HeaderNames = []string{"X-CSRF-Token", "X-XSRF-Token", "CSRF-Token"}

// TokenFromHeaders extracts the single CSRF token from HTTP headers.
func TokenFromHeaders(h http.Header) (string, error) {
	var values []string
	for key, vals := range h {
		if isCSRFHeader(key) {
			values = append(values, vals...)
		}
	}
	return single(values)
}

// TokenFromMetadata extracts the single CSRF token from gRPC metadata.
func TokenFromMetadata(md metadata.MD) (string, error) {
	var values []string
	for key, vals := range md {
		if isCSRFHeader(key) {
			values = append(values, vals...)
		}
	}
	return single(values)
}

func isCSRFHeader(key string) bool {
	for _, name := range HeaderNames {
		if strings.EqualFold(key, name) {
			return true
		}
	}
	return false
}

// single accepts exactly one non-empty value. Repeated headers, the same token under two
// names and comma-joined values are all ambiguous.
func single(values []string) (string, error) {
	var token string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if token != "" {
				return "", ErrAmbiguousToken
			}
			token = part
		}
	}
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
