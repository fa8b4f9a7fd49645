package csrf

import (
	"net/http"
	"testing"

	"google.golang.org/grpc/metadata"
)

func TestTokenFromHeaders(t *testing.T) {
	tests := []struct {
		name    string
		header  http.Header
		want    string
		wantErr error
	}{
		{"x-csrf-token", http.Header{"X-Csrf-Token": {"abc"}}, "abc", nil},
		{"non-canonical key", http.Header{"x-xsrf-token": {"abc"}}, "abc", nil},
		{"csrf-token", http.Header{"Csrf-Token": {" abc "}}, "abc", nil},
		{"missing", http.Header{"Authorization": {"Bearer x"}}, "", ErrMissingToken},
		{"empty value", http.Header{"X-Csrf-Token": {""}}, "", ErrMissingToken},
		{"repeated header", http.Header{"X-Csrf-Token": {"a", "b"}}, "", ErrAmbiguousToken},
		{"comma joined", http.Header{"X-Csrf-Token": {"a, b"}}, "", ErrAmbiguousToken},
		{"two names", http.Header{"X-Csrf-Token": {"a"}, "X-Xsrf-Token": {"a"}}, "", ErrAmbiguousToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TokenFromHeaders(tt.header)
			if err != tt.wantErr {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("token = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTokenFromMetadata(t *testing.T) {
	md := metadata.Pairs("x-csrf-token", "abc")
	if got, err := TokenFromMetadata(md); err != nil || got != "abc" {
		t.Errorf("TokenFromMetadata = %q, %v; want abc", got, err)
	}
	md = metadata.Pairs("x-csrf-token", "a", "x-csrf-token", "b")
	if _, err := TokenFromMetadata(md); err != ErrAmbiguousToken {
		t.Errorf("err = %v, want ErrAmbiguousToken", err)
	}
	if _, err := TokenFromMetadata(metadata.MD{}); err != ErrMissingToken {
		t.Errorf("err = %v, want ErrMissingToken", err)
	}
}
