package monitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"accessguard/internal/monitor/domain"
)

func TestBlockPolicy_Default(t *testing.T) {
	p, err := NewBlockPolicy(context.Background(), "", 50)
	if err != nil {
		t.Fatalf("NewBlockPolicy: %v", err)
	}
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	tests := []struct {
		name string
		rec  domain.SourceRecord
		want bool
	}{
		{"clean", domain.SourceRecord{Count: 3}, false},
		{"at ceiling", domain.SourceRecord{Count: 50}, false},
		{"over ceiling", domain.SourceRecord{Count: 51}, true},
		{"critical once", domain.SourceRecord{Count: 1, Critical: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Decide(context.Background(), &tt.rec)
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if got != tt.want {
				t.Errorf("Decide = %v, want %v", got, tt.want)
			}
			if fb := fallbackBlock(&tt.rec, 50); fb != tt.want {
				t.Errorf("fallbackBlock = %v, want %v", fb, tt.want)
			}
		})
	}
}

func TestLoadBlockPolicy_CustomModule(t *testing.T) {
	module := `package accessguard.monitor

default block := false

block if {
	input.source.types.brute_force >= 3
}
`
	path := filepath.Join(t.TempDir(), "block.rego")
	if err := os.WriteFile(path, []byte(module), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	p, err := LoadBlockPolicy(context.Background(), path, 50)
	if err != nil {
		t.Fatalf("LoadBlockPolicy: %v", err)
	}
	rec := &domain.SourceRecord{Count: 3, Types: map[domain.ThreatType]int{domain.TypeBruteForce: 3}}
	if got, err := p.Decide(context.Background(), rec); err != nil || !got {
		t.Errorf("Decide = %v, %v; want true", got, err)
	}
}

func TestNewBlockPolicy_Invalid(t *testing.T) {
	if _, err := NewBlockPolicy(context.Background(), "package broken\n\nblock if {", 50); err == nil {
		t.Error("NewBlockPolicy should reject a malformed module")
	}
	if _, err := LoadBlockPolicy(context.Background(), "/nonexistent/block.rego", 50); err == nil {
		t.Error("LoadBlockPolicy should fail for a missing file")
	}
}

func TestBlockPolicy_UndefinedIsError(t *testing.T) {
	p, err := NewBlockPolicy(context.Background(), "package accessguard.monitor\n\nblock if {\n\tinput.source.count > 1000\n}\n", 50)
	if err != nil {
		t.Fatalf("NewBlockPolicy: %v", err)
	}
	if _, err := p.Decide(context.Background(), &domain.SourceRecord{Count: 1}); err == nil {
		t.Error("undefined result should be an error")
	}
}
