package monitor

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"accessguard/internal/monitor/domain"
)

const blockQuery = "data.accessguard.monitor.block"

// DefaultBlockPolicy blocks a source that triggered a critical-class threat or whose total
// threat count exceeds the ceiling.
const DefaultBlockPolicy = `package accessguard.monitor

default block := false

block if {
	input.source.critical
}

block if {
	input.source.count > input.ceiling
}
`

// BlockPolicy decides whether a source should be blocked, using a compiled Rego module.
type BlockPolicy struct {
	query   rego.PreparedEvalQuery
	ceiling int
}

// NewBlockPolicy compiles module (DefaultBlockPolicy when empty) and prepares the block query.
// ceiling is passed to the policy as input.ceiling.
func NewBlockPolicy(ctx context.Context, module string, ceiling int) (*BlockPolicy, error) {
	if module == "" {
		module = DefaultBlockPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"block.rego": module})
	if err != nil {
		return nil, fmt.Errorf("compile block policy: %w", err)
	}
	pq, err := rego.New(rego.Query(blockQuery), rego.Compiler(compiler)).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare block policy: %w", err)
	}
	return &BlockPolicy{query: pq, ceiling: ceiling}, nil
}

// LoadBlockPolicy reads a Rego module from path, or uses the built-in policy when path is empty.
func LoadBlockPolicy(ctx context.Context, path string, ceiling int) (*BlockPolicy, error) {
	if path == "" {
		return NewBlockPolicy(ctx, "", ceiling)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read block policy: %w", err)
	}
	return NewBlockPolicy(ctx, string(b), ceiling)
}

// Decide evaluates the policy for rec. An undefined result is an error so the caller can fall back.
func (p *BlockPolicy) Decide(ctx context.Context, rec *domain.SourceRecord) (bool, error) {
	types := make(map[string]any, len(rec.Types))
	for t, n := range rec.Types {
		types[string(t)] = n
	}
	input := map[string]any{
		"ceiling": p.ceiling,
		"source": map[string]any{
			"id":       rec.Source,
			"count":    rec.Count,
			"critical": rec.Critical,
			"types":    types,
		},
	}
	rs, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval block policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, fmt.Errorf("block policy returned no result")
	}
	v, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("block policy returned %T, want bool", rs[0].Expressions[0].Value)
	}
	return v, nil
}

// HealthCheck evaluates the policy against an empty source.
func (p *BlockPolicy) HealthCheck(ctx context.Context) error {
	_, err := p.Decide(ctx, &domain.SourceRecord{Source: "healthcheck"})
	return err
}

// fallbackBlock is the built-in rule used when no policy is configured or evaluation fails.
func fallbackBlock(rec *domain.SourceRecord, ceiling int) bool {
	return rec.Critical || rec.Count > ceiling
}
