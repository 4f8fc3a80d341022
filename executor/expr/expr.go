// Package expr evaluates cached payloads as govaluate expressions.
//
// It is a sandboxed stand-in for an interpreter: the envelope is stripped and
// the remaining source, minus a trailing ";", is parsed and evaluated against
// fixed parameters and functions.
package expr

import (
	"context"
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/unkn0wn-root/codecache/backend"
	"github.com/unkn0wn-root/codecache/envelope"
)

type Config struct {
	Parameters map[string]any
	Functions  map[string]govaluate.ExpressionFunction
	// ChecksTypes rejects operands of the wrong type at evaluation time.
	ChecksTypes bool
}

type Executor struct {
	params govaluate.MapParameters
	funcs  map[string]govaluate.ExpressionFunction
	check  bool
}

var _ backend.Executor = (*Executor)(nil)

func New(cfg Config) *Executor {
	params := make(govaluate.MapParameters, len(cfg.Parameters))
	for k, v := range cfg.Parameters {
		params[k] = v
	}
	return &Executor{params: params, funcs: cfg.Functions, check: cfg.ChecksTypes}
}

// Compile parses the source held by payload without evaluating it.
func (e *Executor) Compile(payload []byte) (*govaluate.EvaluableExpression, error) {
	code, _ := envelope.Unwrap(payload)
	code = strings.TrimSuffix(strings.TrimSpace(code), ";")
	if code == "" {
		return nil, fmt.Errorf("expr: empty expression")
	}
	ex, err := govaluate.NewEvaluableExpressionWithFunctions(code, e.funcs)
	if err != nil {
		return nil, fmt.Errorf("expr: parse: %w", err)
	}
	ex.ChecksTypes = e.check
	return ex, nil
}

func (e *Executor) Execute(ctx context.Context, id string, payload []byte) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ex, err := e.Compile(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	for _, v := range ex.Vars() {
		if _, ok := e.params[v]; !ok {
			return nil, fmt.Errorf("expr: %s: unknown parameter %q", id, v)
		}
	}
	v, err := ex.Eval(e.params)
	if err != nil {
		return nil, fmt.Errorf("expr: %s: eval: %w", id, err)
	}
	return v, nil
}
