package universal

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// RuleContext carries the inputs an expression sees when a RuleLink resolves
// an operation.
type RuleContext struct {
	Operation Operation
	Now       *time.Time
}

func (ctx RuleContext) withDefaults() RuleContext {
	if ctx.Now == nil {
		now := time.Now()
		ctx.Now = &now
	}
	if ctx.Operation.Variables == nil {
		ctx.Operation.Variables = map[string]any{}
	}
	return ctx
}

// bindings returns the variables exposed to expressions: every operation
// variable at top level plus vars, operation and now.
func (ctx RuleContext) bindings() map[string]any {
	ctx = ctx.withDefaults()
	env := make(map[string]any, len(ctx.Operation.Variables)+3)
	for key, value := range ctx.Operation.Variables {
		env[key] = value
	}
	env["vars"] = ctx.Operation.Variables
	env["operation"] = ctx.Operation.Name
	env["now"] = *ctx.Now
	return env
}

// Evaluator runs an expression against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
}

// ProgramCache stores compiled programs keyed by expression source.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

type syncProgramCache struct {
	programs sync.Map
}

// NewProgramCache returns a ProgramCache safe for concurrent use.
func NewProgramCache() ProgramCache {
	return &syncProgramCache{}
}

func (c *syncProgramCache) Get(key string) (any, bool) {
	return c.programs.Load(key)
}

func (c *syncProgramCache) Set(key string, value any) {
	c.programs.Store(key, value)
}

// EvaluationError captures evaluator metadata alongside the originating error.
type EvaluationError struct {
	Engine    string
	Expr      string
	Operation string
	Err       error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	expr := "expr=<empty>"
	if e.Expr != "" {
		expr = fmt.Sprintf("expr=%q", e.Expr)
	}
	return fmt.Sprintf("universal: %s evaluator %s operation=%s: %v", e.Engine, expr, e.Operation, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

var errEmptyExpression = errors.New("expression must not be empty")

func wrapEvaluationError(engine, expr, operation string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		if evalErr.Operation == "" {
			evalErr.Operation = operation
		}
		return evalErr
	}
	return &EvaluationError{
		Engine:    engine,
		Expr:      expr,
		Operation: operation,
		Err:       err,
	}
}
