package universal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoRule is returned when a RuleLink has no rule for an operation and no
// fallback link.
var ErrNoRule = errors.New("universal: no rule for operation")

// RuleLinkOption configures a RuleLink.
type RuleLinkOption func(*RuleLink)

// WithRule resolves operations named name by evaluating expr.
func WithRule(name, expr string) RuleLinkOption {
	return func(l *RuleLink) {
		l.rules[name] = expr
	}
}

// WithRuleEvaluator replaces the default expr-lang evaluator.
func WithRuleEvaluator(evaluator Evaluator) RuleLinkOption {
	return func(l *RuleLink) {
		if evaluator != nil {
			l.evaluator = evaluator
		}
	}
}

// WithRuleFallback forwards operations without a rule to link.
func WithRuleFallback(link Link) RuleLinkOption {
	return func(l *RuleLink) {
		l.fallback = link
	}
}

// WithRuleLogger records every rule evaluation under the "evaluate" stage.
func WithRuleLogger(logger Logger) RuleLinkOption {
	return func(l *RuleLink) {
		if logger == nil {
			l.logger = noopLogger{}
			return
		}
		l.logger = logger
	}
}

// RuleLink answers operations locally by evaluating one expression per
// operation name against the operation variables. It stands in for a network
// transport in development and tests.
type RuleLink struct {
	mu        sync.RWMutex
	rules     map[string]string
	evaluator Evaluator
	fallback  Link
	logger    Logger
}

// NewRuleLink builds a RuleLink. Without WithRuleEvaluator it evaluates rules
// with expr-lang.
func NewRuleLink(opts ...RuleLinkOption) *RuleLink {
	l := &RuleLink{rules: map[string]string{}, logger: noopLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if l.evaluator == nil {
		l.evaluator = NewExprEvaluator(ExprWithProgramCache(NewProgramCache()))
	}
	return l
}

// SetRule adds or replaces the rule for name.
func (l *RuleLink) SetRule(name, expr string) {
	l.mu.Lock()
	l.rules[name] = expr
	l.mu.Unlock()
}

// Request implements Link.
func (l *RuleLink) Request(ctx context.Context, op Operation) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	l.mu.RLock()
	expr, ok := l.rules[op.Name]
	l.mu.RUnlock()
	if !ok {
		if l.fallback != nil {
			return l.fallback.Request(ctx, op)
		}
		return Result{}, fmt.Errorf("%w: %q", ErrNoRule, op.Name)
	}
	start := time.Now()
	value, err := l.evaluator.Evaluate(RuleContext{Operation: op}, expr)
	l.logger.Log(LogEvent{Stage: "evaluate", Key: op.Key(), Duration: time.Since(start), Err: err})
	if err != nil {
		return Result{}, err
	}
	return Result{Data: value}, nil
}
