package universal

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var evaluatorFactories = []struct {
	name string
	new  func(cache ProgramCache, registry *FunctionRegistry) Evaluator
}{
	{
		name: "expr",
		new: func(cache ProgramCache, registry *FunctionRegistry) Evaluator {
			opts := []ExprEvaluatorOption{}
			if cache != nil {
				opts = append(opts, ExprWithProgramCache(cache))
			}
			if registry != nil {
				opts = append(opts, ExprWithFunctionRegistry(registry))
			}
			return NewExprEvaluator(opts...)
		},
	},
	{
		name: "cel",
		new: func(cache ProgramCache, registry *FunctionRegistry) Evaluator {
			opts := []CELEvaluatorOption{}
			if cache != nil {
				opts = append(opts, CELWithProgramCache(cache))
			}
			if registry != nil {
				opts = append(opts, CELWithFunctionRegistry(registry))
			}
			return NewCELEvaluator(opts...)
		},
	},
	{
		name: "js",
		new: func(cache ProgramCache, registry *FunctionRegistry) Evaluator {
			opts := []JSEvaluatorOption{}
			if cache != nil {
				opts = append(opts, JSWithProgramCache(cache))
			}
			if registry != nil {
				opts = append(opts, JSWithFunctionRegistry(registry))
			}
			return NewJSEvaluator(opts...)
		},
	},
}

func TestEvaluatorsReadOperationVariables(t *testing.T) {
	rules := map[string]string{
		"expr": `"user-" + id`,
		"cel":  `"user-" + id`,
		"js":   `"user-" + id`,
	}
	for _, factory := range evaluatorFactories {
		t.Run(factory.name, func(t *testing.T) {
			if factory.name == "js" && !jsEvaluatorAvailable() {
				t.Skip("js evaluator requires the js_eval build tag")
			}
			evaluator := factory.new(NewProgramCache(), nil)
			ctx := RuleContext{Operation: Operation{Name: "Viewer", Variables: map[string]any{"id": "u1"}}}

			for i := 0; i < 2; i++ {
				got, err := evaluator.Evaluate(ctx, rules[factory.name])
				if err != nil {
					t.Fatalf("evaluate: %v", err)
				}
				if got != "user-u1" {
					t.Fatalf("expected user-u1, got %#v", got)
				}
			}
		})
	}
}

func TestEvaluatorsCallRegistryFunctions(t *testing.T) {
	registry := NewFunctionRegistry()
	if err := registry.Register("double", func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("double expects one argument, got %d", len(args))
		}
		switch v := args[0].(type) {
		case int:
			return v * 2, nil
		case int64:
			return v * 2, nil
		case float64:
			return v * 2, nil
		default:
			return nil, fmt.Errorf("double: unsupported %T", v)
		}
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	rules := map[string]string{
		"expr": `double(21)`,
		"cel":  `double([21])`,
		"js":   `double(21)`,
	}
	for _, factory := range evaluatorFactories {
		t.Run(factory.name, func(t *testing.T) {
			if factory.name == "js" && !jsEvaluatorAvailable() {
				t.Skip("js evaluator requires the js_eval build tag")
			}
			got, err := factory.new(nil, registry).Evaluate(RuleContext{}, rules[factory.name])
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if fmt.Sprint(got) != "42" {
				t.Fatalf("expected 42, got %#v", got)
			}
		})
	}
}

func TestEvaluatorsSeeNow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rules := map[string]string{
		"expr": `now.Year()`,
		"cel":  `now.getFullYear()`,
	}
	for _, factory := range evaluatorFactories {
		rule, ok := rules[factory.name]
		if !ok {
			continue
		}
		t.Run(factory.name, func(t *testing.T) {
			got, err := factory.new(nil, nil).Evaluate(RuleContext{Now: &now}, rule)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if fmt.Sprint(got) != "2026" {
				t.Fatalf("expected 2026, got %#v", got)
			}
		})
	}
}

func TestEvaluatorsWrapErrors(t *testing.T) {
	for _, factory := range evaluatorFactories {
		t.Run(factory.name, func(t *testing.T) {
			if factory.name == "js" && !jsEvaluatorAvailable() {
				t.Skip("js evaluator requires the js_eval build tag")
			}
			evaluator := factory.new(nil, nil)
			_, err := evaluator.Evaluate(RuleContext{Operation: Operation{Name: "Viewer"}}, "")
			var evalErr *EvaluationError
			if !errors.As(err, &evalErr) {
				t.Fatalf("expected EvaluationError, got %T", err)
			}
			if evalErr.Engine != factory.name || evalErr.Operation != "Viewer" {
				t.Fatalf("unexpected error metadata: %+v", evalErr)
			}
			if !errors.Is(err, errEmptyExpression) {
				t.Fatalf("expected empty expression cause")
			}

			if _, err := evaluator.Evaluate(RuleContext{}, "1 +"); err == nil {
				t.Fatalf("expected compile error")
			}
		})
	}
}

func TestWrapEvaluationErrorAugmentsExisting(t *testing.T) {
	base := errors.New("compile failure")
	existing := &EvaluationError{Engine: "expr", Err: base}

	err := wrapEvaluationError("cel", "rule", "Viewer", existing)
	if !errors.Is(err, base) {
		t.Fatalf("expected base error to unwrap")
	}
	if existing.Engine != "expr" {
		t.Fatalf("existing engine should not be overwritten, got %q", existing.Engine)
	}
	if existing.Expr != "rule" || existing.Operation != "Viewer" {
		t.Fatalf("expected missing metadata filled, got %+v", existing)
	}
}

func TestRuleLinkResolvesOperations(t *testing.T) {
	link := NewRuleLink(WithRule("Viewer", `{"id": id, "name": "user-" + id}`))
	result, err := link.Request(context.Background(), Operation{Name: "Viewer", Variables: map[string]any{"id": "u1"}})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	data, ok := result.Data.(map[string]any)
	if !ok || data["name"] != "user-u1" || data["id"] != "u1" {
		t.Fatalf("unexpected data: %#v", result.Data)
	}

	if _, err := link.Request(context.Background(), Operation{Name: "Missing"}); !errors.Is(err, ErrNoRule) {
		t.Fatalf("expected ErrNoRule, got %v", err)
	}

	link.SetRule("Missing", `operation`)
	result, err = link.Request(context.Background(), Operation{Name: "Missing"})
	if err != nil || result.Data != "Missing" {
		t.Fatalf("expected rule added at runtime, got %v (%v)", result.Data, err)
	}
}

func TestRuleLinkFallbackAndEvaluator(t *testing.T) {
	fallback := LinkFunc(func(_ context.Context, op Operation) (Result, error) {
		return Result{Data: "remote:" + op.Name}, nil
	})
	link := NewRuleLink(
		WithRuleEvaluator(NewCELEvaluator()),
		WithRule("Count", `size(vars)`),
		WithRuleFallback(fallback),
	)

	result, err := link.Request(context.Background(), Operation{Name: "Count", Variables: map[string]any{"a": 1, "b": 2}})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if fmt.Sprint(result.Data) != "2" {
		t.Fatalf("expected 2, got %#v", result.Data)
	}

	result, err = link.Request(context.Background(), Operation{Name: "Other"})
	if err != nil || result.Data != "remote:Other" {
		t.Fatalf("expected fallback, got %v (%v)", result.Data, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := link.Request(ctx, Operation{Name: "Count"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestRuleLinkServesClient(t *testing.T) {
	link := NewRuleLink(WithRule("Greeting", `"hello " + name`))
	client, err := NewClient(Resolve(ClientOptions{Link: link}, EnvironmentClient))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	op := Operation{Name: "Greeting", Variables: map[string]any{"name": "ada"}}
	result, err := client.Query(context.Background(), op)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if result.Data != "hello ada" {
		t.Fatalf("unexpected data: %#v", result.Data)
	}
	if cached, ok := client.Cache().(CacheReader).Read(op.Key()); !ok || cached != "hello ada" {
		t.Fatalf("expected result cached under %s", op.Key())
	}
}

func TestRuleLinkLogsEvaluations(t *testing.T) {
	var events []LogEvent
	link := NewRuleLink(
		WithRule("Viewer", `id`),
		WithRule("Broken", `1 +`),
		WithRuleLogger(LoggerFunc(func(event LogEvent) { events = append(events, event) })),
	)
	ctx := context.Background()
	if _, err := link.Request(ctx, Operation{Name: "Viewer", Variables: map[string]any{"id": "u1"}}); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := link.Request(ctx, Operation{Name: "Broken"}); err == nil {
		t.Fatalf("expected compile error")
	}
	if len(events) != 2 {
		t.Fatalf("expected two evaluation events, got %d", len(events))
	}
	if events[0].Stage != "evaluate" || events[0].Key != `Viewer({"id":"u1"})` || events[0].Err != nil {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	var evalErr *EvaluationError
	if !errors.As(events[1].Err, &evalErr) {
		t.Fatalf("expected evaluation error logged, got %v", events[1].Err)
	}
}
