package universal

import (
	"reflect"
	"sort"
	"strings"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// CELEvaluatorOption configures the CEL evaluator.
type CELEvaluatorOption func(*celEvaluator)

// CELWithProgramCache reuses compiled programs across evaluations.
func CELWithProgramCache(cache ProgramCache) CELEvaluatorOption {
	return func(e *celEvaluator) {
		e.cache = cache
	}
}

// CELWithFunctionRegistry exposes registry functions to expressions. Each
// function takes a single list argument: double([2]).
func CELWithFunctionRegistry(registry *FunctionRegistry) CELEvaluatorOption {
	return func(e *celEvaluator) {
		e.registry = registry
	}
}

type celEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewCELEvaluator constructs an Evaluator backed by cel-go.
func NewCELEvaluator(opts ...CELEvaluatorOption) Evaluator {
	e := &celEvaluator{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *celEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	if expression == "" {
		return nil, wrapEvaluationError("cel", expression, ctx.Operation.Name, errEmptyExpression)
	}
	activation := ctx.bindings()
	program, err := e.loadOrCompile(expression, activation)
	if err != nil {
		return nil, wrapEvaluationError("cel", expression, ctx.Operation.Name, err)
	}
	out, _, err := program.Eval(activation)
	if err != nil {
		return nil, wrapEvaluationError("cel", expression, ctx.Operation.Name, err)
	}
	return out.Value(), nil
}

// loadOrCompile caches per expression and variable set, since CEL declares
// variables at compile time.
func (e *celEvaluator) loadOrCompile(expression string, activation map[string]any) (celgo.Program, error) {
	names := make([]string, 0, len(activation))
	for name := range activation {
		names = append(names, name)
	}
	sort.Strings(names)
	key := "cel:" + strings.Join(names, ",") + ":" + expression

	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(celgo.Program); ok {
				return program, nil
			}
		}
	}

	envOpts := make([]celgo.EnvOption, 0, len(names)+len(e.registry.Names()))
	for _, name := range names {
		if name == "now" {
			envOpts = append(envOpts, celgo.Variable(name, celgo.TimestampType))
			continue
		}
		envOpts = append(envOpts, celgo.Variable(name, celgo.DynType))
	}
	for _, name := range e.registry.Names() {
		envOpts = append(envOpts, celgo.Function(name,
			celgo.Overload(name+"_list",
				[]*celgo.Type{celgo.ListType(celgo.DynType)},
				celgo.DynType,
				celgo.UnaryBinding(e.binding(name)),
			),
		))
	}
	env, err := celgo.NewEnv(envOpts...)
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Set(key, program)
	}
	return program, nil
}

var nativeArgsType = reflect.TypeOf([]any{})

func (e *celEvaluator) binding(name string) func(ref.Val) ref.Val {
	return func(value ref.Val) ref.Val {
		native, err := value.ConvertToNative(nativeArgsType)
		if err != nil {
			return types.NewErr("universal: %s arguments: %v", name, err)
		}
		args, ok := native.([]any)
		if !ok {
			return types.NewErr("universal: %s arguments must be a list", name)
		}
		result, err := e.registry.Call(name, args...)
		if err != nil {
			return types.NewErr("%s", err.Error())
		}
		if result == nil {
			return types.NullValue
		}
		return types.DefaultTypeAdapter.NativeToValue(result)
	}
}
