//go:build !js_eval

package universal

// NewJSEvaluator returns an evaluator that fails every evaluation with
// ErrJSEvaluatorUnavailable. Build with the js_eval tag for the goja engine.
func NewJSEvaluator(opts ...JSEvaluatorOption) Evaluator {
	_ = applyJSEvaluatorOptions(opts)
	return unavailableJSEvaluator{}
}

type unavailableJSEvaluator struct{}

func (unavailableJSEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	return nil, wrapEvaluationError("js", expression, ctx.Operation.Name, ErrJSEvaluatorUnavailable)
}

func jsEvaluatorAvailable() bool {
	return false
}
