// Package guard compiles and evaluates transition guard predicates.
//
// Guards are boolean expressions over externally-supplied entity attributes,
// e.g. "approvals_recorded >= approvals_required" or
// "budget_impact_pct < 5.0". Evaluation is pure: a guard can read the
// attribute map but cannot mutate anything.
package guard

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/sitehq/girder/model"
)

// Engine compiles guard expressions once and caches the programs. Safe for
// concurrent use.
type Engine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewEngine creates a guard engine with an empty program cache.
func NewEngine() *Engine {
	return &Engine{cache: make(map[string]*vm.Program)}
}

// Compile checks that the expression parses and produces a boolean. Used by
// the definition validator at startup so a bad guard fails the process before
// it can fail a request.
func (e *Engine) Compile(expression string) error {
	_, err := e.program(expression)
	return err
}

// Evaluate runs the guard against the given attributes. A missing attribute
// makes the guard fail closed with GUARD_NOT_SATISFIED rather than panic:
// the caller is told which guard rejected, not handed a runtime error.
func (e *Engine) Evaluate(expression string, attributes map[string]any) error {
	if expression == "" {
		return nil
	}

	program, err := e.program(expression)
	if err != nil {
		return model.NewGuardNotSatisfiedError(
			fmt.Sprintf("guard failed to compile: %v", err), expression,
		)
	}

	if attributes == nil {
		attributes = map[string]any{}
	}
	output, err := expr.Run(program, attributes)
	if err != nil {
		return model.NewGuardNotSatisfiedError(
			fmt.Sprintf("guard evaluation failed: %v", err), expression,
		)
	}

	ok, isBool := output.(bool)
	if !isBool {
		return model.NewGuardNotSatisfiedError("guard did not produce a boolean", expression)
	}
	if !ok {
		return model.NewGuardNotSatisfiedError("guard rejected the transition", expression)
	}
	return nil
}

func (e *Engine) program(expression string) (*vm.Program, error) {
	e.mu.RLock()
	prog, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return prog, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prog, ok := e.cache[expression]; ok {
		return prog, nil
	}

	// AllowUndefinedVariables: attribute maps are caller-supplied and
	// sparse; a missing key evaluates to nil and the guard fails closed.
	prog, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile guard %q: %w", expression, err)
	}
	e.cache[expression] = prog
	return prog, nil
}
