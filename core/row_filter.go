package core

import (
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// RowFilter evaluates event row filters against record values. Expressions
// are compiled once and cached by their source text.
//
// The environment exposes every record column at the top level plus
// "record" (the full value map), "table" and "id".
type RowFilter struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

func NewRowFilter() *RowFilter {
	return &RowFilter{programs: map[string]*vm.Program{}}
}

// Compile checks that expression is a valid boolean expression.
func (f *RowFilter) Compile(expression string) error {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil
	}
	_, err := f.program(expression)
	return err
}

// Match reports whether record is visible under expression. An empty
// expression matches every record.
func (f *RowFilter) Match(expression string, record Record) (bool, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return true, nil
	}
	program, err := f.program(expression)
	if err != nil {
		return false, err
	}
	output, err := expr.Run(program, rowFilterEnv(record))
	if err != nil {
		return false, fmt.Errorf("core: evaluate row filter %q: %w", expression, err)
	}
	matched, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("core: row filter %q returned %T, expected bool", expression, output)
	}
	return matched, nil
}

func (f *RowFilter) program(expression string) (*vm.Program, error) {
	if f == nil {
		return nil, fmt.Errorf("core: row filter is nil")
	}
	f.mu.RLock()
	program, ok := f.programs[expression]
	f.mu.RUnlock()
	if ok {
		return program, nil
	}

	// Records are untyped maps, so variables are not declared up front.
	compiled, err := expr.Compile(expression, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("core: compile row filter %q: %w", expression, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.programs == nil {
		f.programs = map[string]*vm.Program{}
	}
	f.programs[expression] = compiled
	return compiled, nil
}

func rowFilterEnv(record Record) map[string]any {
	env := make(map[string]any, len(record.Values)+3)
	for key, value := range record.Values {
		env[key] = value
	}
	env["record"] = record.Values
	env["table"] = record.Table
	if _, exists := env["id"]; !exists {
		env["id"] = record.ID
	}
	return env
}
