package core

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// filterPrograms caches compiled partial-filter expressions by source.
var filterPrograms sync.Map

// MatchesFilter reports whether a record's fields satisfy the spec's
// partial filter. Specs without a filter match every record. A filter
// that fails to compile or to evaluate matches nothing; schema assembly
// rejects malformed expressions before they reach a spec.
func (s IndexSpec) MatchesFilter(fields Metadata) bool {
	if s.PartialFilter == "" {
		return true
	}

	var program *vm.Program
	if cached, ok := filterPrograms.Load(s.PartialFilter); ok {
		program = cached.(*vm.Program)
	} else {
		p, err := expr.Compile(s.PartialFilter, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return false
		}
		filterPrograms.Store(s.PartialFilter, p)
		program = p
	}

	out, err := expr.Run(program, map[string]any(fields))
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}
