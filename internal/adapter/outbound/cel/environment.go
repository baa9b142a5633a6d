package cel

import (
	"path/filepath"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"
)

// NewIntentEnvironment creates the CEL environment intent expressions compile against.
// Besides the standard string extensions it provides glob(pattern, s) using
// filepath.Match semantics, e.g. glob("triage-*", command).
func NewIntentEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("command", cel.StringType),
		cel.Variable("intent", cel.StringType),
		cel.Variable("output", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("output_text", cel.StringType),

		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, name ref.Val) ref.Val {
					p, ok := pattern.Value().(string)
					if !ok {
						return types.Bool(false)
					}
					n, ok := name.Value().(string)
					if !ok {
						return types.Bool(false)
					}
					matched, _ := filepath.Match(p, n)
					return types.Bool(matched)
				}),
			),
		),
	)
}
