// Package executor implements the node executors: the type-specific bodies of
// step nodes. Each executor registers itself with the runtime registry from an
// init function; importing this package for side effect installs the full set.
package executor

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/asynctest/asynctest/internal/runtime"
)

// decodeOptions maps the raw step object onto a typed option struct. Weak
// typing absorbs the loose JSON the submission API accepts (numbers as
// strings and vice versa).
func decodeOptions(run *runtime.StepRun, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("build option decoder: %w", err)
	}
	if err := decoder.Decode(run.Step.Options()); err != nil {
		return fmt.Errorf("decode %s options: %w", run.Step.Type, err)
	}
	return nil
}
