// Package preset loads the per-type settings applied when a khatm starts.
//
// Presets are declared in CUE. The embedded schema constrains every field
// and the embedded defaults mark each value as a CUE default, so an operator
// file only needs the fields it changes:
//
//	presets: zekr: period_number: 33
package preset

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/khatm/internal/khatm"
)

var (
	//go:embed schema.cue
	schemaSrc []byte

	//go:embed defaults.cue
	defaultsSrc []byte
)

// Presets maps each khatm type to its start settings.
type Presets map[khatm.Type]khatm.Preset

// Default returns the embedded presets.
func Default() (Presets, error) {
	return Parse(nil, "")
}

// Load reads an operator preset file and unifies it with the defaults.
// An empty path returns the defaults.
func Load(path string) (Presets, error) {
	if path == "" {
		return Default()
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	return Parse(src, path)
}

// Parse unifies override (CUE source, may be nil) with the embedded schema
// and defaults and decodes the result.
func Parse(override []byte, filename string) (Presets, error) {
	ctx := cuecontext.New()

	v := ctx.CompileBytes(schemaSrc, cue.Filename("schema.cue"))
	v = v.Unify(ctx.CompileBytes(defaultsSrc, cue.Filename("defaults.cue")))
	if override != nil {
		o := ctx.CompileBytes(override, cue.Filename(filename))
		if err := o.Err(); err != nil {
			return nil, formatCUEError(err)
		}
		v = v.Unify(o)
	}

	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var raw struct {
		Presets map[string]khatm.Preset `json:"presets"`
	}
	if err := v.Decode(&raw); err != nil {
		return nil, formatCUEError(err)
	}

	out := make(Presets, len(raw.Presets))
	for name, p := range raw.Presets {
		t, err := khatm.ParseType(name)
		if err != nil {
			return nil, err
		}
		out[t] = p
	}
	return out, nil
}

// Error is a preset file problem with its source position.
type Error struct {
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &Error{Message: first.Error(), Pos: positions[0]}
	}
	return first
}
