package catalog

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/baselinewatch/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// Schema validates release records against the #Feature definition in
// schema.cue. A Schema is not safe for concurrent use.
type Schema struct {
	ctx *cue.Context
	def cue.Value
}

// LoadSchema compiles the embedded schema.
func LoadSchema() (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	def := v.LookupPath(cue.ParsePath("#Feature"))
	if !def.Exists() {
		return nil, fmt.Errorf("schema has no #Feature definition")
	}
	return &Schema{ctx: ctx, def: def}, nil
}

// Validate reports whether record is a concrete #Feature.
func (s *Schema) Validate(record ir.IRValue) error {
	data, err := ir.MarshalIRValue(record)
	if err != nil {
		return err
	}
	v := s.ctx.CompileBytes(data)
	if err := v.Err(); err != nil {
		return fmt.Errorf("load record: %w", err)
	}
	if err := s.def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}
