package tools

import (
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// argValidator validates tool-call arguments against the input schema the
// provider advertised for the tool.
type argValidator struct {
	schema *jsonschema.Schema
}

// compileValidator compiles an input schema. Providers sometimes advertise
// schemas that do not compile; those tools are invoked without validation
// rather than rejected, so compile failures return nil.
func compileValidator(inputSchema map[string]any) *argValidator {
	if len(inputSchema) == 0 {
		return nil
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", inputSchema); err != nil {
		return nil
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil
	}
	return &argValidator{schema: schema}
}

func (v *argValidator) validate(args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	return v.schema.Validate(args)
}
