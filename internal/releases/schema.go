package releases

import (
	"bytes"
	"embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	releaseSchema  = "schemas/release.json"
	downloadSchema = "schemas/download.json"
)

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		c := jsonschema.NewCompiler()
		out := make(map[string]*jsonschema.Schema)
		for _, name := range []string{releaseSchema, downloadSchema} {
			raw, err := schemaFS.ReadFile(name)
			if err != nil {
				schemasErr = err
				return
			}
			doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
			if err != nil {
				schemasErr = fmt.Errorf("failed to parse %s: %w", name, err)
				return
			}
			if err := c.AddResource(name, doc); err != nil {
				schemasErr = fmt.Errorf("failed to add %s: %w", name, err)
				return
			}
			sch, err := c.Compile(name)
			if err != nil {
				schemasErr = fmt.Errorf("failed to compile %s: %w", name, err)
				return
			}
			out[name] = sch
		}
		schemas = out
	})
	return schemas, schemasErr
}

// validateBody checks a response body against the named embedded schema.
func validateBody(name string, body []byte) error {
	all, err := compileSchemas()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	if err := all[name].Validate(inst); err != nil {
		return fmt.Errorf("response does not match schema: %w", err)
	}
	return nil
}
