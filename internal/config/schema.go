package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	fleetschema "github.com/devfleet/devfleet/schema"
)

var (
	schemaOnce  sync.Once
	fleetSchema *jsonschema.Schema
	schemaErr   error
)

func loadFleetSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("fleet.v1.json", bytes.NewReader(fleetschema.FleetV1Schema)); err != nil {
			schemaErr = fmt.Errorf("add fleet schema resource: %w", err)
			return
		}
		fleetSchema, schemaErr = compiler.Compile("fleet.v1.json")
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile fleet schema: %w", schemaErr)
		}
	})
	if schemaErr != nil {
		return nil, schemaErr
	}
	return fleetSchema, nil
}

func validateAgainstSchema(doc map[string]any) error {
	schema, err := loadFleetSchema()
	if err != nil {
		return fmt.Errorf("load fleet schema: %w", err)
	}

	normalized, err := normalizeForSchema(doc)
	if err != nil {
		return fmt.Errorf("prepare manifest for schema validation: %w", err)
	}

	if err := schema.Validate(normalized); err != nil {
		if vErr, ok := err.(*jsonschema.ValidationError); ok {
			return fmt.Errorf("schema validation failed:\n%s", formatValidationError(vErr))
		}
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// normalizeForSchema round-trips the decoded YAML through JSON so the schema
// validator sees plain maps and json.Number values.
func normalizeForSchema(doc map[string]any) (any, error) {
	buf := &bytes.Buffer{}
	encoder := json.NewEncoder(buf)
	if err := encoder.Encode(doc); err != nil {
		return nil, err
	}
	decoder := json.NewDecoder(bytes.NewReader(buf.Bytes()))
	decoder.UseNumber()
	var out any
	if err := decoder.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// formatValidationError flattens the validator's cause tree into one line per
// leaf failure, keyed by a dotted manifest path.
func formatValidationError(err *jsonschema.ValidationError) string {
	var lines []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			lines = append(lines, fmt.Sprintf("  %s: %s", manifestPath(e.InstanceLocation), e.Message))
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(err)
	return strings.Join(lines, "\n")
}

// manifestPath converts a JSON pointer into the dotted notation used in
// manifest diagnostics, with array indices in brackets.
func manifestPath(ptr string) string {
	trimmed := strings.TrimPrefix(ptr, "/")
	if trimmed == "" {
		return "manifest"
	}
	var b strings.Builder
	for _, segment := range strings.Split(trimmed, "/") {
		segment = strings.ReplaceAll(segment, "~1", "/")
		segment = strings.ReplaceAll(segment, "~0", "~")
		if _, err := strconv.Atoi(segment); err == nil {
			fmt.Fprintf(&b, "[%s]", segment)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(segment)
	}
	return b.String()
}
