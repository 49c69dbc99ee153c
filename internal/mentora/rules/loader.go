package rules

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

//go:embed rules.yaml
var defaultRulesYAML []byte

// ruleFile is the on-disk shape of the rule table.
type ruleFile struct {
	Rules []Rule `yaml:"rules" json:"rules"`
}

// compiledSchema is built once at package init. The schema is embedded, so a
// compile failure is a programming error and panics immediately.
var compiledSchema = jsonschema.MustCompileString("rules.schema.json", schemaJSON)

// Parse decodes a rule-table YAML document, validates it against the embedded
// JSON Schema, and returns an immutable Table. It is the canonical entry
// point for loading rule tables.
func Parse(data []byte) (*Table, error) {
	// Structural validation happens on the generically-decoded document so
	// that schema violations surface with a precise location instead of a
	// zero-valued struct field.
	doc, err := yamlToJSONValue(data)
	if err != nil {
		return nil, fmt.Errorf("rules: parse: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("rules: schema validation: %w", err)
	}

	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("rules: decode: %w", err)
	}

	table, err := newTable(rf.Rules)
	if err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	return table, nil
}

// LoadFile reads and parses the rule table at path.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the embedded rule table. The embedded table is validated
// by tests, so a parse failure here is a build defect and panics.
func Default() *Table {
	table, err := Parse(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("rules: embedded default table is invalid: %v", err))
	}
	return table
}

// yamlToJSONValue round-trips a YAML document through JSON so the result
// uses the value types (map[string]any, float64, …) the schema validator
// expects.
func yamlToJSONValue(data []byte) (any, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(jsonBytes))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}
