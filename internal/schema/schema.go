// Package schema converts flag documents (JSON or YAML) into the typed
// ruleengine data model.
//
// Documents are validated against an embedded JSON Schema before mapping.
// Numeric literals are classified losslessly (integer vs double) and strings
// are only tagged as semantic versions when a type declaration says so.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/rafaeljc/heimdall-go/internal/ruleengine"
)

//go:embed flagset.schema.json
var flagSetSchema []byte

// compiled once; the embedded schema is static.
var documentSchema = mustCompile(flagSetSchema)

var (
	// ErrSchemaViolation wraps every structural problem reported by the JSON Schema.
	ErrSchemaViolation = errors.New("document violates the flag set schema")

	// ErrDuplicateFeature is returned when two features share a key.
	ErrDuplicateFeature = errors.New("duplicate feature key")

	// ErrUnsupportedFormat is returned for formats other than JSON and YAML.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrInvalidValue is returned when a variant or constraint value cannot be typed.
	ErrInvalidValue = errors.New("invalid value")
)

// Format identifies the document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat converts a format name ("json", "yaml", "yml") into a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Document is a parsed flag snapshot.
type Document struct {
	FlagSet    *ruleengine.FlagSet
	FieldTypes ruleengine.FieldTypes
	UpdatedAt  time.Time
}

// Parse validates and maps a flag document.
func Parse(data []byte, format Format) (*Document, error) {
	var (
		raw []byte
		err error
	)
	switch format {
	case FormatJSON:
		raw = data
	case FormatYAML:
		if raw, err = yamlToJSON(data); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if err := validate(raw); err != nil {
		return nil, err
	}

	var doc documentDTO
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode flag document: %w", err)
	}

	return doc.toDocument()
}

// Validate reports whether data is a structurally valid flag document,
// without mapping it.
func Validate(data []byte, format Format) error {
	_, err := Parse(data, format)
	return err
}

func validate(raw []byte) error {
	result, err := documentSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		// Not JSON at all.
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		details = append(details, e.String())
	}
	return fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(details, "; "))
}

func mustCompile(raw []byte) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("schema: embedded flag set schema is invalid: %v", err))
	}
	return s
}
