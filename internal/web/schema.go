package web

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// The CPRT bundle response contract. Responses from the document endpoint
// must validate against this schema before they leave the server.
//
//go:embed cprt_schema.json
var cprtSchemaJSON string

var cprtSchema = gojsonschema.NewStringLoader(cprtSchemaJSON)

// validateBundle checks a bundle response against the CPRT schema.
// A violation is a server bug, reported as an error naming every failed
// constraint.
func validateBundle(bundle any) error {
	result, err := gojsonschema.Validate(cprtSchema, gojsonschema.NewGoLoader(bundle))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return fmt.Errorf("response validation failed: %s", strings.Join(details, "; "))
}
