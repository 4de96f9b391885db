package registry

import (
	_ "embed"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/core-tools/hsu-launchpad/pkg/errors"
)

//go:embed schema.json
var documentSchema []byte

func newDocumentSchema() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(documentSchema))
}

// validateDocument checks raw registry JSON against the embedded schema
func validateDocument(schema *gojsonschema.Schema, data []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return errors.NewValidationError("registry document is not valid JSON", err)
	}
	if result.Valid() {
		return nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		messages = append(messages, desc.String())
	}
	return errors.NewValidationError("registry document violates schema: "+strings.Join(messages, "; "), nil)
}
