package action

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const requestSchemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["id", "type"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"type": {"type": "string", "enum": ["exec", "read_file", "write_file"]},
		"command": {"type": "string"},
		"path": {"type": "string"},
		"content": {"type": "string"},
		"encoding": {"type": "string", "enum": ["utf8", "base64"]}
	}
}`

var (
	requestSchemaOnce sync.Once
	requestSchema     *gojsonschema.Schema
	requestSchemaErr  error
)

func loadRequestSchema() (*gojsonschema.Schema, error) {
	requestSchemaOnce.Do(func() {
		requestSchema, requestSchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(requestSchemaJSON))
	})
	return requestSchema, requestSchemaErr
}

// validateRequest checks a raw inbound message against the request schema.
func validateRequest(data []byte) error {
	schema, err := loadRequestSchema()
	if err != nil {
		return fmt.Errorf("failed to load request schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("%s", strings.Join(problems, "; "))
}
