package exercise

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/exercise.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

// SchemaJSON returns the JSON Schema every generated exercise must satisfy.
// It is also embedded in generation prompts.
func SchemaJSON() string {
	return schemaJSON
}

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile exercise schema: %w", schemaErr)
		}
	})
	return schema, schemaErr
}

func validateSchema(item []byte) error {
	s, err := loadSchema()
	if err != nil {
		return err
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(item))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExercise, err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidExercise, strings.Join(msgs, "; "))
}
