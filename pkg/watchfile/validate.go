package watchfile

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/schema"

	schemasassets "github.com/3leaps/spoolwatch/internal/assets/schemas"
)

var (
	ErrSchemaNotFound   = errors.New("manifest schema not found")
	ErrValidationFailed = errors.New("manifest validation failed")
)

// compiledSchema is built on first use and shared afterwards.
var compiledSchema = sync.OnceValues(func() (*schema.Validator, error) {
	raw := schemasassets.WatchManifestSchema
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: embedded watch-manifest schema is empty", ErrSchemaNotFound)
	}
	v, err := schema.NewValidator(raw)
	if err != nil {
		return nil, fmt.Errorf("compile watch-manifest schema: %w", err)
	}
	return v, nil
})

// ValidationError is one problem found in a manifest.
type ValidationError struct {
	// Path is a JSON pointer such as "/watches/0/interval". Empty for
	// document-level problems.
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Path != "" {
		return e.Path + ": " + e.Message
	}
	return e.Message
}

// ValidationErrors is every problem found in one pass. It matches
// ErrValidationFailed under errors.Is.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	lines := make([]string, 0, len(e)+1)
	lines = append(lines, fmt.Sprintf("manifest has %d errors:", len(e)))
	for _, ve := range e {
		lines = append(lines, "  - "+ve.Error())
	}
	return strings.Join(lines, "\n")
}

func (e ValidationErrors) Unwrap() error { return ErrValidationFailed }

// ValidateRaw checks a JSON document against the watch-manifest schema.
// Warnings are ignored.
func ValidateRaw(doc []byte) error {
	v, err := compiledSchema()
	if err != nil {
		return err
	}
	diags, err := v.ValidateJSON(doc)
	if err != nil {
		return fmt.Errorf("run manifest schema: %w", err)
	}

	var errs ValidationErrors
	for _, d := range diags {
		if d.Severity != schema.SeverityError {
			continue
		}
		errs = append(errs, ValidationError{Path: d.Pointer, Message: d.Message})
	}
	if errs == nil {
		return nil
	}
	return errs
}
