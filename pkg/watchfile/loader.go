package watchfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the manifest at path. A .json extension selects JSON; every
// other name is read as YAML.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("watch manifest %s not found", path)
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("watch manifest %s: permission denied", path)
	case err != nil:
		return nil, fmt.Errorf("read watch manifest: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromReader is Load for an already open stream. path only picks the
// format and may be empty.
func LoadFromReader(r io.Reader, path string) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read watch manifest: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromBytes checks data against the schema, then decodes it, applies
// defaults and verifies every watch converts to monitor options.
func LoadFromBytes(data []byte, path string) (*Manifest, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, errors.New("manifest file is empty")
	}

	doc, err := normalize(data, isJSONPath(path))
	if err != nil {
		return nil, err
	}
	if err := ValidateRaw(doc); err != nil {
		return nil, err
	}

	m := new(Manifest)
	if err := json.Unmarshal(doc, m); err != nil {
		return nil, fmt.Errorf("decode watch manifest: %w", err)
	}
	if err := m.check(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manifest) check() error {
	if dups := m.DuplicateDevices(); len(dups) > 0 {
		return ValidationErrors{{Path: "/watches", Message: "duplicate devices: " + strings.Join(dups, ", ")}}
	}
	m.ApplyDefaults()

	var errs ValidationErrors
	for i, w := range m.Watches {
		if _, err := w.Options(); err != nil {
			errs = append(errs, ValidationError{Path: fmt.Sprintf("/watches/%d", i), Message: err.Error()})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func isJSONPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// normalize returns data as JSON for the schema validator.
func normalize(data []byte, asJSON bool) ([]byte, error) {
	var doc any
	if asJSON {
		if !json.Valid(data) {
			return nil, fmt.Errorf("invalid JSON in manifest: %w", json.Unmarshal(data, &doc))
		}
		return data, nil
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML in manifest: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert manifest YAML: %w", err)
	}
	return out, nil
}
