package fixture

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// State is the YAML form of a scripted spooler.
//
//	devices:
//	  - name: Office
//	    full_name: "Office,HP Universal,Front desk"
//	    status: 0
//	    attributes: 68
//	    jobs:
//	      - id: 3
//	        document: report.pdf
//	        total_pages: 4
//	        submitted: 2024-01-15T10:00:00Z
type State struct {
	Devices []Device `yaml:"devices" json:"devices"`
}

// Device is one scripted device.
type Device struct {
	Name        string `yaml:"name" json:"name"`
	FullName    string `yaml:"full_name,omitempty" json:"full_name,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Status      uint32 `yaml:"status,omitempty" json:"status,omitempty"`
	Attributes  uint32 `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Server      string `yaml:"server,omitempty" json:"server,omitempty"`
	Share       string `yaml:"share,omitempty" json:"share,omitempty"`
	Port        string `yaml:"port,omitempty" json:"port,omitempty"`
	Driver      string `yaml:"driver,omitempty" json:"driver,omitempty"`
	Location    string `yaml:"location,omitempty" json:"location,omitempty"`
	Comment     string `yaml:"comment,omitempty" json:"comment,omitempty"`

	// ReadOnly rejects control commands with ErrAccessDenied.
	ReadOnly bool  `yaml:"read_only,omitempty" json:"read_only,omitempty"`
	Jobs     []Job `yaml:"jobs,omitempty" json:"jobs,omitempty"`

	lastID int
}

// Job is one scripted job.
type Job struct {
	ID           int        `yaml:"id" json:"id"`
	Document     string     `yaml:"document,omitempty" json:"document,omitempty"`
	Status       uint32     `yaml:"status,omitempty" json:"status,omitempty"`
	PagesPrinted int        `yaml:"pages_printed,omitempty" json:"pages_printed,omitempty"`
	TotalPages   int        `yaml:"total_pages,omitempty" json:"total_pages,omitempty"`
	Submitted    *time.Time `yaml:"submitted,omitempty" json:"submitted,omitempty"`
	User         string     `yaml:"user,omitempty" json:"user,omitempty"`
	Machine      string     `yaml:"machine,omitempty" json:"machine,omitempty"`
	DataType     string     `yaml:"datatype,omitempty" json:"datatype,omitempty"`
	Priority     int        `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// LoadFile reads a State from a YAML file.
func LoadFile(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("fixture file not found: %s", path)
		}
		return nil, fmt.Errorf("read fixture file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML State and checks device names and job ids.
func Parse(data []byte) (*State, error) {
	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("invalid fixture YAML: %w", err)
	}

	seen := make(map[string]bool, len(st.Devices))
	for i, d := range st.Devices {
		if d.Name == "" {
			return nil, fmt.Errorf("devices[%d]: name is required", i)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("devices[%d]: duplicate device %q", i, d.Name)
		}
		seen[d.Name] = true

		ids := make(map[int]bool, len(d.Jobs))
		for j, job := range d.Jobs {
			if job.ID <= 0 {
				return nil, fmt.Errorf("devices[%d].jobs[%d]: id must be positive", i, j)
			}
			if ids[job.ID] {
				return nil, fmt.Errorf("devices[%d].jobs[%d]: duplicate job id %d", i, j, job.ID)
			}
			ids[job.ID] = true
		}
	}
	return &st, nil
}
