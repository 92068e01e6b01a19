// Package archive exports stored lifecycle events as JSONL to a local file
// or an S3 (or S3-compatible) object.
package archive

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// S3Config configures the S3 client used for s3:// destinations.
//
// Credentials follow the AWS SDK v2 default chain unless AccessKeyID and
// SecretAccessKey are both set.
type S3Config struct {
	// Region is the AWS region. Empty defers to env/profile, then us-east-1
	// when no Endpoint is set.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible stores.
	Endpoint string

	// Profile is a shared config profile name.
	Profile string

	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle puts the bucket in the path. Most S3-compatible stores
	// need it.
	ForcePathStyle bool
}

// DefaultAWSRegion is used for AWS S3 when nothing else resolves a region.
const DefaultAWSRegion = "us-east-1"

// Validate checks credential pairing.
func (c S3Config) Validate() error {
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	return nil
}

// ConfigError is an invalid archive configuration or destination.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "archive config: " + e.Field + ": " + e.Message
}

// Scheme of a destination.
type Scheme string

const (
	SchemeFile Scheme = "file"
	SchemeS3   Scheme = "s3"
)

// Destination is a parsed export target.
type Destination struct {
	Scheme Scheme

	// Path is set for file destinations.
	Path string

	// Bucket and Key are set for s3 destinations.
	Bucket string
	Key    string
}

// String renders d in the form accepted by ParseDestination.
func (d Destination) String() string {
	if d.Scheme == SchemeS3 {
		return "s3://" + d.Bucket + "/" + d.Key
	}
	return d.Path
}

// ParseDestination accepts a local path, a file:// URL, or s3://bucket/key.
// An s3 key ending in "/" gets a default object name appended.
func ParseDestination(raw string) (Destination, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Destination{}, &ConfigError{Field: "destination", Message: "destination is required"}
	}

	switch {
	case strings.HasPrefix(raw, "s3://"):
		u, err := url.Parse(raw)
		if err != nil {
			return Destination{}, &ConfigError{Field: "destination", Message: err.Error()}
		}
		if u.Host == "" {
			return Destination{}, &ConfigError{Field: "destination", Message: "s3 destination requires a bucket"}
		}
		key := strings.TrimPrefix(u.Path, "/")
		if key == "" || strings.HasSuffix(key, "/") {
			key = path.Join(key, DefaultObjectName)
		}
		return Destination{Scheme: SchemeS3, Bucket: u.Host, Key: key}, nil

	case strings.HasPrefix(raw, "file://"):
		p := strings.TrimPrefix(raw, "file://")
		if p == "" {
			return Destination{}, &ConfigError{Field: "destination", Message: "file destination requires a path"}
		}
		return Destination{Scheme: SchemeFile, Path: p}, nil

	case strings.Contains(raw, "://"):
		return Destination{}, &ConfigError{Field: "destination", Message: fmt.Sprintf("unsupported scheme in %q", raw)}
	}

	return Destination{Scheme: SchemeFile, Path: raw}, nil
}

// DefaultObjectName is appended to s3 prefixes.
const DefaultObjectName = "events.jsonl"
