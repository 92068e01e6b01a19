package archive

import (
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

var (
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrAccessDenied       = errors.New("access denied")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrThrottled          = errors.New("request throttled")
	ErrUnavailable        = errors.New("storage unavailable")
)

// UploadError wraps a failed upload with its target.
type UploadError struct {
	Op     string
	Bucket string
	Key    string
	Err    error

	// Cause is the SDK error Err was classified from, if any.
	Cause error
}

func (e *UploadError) Error() string {
	var b strings.Builder
	b.WriteString("archive: ")
	b.WriteString(e.Op)
	if e.Bucket != "" {
		b.WriteString(" s3://")
		b.WriteString(e.Bucket)
		b.WriteString("/")
		b.WriteString(e.Key)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if e.Cause != nil && e.Cause != e.Err {
		b.WriteString(" (")
		b.WriteString(e.Cause.Error())
		b.WriteString(")")
	}
	return b.String()
}

func (e *UploadError) Unwrap() error { return e.Err }

// classify maps S3 SDK errors onto archive sentinels. Unknown errors are
// returned unchanged.
func classify(err error) error {
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return ErrBucketNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			return ErrBucketNotFound
		case "AccessDenied", "Forbidden":
			return ErrAccessDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return ErrInvalidCredentials
		case "SlowDown", "Throttling", "RequestLimitExceeded":
			return ErrThrottled
		case "ServiceUnavailable", "InternalError":
			return ErrUnavailable
		}
	}
	return err
}
