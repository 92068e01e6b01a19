package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/3leaps/spoolwatch/pkg/eventlog"
	"github.com/3leaps/spoolwatch/pkg/history"
)

// ContentType is set on uploaded objects.
const ContentType = "application/x-ndjson"

// Source yields stored events newest first.
type Source interface {
	Query(ctx context.Context, f history.Filter) ([]history.Entry, error)
}

// ObjectPutter is the subset of the S3 client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Result describes a completed export.
type Result struct {
	Destination string        `json:"destination"`
	Records     int           `json:"records"`
	Bytes       int64         `json:"bytes"`
	Duration    time.Duration `json:"duration"`
}

// Exporter writes history queries to destinations.
type Exporter struct {
	source Source
	s3     ObjectPutter
	logger *zap.Logger
}

// NewExporter creates an exporter. putter may be nil when only file
// destinations are used.
func NewExporter(source Source, putter ObjectPutter, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{source: source, s3: putter, logger: logger}
}

// Export writes the events matching f to dest in chronological order.
func (x *Exporter) Export(ctx context.Context, f history.Filter, dest Destination) (Result, error) {
	start := time.Now()

	entries, err := x.source.Query(ctx, f)
	if err != nil {
		return Result{}, fmt.Errorf("query history: %w", err)
	}

	var buf bytes.Buffer
	if err := Encode(ctx, &buf, entries); err != nil {
		return Result{}, err
	}

	switch dest.Scheme {
	case SchemeS3:
		err = x.upload(ctx, dest, buf.Bytes())
	case SchemeFile:
		err = writeFileAtomic(dest.Path, buf.Bytes())
	default:
		err = &ConfigError{Field: "destination", Message: fmt.Sprintf("unsupported scheme %q", dest.Scheme)}
	}
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Destination: dest.String(),
		Records:     len(entries),
		Bytes:       int64(buf.Len()),
		Duration:    time.Since(start),
	}
	x.logger.Info("Exported history",
		zap.String("destination", res.Destination),
		zap.Int("records", res.Records),
		zap.Int64("bytes", res.Bytes),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// Encode writes entries, which are newest first, oldest first as JSONL.
func Encode(ctx context.Context, out io.Writer, entries []history.Entry) error {
	w := eventlog.NewWriter(out, "")
	for i := len(entries) - 1; i >= 0; i-- {
		if err := w.WriteRecord(ctx, entries[i].Record); err != nil {
			return err
		}
	}
	return nil
}

func (x *Exporter) upload(ctx context.Context, dest Destination, body []byte) error {
	if x.s3 == nil {
		return &ConfigError{Field: "s3", Message: "no s3 client configured"}
	}
	_, err := x.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(dest.Bucket),
		Key:           aws.String(dest.Key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(ContentType),
	})
	if err != nil {
		classified := classify(err)
		return &UploadError{Op: "PutObject", Bucket: dest.Bucket, Key: dest.Key, Err: classified, Cause: err}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	// #nosec G301 -- export directories use 0755 for multi-user access compatibility
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".export-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close export: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename export: %w", err)
	}
	return nil
}

// NewS3Client builds an S3 client from cfg.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	awsCfg.Region = resolveRegion(cfg.Endpoint, awsCfg.Region)

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// resolveRegion defaults AWS S3 to us-east-1. Custom endpoints get no
// default.
func resolveRegion(endpoint, sdkRegion string) string {
	if sdkRegion != "" {
		return sdkRegion
	}
	if endpoint == "" {
		return DefaultAWSRegion
	}
	return ""
}
