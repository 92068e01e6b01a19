package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/spoolwatch/pkg/detect"
	"github.com/3leaps/spoolwatch/pkg/eventlog"
	"github.com/3leaps/spoolwatch/pkg/history"
)

type mockAPIError struct {
	code string
}

func (e *mockAPIError) Error() string                 { return e.code + ": mock" }
func (e *mockAPIError) ErrorCode() string             { return e.code }
func (e *mockAPIError) ErrorMessage() string          { return "mock" }
func (e *mockAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

type staticSource struct {
	entries []history.Entry
	err     error
	got     history.Filter
}

func (s *staticSource) Query(_ context.Context, f history.Filter) ([]history.Entry, error) {
	s.got = f
	return s.entries, s.err
}

type mockPutter struct {
	bucket, key, contentType string
	body                     []byte
	err                      error
}

func (m *mockPutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.bucket = aws.ToString(in.Bucket)
	m.key = aws.ToString(in.Key)
	m.contentType = aws.ToString(in.ContentType)
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.body = body
	return &s3.PutObjectOutput{}, nil
}

func entries(t *testing.T) []history.Entry {
	t.Helper()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var out []history.Entry
	// newest first, as history.Query returns them
	for i := 3; i >= 1; i-- {
		e := detect.Event{Kind: detect.KindJobAdded, Device: "Office", JobID: i, Timestamp: at.Add(time.Duration(i) * time.Second)}
		rec, err := eventlog.NewRecord("sess", e)
		require.NoError(t, err)
		out = append(out, history.Entry{ID: int64(i), Kind: e.Kind, JobID: i, Record: rec})
	}
	return out
}

func countRecords(t *testing.T, r io.Reader) int {
	t.Helper()
	n := 0
	require.NoError(t, eventlog.Read(r, func(rec eventlog.Record) error {
		kind, ok := eventlog.KindFor(rec.Type)
		require.True(t, ok)
		assert.Equal(t, detect.KindJobAdded, kind)
		n++
		return nil
	}))
	return n
}

func TestParseDestination(t *testing.T) {
	tests := []struct {
		raw     string
		want    Destination
		wantErr bool
	}{
		{raw: "out/events.jsonl", want: Destination{Scheme: SchemeFile, Path: "out/events.jsonl"}},
		{raw: "file:///tmp/e.jsonl", want: Destination{Scheme: SchemeFile, Path: "/tmp/e.jsonl"}},
		{raw: "s3://bucket/exports/day.jsonl", want: Destination{Scheme: SchemeS3, Bucket: "bucket", Key: "exports/day.jsonl"}},
		{raw: "s3://bucket/exports/", want: Destination{Scheme: SchemeS3, Bucket: "bucket", Key: "exports/events.jsonl"}},
		{raw: "s3://bucket", want: Destination{Scheme: SchemeS3, Bucket: "bucket", Key: "events.jsonl"}},
		{raw: "", wantErr: true},
		{raw: "s3:///key", wantErr: true},
		{raw: "gs://bucket/key", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseDestination(tt.raw)
			if tt.wantErr {
				var cfgErr *ConfigError
				assert.ErrorAs(t, err, &cfgErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestS3Config_Validate(t *testing.T) {
	assert.NoError(t, S3Config{}.Validate())
	assert.NoError(t, S3Config{AccessKeyID: "a", SecretAccessKey: "b"}.Validate())
	assert.Error(t, S3Config{AccessKeyID: "a"}.Validate())
	assert.Error(t, S3Config{SecretAccessKey: "b"}.Validate())
}

func TestResolveRegion(t *testing.T) {
	assert.Equal(t, "eu-west-1", resolveRegion("", "eu-west-1"))
	assert.Equal(t, DefaultAWSRegion, resolveRegion("", ""))
	assert.Equal(t, "", resolveRegion("http://localhost:9000", ""))
}

func TestExport_FileChronological(t *testing.T) {
	src := &staticSource{entries: entries(t)}
	x := NewExporter(src, nil, nil)
	path := filepath.Join(t.TempDir(), "nested", "events.jsonl")

	res, err := x.Export(context.Background(), history.Filter{Device: "Office"}, Destination{Scheme: SchemeFile, Path: path})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Records)
	assert.Equal(t, "Office", src.got.Device)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, res.Bytes, int64(len(data)))

	var got []int
	require.NoError(t, eventlog.Read(bytes.NewReader(data), func(rec eventlog.Record) error {
		var jd eventlog.JobData
		require.NoError(t, json.Unmarshal(rec.Data, &jd))
		got = append(got, jd.JobID)
		return nil
	}))
	assert.Equal(t, []int{1, 2, 3}, got)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".export-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestExport_S3(t *testing.T) {
	putter := &mockPutter{}
	x := NewExporter(&staticSource{entries: entries(t)}, putter, nil)

	res, err := x.Export(context.Background(), history.Filter{}, Destination{Scheme: SchemeS3, Bucket: "b", Key: "k.jsonl"})
	require.NoError(t, err)
	assert.Equal(t, "s3://b/k.jsonl", res.Destination)
	assert.Equal(t, "b", putter.bucket)
	assert.Equal(t, "k.jsonl", putter.key)
	assert.Equal(t, ContentType, putter.contentType)
	assert.Equal(t, 3, countRecords(t, bytes.NewReader(putter.body)))
}

func TestExport_S3ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{err: &types.NoSuchBucket{}, want: ErrBucketNotFound},
		{err: &mockAPIError{code: "AccessDenied"}, want: ErrAccessDenied},
		{err: &mockAPIError{code: "SignatureDoesNotMatch"}, want: ErrInvalidCredentials},
		{err: &mockAPIError{code: "SlowDown"}, want: ErrThrottled},
		{err: &mockAPIError{code: "InternalError"}, want: ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%T/%v", tt.err, tt.want), func(t *testing.T) {
			x := NewExporter(&staticSource{}, &mockPutter{err: tt.err}, nil)
			_, err := x.Export(context.Background(), history.Filter{}, Destination{Scheme: SchemeS3, Bucket: "b", Key: "k"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var upErr *UploadError
			require.ErrorAs(t, err, &upErr)
			assert.Equal(t, "PutObject", upErr.Op)
			assert.Contains(t, upErr.Error(), "s3://b/k")
		})
	}

	plain := errors.New("connection reset")
	x := NewExporter(&staticSource{}, &mockPutter{err: plain}, nil)
	_, err := x.Export(context.Background(), history.Filter{}, Destination{Scheme: SchemeS3, Bucket: "b", Key: "k"})
	assert.ErrorIs(t, err, plain)
}

func TestExport_Failures(t *testing.T) {
	boom := errors.New("db locked")
	x := NewExporter(&staticSource{err: boom}, nil, nil)
	_, err := x.Export(context.Background(), history.Filter{}, Destination{Scheme: SchemeFile, Path: filepath.Join(t.TempDir(), "x")})
	assert.ErrorIs(t, err, boom)

	x = NewExporter(&staticSource{}, nil, nil)
	_, err = x.Export(context.Background(), history.Filter{}, Destination{Scheme: SchemeS3, Bucket: "b", Key: "k"})
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
