package s3source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/tiger/reconfig-hazard-analyzer/internal/measurement"
)

type fakeObjectClient struct {
	pages   []*s3.ListObjectsV2Output
	objects map[string]string
	listErr error
	getErr  error
	listed  int
}

func (f *fakeObjectClient) ListObjectsV2(_ context.Context, _ *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.listed >= len(f.pages) {
		return &s3.ListObjectsV2Output{}, nil
	}
	page := f.pages[f.listed]
	f.listed++
	return page, nil
}

func (f *fakeObjectClient) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	body, ok := f.objects[*params.Key]
	if !ok {
		return nil, fakeAPIError{code: "NoSuchKey", msg: *params.Key}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

type fakeAPIError struct {
	code string
	msg  string
}

func (e fakeAPIError) Error() string        { return e.code + ": " + e.msg }
func (e fakeAPIError) ErrorCode() string    { return e.code }
func (e fakeAPIError) ErrorMessage() string { return e.msg }
func (e fakeAPIError) ErrorFault() smithy.ErrorFault {
	return smithy.FaultServer
}

var _ smithy.APIError = fakeAPIError{}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestDownloadFetchesSortedJSONObjects(t *testing.T) {
	t.Parallel()

	client := &fakeObjectClient{
		pages: []*s3.ListObjectsV2Output{
			{
				Contents: []s3types.Object{
					{Key: strPtr("results/eval_2023/Bellcanada_0.json")},
					{Key: strPtr("results/eval_2023/parsed.csv")},
				},
				IsTruncated:           boolPtr(true),
				NextContinuationToken: strPtr("page-2"),
			},
			{
				Contents: []s3types.Object{
					{Key: strPtr("results/eval_2023/Abilene_0.json")},
				},
				IsTruncated: boolPtr(false),
			},
		},
		objects: map[string]string{
			"results/eval_2023/Bellcanada_0.json": `{"topo": "Bellcanada"}`,
			"results/eval_2023/Abilene_0.json":    `{"topo": "Abilene"}`,
		},
	}
	source, err := NewSourceWithClient(Config{Bucket: "rha-results", Prefix: "results"}, client)
	if err != nil {
		t.Fatalf("NewSourceWithClient: %v", err)
	}

	destDir := t.TempDir()
	files, err := source.Download(context.Background(), "eval_2023", destDir)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	want := []string{
		filepath.Join(destDir, "Abilene_0.json"),
		filepath.Join(destDir, "Bellcanada_0.json"),
	}
	if len(files) != len(want) {
		t.Fatalf("files = %v, want %v", files, want)
	}
	for i, path := range want {
		if files[i] != path {
			t.Fatalf("files[%d] = %q, want %q", i, files[i], path)
		}
	}
	body, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if !strings.Contains(string(body), "Abilene") {
		t.Fatalf("downloaded body %q lost content", body)
	}
}

func TestDownloadFetchesConcurrently(t *testing.T) {
	t.Parallel()

	objects := map[string]string{}
	var contents []s3types.Object
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		key := "eval_2023/" + name + "_0.json"
		objects[key] = `{"topo": "` + name + `"}`
		contents = append(contents, s3types.Object{Key: strPtr(key)})
	}
	client := &fakeObjectClient{
		pages:   []*s3.ListObjectsV2Output{{Contents: contents}},
		objects: objects,
	}
	source, err := NewSourceWithClient(Config{Bucket: "rha-results", Concurrency: 3}, client)
	if err != nil {
		t.Fatalf("NewSourceWithClient: %v", err)
	}

	destDir := t.TempDir()
	files, err := source.Download(context.Background(), "eval_2023", destDir)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(files) != len(objects) {
		t.Fatalf("downloaded %d files, want %d", len(files), len(objects))
	}
	for _, local := range files {
		body, readErr := os.ReadFile(local)
		if readErr != nil {
			t.Fatalf("read %s: %v", local, readErr)
		}
		if !strings.Contains(string(body), `"topo"`) {
			t.Fatalf("file %s lost content: %q", local, body)
		}
	}
}

func TestDownloadClassifiesMissingBucket(t *testing.T) {
	t.Parallel()

	client := &fakeObjectClient{listErr: fakeAPIError{code: "NoSuchBucket", msg: "rha-results"}}
	source, err := NewSourceWithClient(Config{Bucket: "rha-results"}, client)
	if err != nil {
		t.Fatalf("NewSourceWithClient: %v", err)
	}

	_, err = source.Download(context.Background(), "eval_2023", t.TempDir())
	if !IsNotFound(err) {
		t.Fatalf("error %v not classified as not-found", err)
	}
	var srcErr *SourceError
	if !errors.As(err, &srcErr) || srcErr.Retryable() {
		t.Fatalf("not-found must not be retryable: %+v", srcErr)
	}
}

func TestDownloadClassifiesThrottling(t *testing.T) {
	t.Parallel()

	client := &fakeObjectClient{
		pages: []*s3.ListObjectsV2Output{
			{Contents: []s3types.Object{{Key: strPtr("eval_2023/Abilene_0.json")}}},
		},
		getErr: fakeAPIError{code: "SlowDown", msg: "reduce request rate"},
	}
	source, err := NewSourceWithClient(Config{Bucket: "rha-results"}, client)
	if err != nil {
		t.Fatalf("NewSourceWithClient: %v", err)
	}

	_, err = source.Download(context.Background(), "eval_2023", t.TempDir())
	var srcErr *SourceError
	if !errors.As(err, &srcErr) {
		t.Fatalf("error %v is not a SourceError", err)
	}
	if srcErr.Class != ErrorThrottled || !srcErr.Retryable() {
		t.Fatalf("throttling not classified retryable: %+v", srcErr)
	}
}

func TestDownloadEmptyMeasurementIsNotFound(t *testing.T) {
	t.Parallel()

	client := &fakeObjectClient{pages: []*s3.ListObjectsV2Output{{}}}
	source, err := NewSourceWithClient(Config{Bucket: "rha-results"}, client)
	if err != nil {
		t.Fatalf("NewSourceWithClient: %v", err)
	}

	_, err = source.Download(context.Background(), "eval_2023", t.TempDir())
	if !IsNotFound(err) {
		t.Fatalf("error %v not classified as not-found", err)
	}
	if !errors.Is(err, measurement.ErrNoMeasurementsFound) {
		t.Fatalf("error %v does not wrap ErrNoMeasurementsFound", err)
	}
}

func TestNewSourceRequiresBucket(t *testing.T) {
	t.Parallel()

	if _, err := NewSourceWithClient(Config{}, &fakeObjectClient{}); err == nil {
		t.Fatalf("expected missing bucket to fail")
	}
}
