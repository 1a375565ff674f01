package publish

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"media-animator/internal/domain"
)

// fakeClient records uploads and optionally fails them.
type fakeClient struct {
	put    func(in *s3.PutObjectInput) error
	inputs []*s3.PutObjectInput
	bodies []string
}

func (c *fakeClient) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	c.inputs = append(c.inputs, in)
	c.bodies = append(c.bodies, string(body))
	if c.put != nil {
		if err := c.put(in); err != nil {
			return nil, err
		}
	}
	return &s3.PutObjectOutput{}, nil
}

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func writeArtifact(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestPublishUploadsUnderSluggedPrefix(t *testing.T) {
	client := &fakeClient{}
	p := newS3Publisher(client, domain.PublishSettings{Bucket: "clips", Prefix: "Summer Trip 2024"}, quietLogger())
	path := writeArtifact(t, "beach_1.webp", "RIFFdata")

	location, err := p.Publish(context.Background(), path)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if location != "s3://clips/summer-trip-2024/beach_1.webp" {
		t.Fatalf("location = %q, want %q", location, "s3://clips/summer-trip-2024/beach_1.webp")
	}
	if len(client.inputs) != 1 {
		t.Fatalf("uploads = %d, want 1", len(client.inputs))
	}
	in := client.inputs[0]
	if aws.ToString(in.Bucket) != "clips" {
		t.Fatalf("bucket = %q, want clips", aws.ToString(in.Bucket))
	}
	if aws.ToString(in.ContentType) != "image/webp" {
		t.Fatalf("content type = %q, want image/webp", aws.ToString(in.ContentType))
	}
	if aws.ToInt64(in.ContentLength) != int64(len("RIFFdata")) {
		t.Fatalf("content length = %d, want %d", aws.ToInt64(in.ContentLength), len("RIFFdata"))
	}
	if client.bodies[0] != "RIFFdata" {
		t.Fatalf("body = %q, want RIFFdata", client.bodies[0])
	}
}

func TestKeyWithoutPrefix(t *testing.T) {
	p := newS3Publisher(&fakeClient{}, domain.PublishSettings{Bucket: "clips"}, quietLogger())
	if got := p.Key("/tmp/out/clip.webp"); got != "clip.webp" {
		t.Fatalf("key = %q, want clip.webp", got)
	}
}

func TestPublishReportsUploadFailure(t *testing.T) {
	boom := errors.New("access denied")
	client := &fakeClient{put: func(*s3.PutObjectInput) error { return boom }}
	p := newS3Publisher(client, domain.PublishSettings{Bucket: "clips", Prefix: "x"}, quietLogger())

	_, err := p.Publish(context.Background(), writeArtifact(t, "a.webp", "RIFF"))
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if !strings.Contains(err.Error(), "s3://clips/x/a.webp") {
		t.Fatalf("error = %q, want object location", err.Error())
	}
}

func TestPublishMissingArtifact(t *testing.T) {
	client := &fakeClient{}
	p := newS3Publisher(client, domain.PublishSettings{Bucket: "clips"}, quietLogger())

	if _, err := p.Publish(context.Background(), filepath.Join(t.TempDir(), "gone.webp")); err == nil {
		t.Fatal("expected error for missing artifact")
	}
	if len(client.inputs) != 0 {
		t.Fatalf("uploads = %d, want 0", len(client.inputs))
	}
}

func TestNewS3PublisherRequiresBucket(t *testing.T) {
	if _, err := NewS3Publisher(context.Background(), domain.PublishSettings{}, quietLogger()); err == nil {
		t.Fatal("expected error without bucket")
	}
}
