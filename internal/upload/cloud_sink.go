package upload

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"

	"github.com/google/uuid"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
)

// CloudBucketSink uploads to a Google Cloud Storage bucket, the optional
// fourth tier SPEC_FULL.md adds beyond spec §4.7's three-tier chain —
// disabled unless the operator configures a bucket name.
type CloudBucketSink struct {
	client     *storage.Client
	bucketName string
	publicBase string // e.g. "https://storage.googleapis.com/{bucket}"
}

// NewCloudBucketSink creates a CloudBucketSink. client is expected to be
// pre-authenticated via Application Default Credentials.
func NewCloudBucketSink(client *storage.Client, bucketName, publicBase string) *CloudBucketSink {
	return &CloudBucketSink{client: client, bucketName: bucketName, publicBase: publicBase}
}

func (s *CloudBucketSink) Name() string { return "cloud-bucket" }

// Upload writes image as a new object under a random key, returning its
// public URL. The bucket is expected to already be configured for public
// read access; this sink does not alter object ACLs.
func (s *CloudBucketSink) Upload(ctx context.Context, image []byte, meta Meta) (string, string, error) {
	if s.bucketName == "" {
		return "", "", apperr.New(apperr.Configuration, "cloud bucket sink has no bucket configured")
	}

	objectName := uuid.NewString() + ".png"
	obj := s.client.Bucket(s.bucketName).Object(objectName)
	writer := obj.NewWriter(ctx)
	writer.ContentType = "image/png"

	if _, err := writer.Write(image); err != nil {
		_ = writer.Close()
		return "", "", apperr.Wrap(apperr.Upstream, "write cloud bucket object", err)
	}
	if err := writer.Close(); err != nil {
		return "", "", apperr.Wrap(apperr.Upstream, "finalize cloud bucket object", err)
	}

	url := fmt.Sprintf("%s/%s", s.publicBase, objectName)
	return url, objectName, nil
}
