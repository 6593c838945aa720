package endpoints

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"
)

const gcsScheme = "gs://"

// maxDocumentBytes bounds the configuration document size.
const maxDocumentBytes = 4 << 20

// ReadDocument returns the configuration document at location. Locations
// of the form gs://bucket/object are downloaded from Cloud Storage using
// opts; anything else is read from the local file system.
func ReadDocument(ctx context.Context, location string, opts ...option.ClientOption) ([]byte, error) {
	if !strings.HasPrefix(location, gcsScheme) {
		data, err := os.ReadFile(location)
		if err != nil {
			return nil, fmt.Errorf("read endpoint document: %w", err)
		}
		return data, nil
	}

	bucket, object, err := splitGCSLocation(location)
	if err != nil {
		return nil, err
	}

	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	resp, err := svc.Objects.Get(bucket, object).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", location, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	return data, nil
}

// GCSLocation returns the gs:// location of object in bucket.
func GCSLocation(bucket, object string) string {
	return gcsScheme + bucket + "/" + object
}

func splitGCSLocation(location string) (bucket, object string, err error) {
	rest := strings.TrimPrefix(location, gcsScheme)
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("invalid storage location %q: want gs://bucket/object", location)
	}
	return bucket, object, nil
}
