package driven

import "context"

// ObjectStore defines the driven port for blob storage.
type ObjectStore interface {
	// Upload writes data at path and returns the stored path.
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)

	// PublicURL returns the URL clients can fetch path from, or "" when the
	// bucket is not publicly served.
	PublicURL(path string) string
}
