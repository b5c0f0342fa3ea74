package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/okian/evalboard/internal/domain/evalerr"
)

// GCS stores blobs as objects of one bucket. The version token is the
// object generation.
type GCS struct {
	client *storage.Client
	bucket string
	owned  bool
}

// NewGCS opens a client for bucket. An empty credentialsFile uses the
// application default credentials.
func NewGCS(ctx context.Context, bucket, credentialsFile string) (*GCS, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, owned: true}, nil
}

// NewGCSWithClient wraps an existing client. Close leaves it open.
func NewGCSWithClient(client *storage.Client, bucket string) *GCS {
	return &GCS{client: client, bucket: bucket}
}

// Get implements Store.
func (g *GCS) Get(ctx context.Context, key string) (Blob, error) {
	const op = "blobstore.gcs.get"

	r, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return Blob{}, evalerr.WrapOp(op, gcsError(err))
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return Blob{}, evalerr.WrapOp(op, gcsError(err))
	}
	return Blob{Data: data, Version: strconv.FormatInt(r.Attrs.Generation, 10)}, nil
}

// Put implements Store.
func (g *GCS) Put(ctx context.Context, key string, data []byte, expected string) (string, error) {
	const op = "blobstore.gcs.put"

	cond := storage.Conditions{DoesNotExist: true}
	if expected != "" {
		gen, err := strconv.ParseInt(expected, 10, 64)
		if err != nil {
			return "", evalerr.Newf(op, evalerr.ErrVersionConflict, "malformed generation %q", expected)
		}
		cond = storage.Conditions{GenerationMatch: gen}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).If(cond).NewWriter(ctx)
	w.ContentType = "text/csv"
	if _, err := w.Write(data); err != nil {
		cancel()
		_ = w.Close()
		return "", evalerr.WrapOp(op, gcsError(err))
	}
	if err := w.Close(); err != nil {
		return "", evalerr.WrapOp(op, gcsError(err))
	}
	return strconv.FormatInt(w.Attrs().Generation, 10), nil
}

// Close releases the client when this store created it.
func (g *GCS) Close() error {
	if !g.owned {
		return nil
	}
	return g.client.Close()
}

func gcsError(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return evalerr.Wrap("gcs", evalerr.ErrNotFound, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return evalerr.Wrap("gcs", evalerr.ErrTransient, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch code := gerr.Code; {
		case code == http.StatusPreconditionFailed, code == http.StatusConflict:
			return evalerr.Wrap("gcs", evalerr.ErrVersionConflict, err)
		case code == http.StatusNotFound:
			return evalerr.Wrap("gcs", evalerr.ErrNotFound, err)
		case code == http.StatusUnauthorized, code == http.StatusForbidden:
			return evalerr.Wrap("gcs", evalerr.ErrAuth, err)
		case code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
			return evalerr.Wrap("gcs", evalerr.ErrTransient, err)
		}
		return err
	}
	// Anything else is a transport failure.
	return evalerr.Wrap("gcs", evalerr.ErrTransient, err)
}

var _ Store = (*GCS)(nil)
