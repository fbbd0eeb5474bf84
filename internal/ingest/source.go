package ingest

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Source yields the raw gemstone CSV.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	String() string
}

// FileSource reads the dataset from a local path.
type FileSource struct {
	Path string
}

func (s FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open source %s", s.Path)
	}

	return f, nil
}

func (s FileSource) String() string {
	return s.Path
}
