package fetch

import (
	"context"
	"czmlstream/internal/logger"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FileFetcher reads segment sources from a directory on an afero filesystem.
type FileFetcher struct {
	fs     afero.Fs
	logger logger.Logger
}

// NewFileFetcher serves sources from dir on fs. dir must be absolute for
// filesystems that are not rooted, such as the OS filesystem.
func NewFileFetcher(log logger.Logger, fs afero.Fs, dir string) *FileFetcher {
	if dir != "" {
		fs = afero.NewBasePathFs(fs, dir)
	}
	return &FileFetcher{fs: fs, logger: log}
}

// NewOsFileFetcher serves sources from dir on the local disk.
func NewOsFileFetcher(log logger.Logger, dir string) (*FileFetcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory '%s': %w", dir, err)
	}
	return NewFileFetcher(log, afero.NewOsFs(), abs), nil
}

// Fetch reads source relative to the fetcher's directory. Sources with ".."
// elements are rejected.
func (f *FileFetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slashed := filepath.ToSlash(source)
	for _, elem := range strings.Split(slashed, "/") {
		if elem == ".." {
			return nil, fmt.Errorf("source '%s' escapes the data directory", source)
		}
	}

	data, err := afero.ReadFile(f.fs, path.Clean("/"+slashed))
	if err != nil {
		return nil, fmt.Errorf("failed to read source '%s': %w", source, err)
	}
	f.logger.Debugf("Read %s, %d bytes", source, len(data))
	return data, nil
}
