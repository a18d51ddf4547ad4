package formsource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

func loadFromFS(ctx context.Context, fsys fs.FS, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fsys == nil {
		return nil, errors.New("formsource: file system is not configured")
	}
	if name == "" {
		return nil, errors.New("formsource: fs path is required")
	}
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("formsource: read %s: %w", name, err)
	}
	return data, nil
}
