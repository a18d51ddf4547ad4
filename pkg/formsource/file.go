package formsource

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func loadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, errors.New("formsource: file path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("formsource: read %s: %w", path, err)
	}
	return data, nil
}
