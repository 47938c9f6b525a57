// Package integrations defines the out-of-band sources of travel-time
// reference data. Sources only read; completing and storing rows is the
// importer's job.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"slotbook/internal/model"
)

// TravelTimeSource yields raw directed travel-time rows.
type TravelTimeSource interface {
	Name() string
	Fetch(ctx context.Context) ([]model.TravelTime, error)
}

var ErrUnknownFormat = errors.New("unknown travel time source format")

// Factory builds a source reading path.
type Factory func(path string) TravelTimeSource

var registry = map[string]Factory{}

// Register binds file extensions (without dot) to a source factory.
func Register(f Factory, exts ...string) {
	for _, e := range exts {
		registry[strings.ToLower(e)] = f
	}
}

// Open picks a registered source by the file extension of path.
func Open(path string) (TravelTimeSource, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	f, ok := registry[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, path)
	}
	return f(path), nil
}
