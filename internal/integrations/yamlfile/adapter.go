// Package yamlfile reads travel times from a YAML document:
//
//	travelTimes:
//	  - {from: Deurne, to: Merksem, minutes: 10}
package yamlfile

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"slotbook/internal/integrations"
	"slotbook/internal/model"
)

func init() {
	integrations.Register(func(path string) integrations.TravelTimeSource { return Source{Path: path} }, "yaml", "yml")
}

type Source struct {
	Path string
}

type document struct {
	TravelTimes []model.TravelTime `yaml:"travelTimes"`
}

func (s Source) Name() string { return "yaml:" + s.Path }

func (s Source) Fetch(ctx context.Context) ([]model.TravelTime, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("yaml source: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) ([]model.TravelTime, error) {
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("yaml source: %w", err)
	}
	return doc.TravelTimes, nil
}
