// Package csvfile reads travel times from a CSV file with the header
// from,to,minutes. Blank lines and lines starting with # are skipped.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"slotbook/internal/integrations"
	"slotbook/internal/model"
)

func init() {
	integrations.Register(func(path string) integrations.TravelTimeSource { return Source{Path: path} }, "csv")
}

type Source struct {
	Path string
}

func (s Source) Name() string { return "csv:" + s.Path }

func (s Source) Fetch(ctx context.Context) ([]model.TravelTime, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("csv source: %w", err)
	}
	defer f.Close()
	return Parse(ctx, f)
}

// Parse decodes rows from r. Columns are located by header name.
func Parse(ctx context.Context, r io.Reader) ([]model.TravelTime, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("csv source: header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	cols := [3]int{}
	for i, name := range []string{"from", "to", "minutes"} {
		c, ok := idx[name]
		if !ok {
			return nil, fmt.Errorf("csv source: header lacks %q column", name)
		}
		cols[i] = c
	}

	var out []model.TravelTime
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv source: %w", err)
		}
		if len(rec) <= cols[0] || len(rec) <= cols[1] || len(rec) <= cols[2] {
			return nil, fmt.Errorf("csv source: line %d: too few fields", line)
		}
		minutes, err := strconv.Atoi(strings.TrimSpace(rec[cols[2]]))
		if err != nil {
			return nil, fmt.Errorf("csv source: line %d: minutes: %w", line, err)
		}
		out = append(out, model.TravelTime{
			FromZone: strings.TrimSpace(rec[cols[0]]),
			ToZone:   strings.TrimSpace(rec[cols[1]]),
			Minutes:  minutes,
		})
	}
	return out, nil
}
