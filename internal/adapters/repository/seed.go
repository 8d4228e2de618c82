package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/calboard/internal/domain/calendar"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout of a fixture file:
//
//	events:
//	  - owner_id: alice
//	    title: Standup
//	    start_time: 2024-01-15T09:00
//	    duration: 15
type SeedFile struct {
	Events []calendar.RawEvent `yaml:"events"`
}

// ParseSeed decodes a seed document.
func ParseSeed(r io.Reader) ([]calendar.RawEvent, error) {
	var f SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	return f.Events, nil
}

// LoadSeedFile reads and decodes the seed file at path.
func LoadSeedFile(path string) ([]calendar.RawEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return ParseSeed(f)
}

// Seed normalizes raws in loc and creates each valid event in s. It returns
// the number stored and one error per rejected record.
func Seed(ctx context.Context, s Store, raws []calendar.RawEvent, loc *time.Location) (int, []error) {
	events, errs := calendar.NormalizeAll(raws, loc)
	stored := 0
	for _, e := range events {
		if _, err := s.Create(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("seed %q: %w", e.Title, err))
			continue
		}
		stored++
	}
	return stored, errs
}
