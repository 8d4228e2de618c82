package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/calboard/internal/adapters/ics"
	"github.com/okian/calboard/internal/adapters/repository"
	"github.com/okian/calboard/internal/domain/calendar"
	"github.com/okian/calboard/internal/domain/model"
	"github.com/okian/calboard/pkg/logger"
)

// localOwner owns events read from an ICS file, which names no owner.
const localOwner = "me"

// loadEvents reads path as an ICS document when it ends in .ics and as a
// YAML seed otherwise. Seed events without an ID get their position as one.
func loadEvents(ctx context.Context, path string, loc *time.Location, now time.Time) ([]model.Event, error) {
	log := logger.Get().Named("calctl")

	if strings.EqualFold(filepath.Ext(path), ".ics") {
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		im := ics.NewImporter(ics.WithLocation(loc), ics.WithClock(func() time.Time { return now }))
		res, err := im.Import(ctx, body, ics.Target{OwnerID: localOwner})
		if err != nil {
			return nil, err
		}
		for _, skipped := range res.Skipped {
			log.Warn(ctx, "vevent skipped", logger.Error(skipped))
		}
		return res.Events, nil
	}

	raws, err := repository.LoadSeedFile(path)
	if err != nil {
		return nil, err
	}
	events, errs := calendar.NormalizeAll(raws, loc)
	for _, err := range errs {
		log.Warn(ctx, "event skipped", logger.Error(err))
	}
	for i := range events {
		if events[i].ID == "" {
			events[i].ID = fmt.Sprintf("%d", i+1)
		}
	}
	return events, nil
}
