package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/okian/calboard/internal/adapters/repository"
	"github.com/okian/calboard/internal/domain/calendar"
	"github.com/okian/calboard/internal/domain/model"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var generatedTitles = map[model.EventType][]string{
	model.TypeMeeting:  {"Standup", "Planning", "Retro", "1:1"},
	model.TypeReview:   {"Design review", "Code review", "Quarterly review"},
	model.TypeDeadline: {"Release cut", "Report due"},
	model.TypeCall:     {"Customer call", "Vendor call"},
	model.TypeTask:     {"Focus time", "Inbox zero"},
	model.TypeOther:    {"Lunch", "Offsite"},
}

var generatedTypes = []model.EventType{
	model.TypeMeeting, model.TypeReview, model.TypeDeadline,
	model.TypeCall, model.TypeTask, model.TypeOther,
}

// Generated starts fall on quarter hours from 07:00 to 19:45.
const (
	firstSlot = 7 * 4
	slotCount = 13 * 4
)

func generateCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Write a YAML seed file of random events.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Value: 50},
			&cli.StringSliceFlag{Name: "owner", Value: cli.NewStringSlice("alice", "bob")},
			&cli.StringSliceFlag{Name: "project", Usage: "project ids; events without one are unassigned"},
			&cli.StringFlag{Name: "from", Required: true, Usage: "first date YYYY-MM-DD"},
			&cli.IntFlag{Name: "days", Value: 14},
			&cli.Uint64Flag{Name: "seed", Usage: "random seed (default random)"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "file to write (default stdout)"},
		},
		Action: func(c *cli.Context) error {
			from, err := model.ParseDate(c.String("from"))
			if err != nil {
				return fmt.Errorf("invalid --from %q: %w", c.String("from"), err)
			}
			if c.Int("count") < 0 || c.Int("days") <= 0 || len(c.StringSlice("owner")) == 0 {
				return fmt.Errorf("count, days and owner must be positive")
			}
			seed := c.Uint64("seed")
			if !c.IsSet("seed") {
				seed = rand.Uint64()
			}

			raws := generateEvents(rand.New(rand.NewPCG(seed, seed)), c.Int("count"),
				c.StringSlice("owner"), c.StringSlice("project"), from, c.Int("days"))

			out := c.App.Writer
			if path := c.String("output"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				out = f
			}
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(repository.SeedFile{Events: raws}); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

// generateEvents draws count events spread over days starting at from. The
// same rng state always yields the same events apart from their IDs.
func generateEvents(rng *rand.Rand, count int, owners, projects []string, from model.Date, days int) []calendar.RawEvent {
	raws := make([]calendar.RawEvent, 0, count)
	for i := 0; i < count; i++ {
		typ := generatedTypes[rng.IntN(len(generatedTypes))]
		titles := generatedTitles[typ]
		date := from.AddDays(rng.IntN(days))
		slot := firstSlot + rng.IntN(slotCount)

		minutes := 15 * (1 + rng.IntN(8))
		if typ == model.TypeDeadline {
			minutes = 0
		}

		raw := calendar.RawEvent{
			ID:        uuid.NewString(),
			OwnerID:   owners[rng.IntN(len(owners))],
			Title:     titles[rng.IntN(len(titles))],
			StartTime: fmt.Sprintf("%sT%02d:%02d", date, slot/4, slot%4*15),
			Duration:  model.RawDuration(strconv.Itoa(minutes)),
			Type:      string(typ),
		}
		// One in four events stays unassigned.
		if len(projects) > 0 && rng.IntN(4) > 0 {
			p := projects[rng.IntN(len(projects))]
			raw.ProjectID = p
			raw.ProjectName = strings.ToUpper(p)
		}
		raws = append(raws, raw)
	}
	return raws
}
