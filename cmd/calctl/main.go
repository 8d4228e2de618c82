// Command calctl renders calendars from local files and talks to a running
// calboard server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/okian/calboard/internal/domain/calendar"
	"github.com/okian/calboard/internal/domain/model"
	"github.com/okian/calboard/pkg/logger"
	"github.com/urfave/cli/v2"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	if err := logger.Init(logger.WithWriter(os.Stderr)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		logger.Get().Error(context.Background(), "calctl failed", logger.Error(err))
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "calctl",
		Usage:     "Inspect calendars and move ICS files in and out of calboard.",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tz", Value: "UTC", Usage: "IANA zone for zone-less times", EnvVars: []string{"CALBOARD_TIMEZONE"}},
		},
		Commands: []*cli.Command{
			gridCommand(),
			nextCommand(),
			layoutCommand(),
			importCommand(),
			exportCommand(),
			generateCommand(),
		},
	}
}

func fileFlag() cli.Flag {
	return &cli.StringFlag{Name: "file", Aliases: []string{"f"}, Required: true, Usage: "YAML seed or .ics file"}
}

func location(c *cli.Context) (*time.Location, error) {
	loc, err := time.LoadLocation(c.String("tz"))
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.String("tz"), err)
	}
	return loc, nil
}

// parseNow returns --now in loc, or the current time.
func parseNow(c *cli.Context, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(c.String("now"))
	if v == "" {
		return time.Now().In(loc), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.In(loc), nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04", v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --now %q", v)
	}
	return t, nil
}

func gridCommand() *cli.Command {
	return &cli.Command{
		Name:  "grid",
		Usage: "Print a month, week or day grid of a file's events.",
		Flags: []cli.Flag{
			fileFlag(),
			&cli.StringFlag{Name: "owner", Usage: "only events of this owner"},
			&cli.StringFlag{Name: "date", Usage: "reference date YYYY-MM-DD (default today)"},
			&cli.StringFlag{Name: "view", Value: string(calendar.ViewMonth), Usage: "month, week or day"},
			&cli.StringFlag{Name: "week-start", Value: "sunday", Usage: "first column of the grid"},
			&cli.StringFlag{Name: "now", Usage: "current time, RFC3339 or YYYY-MM-DDTHH:MM"},
		},
		Action: func(c *cli.Context) error {
			loc, err := location(c)
			if err != nil {
				return err
			}
			now, err := parseNow(c, loc)
			if err != nil {
				return err
			}
			mode, err := calendar.ParseViewMode(c.String("view"))
			if err != nil {
				return err
			}
			weekStart, err := parseWeekday(c.String("week-start"))
			if err != nil {
				return err
			}
			ref := model.DateOf(now)
			if v := c.String("date"); v != "" {
				if ref, err = model.ParseDate(v); err != nil {
					return fmt.Errorf("invalid --date %q: %w", v, err)
				}
			}
			events, err := loadEvents(c.Context, c.String("file"), loc, now)
			if err != nil {
				return err
			}

			v, err := calendar.BuildView(filterOwner(events, c.String("owner")), calendar.ViewRequest{
				Reference: ref, Mode: mode, Now: now, WeekStart: weekStart,
			}, calendar.NewLayout())
			if err != nil {
				return err
			}
			return printView(c.App.Writer, v)
		},
	}
}

func nextCommand() *cli.Command {
	return &cli.Command{
		Name:  "next",
		Usage: "Print the next event later today.",
		Flags: []cli.Flag{
			fileFlag(),
			&cli.StringFlag{Name: "owner", Required: true},
			&cli.StringFlag{Name: "now", Usage: "current time, RFC3339 or YYYY-MM-DDTHH:MM"},
		},
		Action: func(c *cli.Context) error {
			loc, err := location(c)
			if err != nil {
				return err
			}
			now, err := parseNow(c, loc)
			if err != nil {
				return err
			}
			events, err := loadEvents(c.Context, c.String("file"), loc, now)
			if err != nil {
				return err
			}
			next, ok := calendar.NextUpcomingEvent(filterOwner(events, c.String("owner")), now)
			if !ok {
				_, err := fmt.Fprintln(c.App.Writer, "nothing else today")
				return err
			}
			_, err = fmt.Fprintf(c.App.Writer, "%s  %s  (in %s)\n",
				next.StartTime.In(loc).Format("15:04"), next.Title, next.StartTime.Sub(now).Round(time.Minute))
			return err
		},
	}
}

func layoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "layout",
		Usage: "Print the block geometry of one event.",
		Flags: []cli.Flag{
			fileFlag(),
			&cli.StringFlag{Name: "id", Required: true},
			&cli.StringFlag{Name: "column", Usage: "day column YYYY-MM-DD (default the event's date)"},
			&cli.Float64Flag{Name: "pixels-per-hour", Value: calendar.PixelsPerHour},
			&cli.StringFlag{Name: "span-policy", Value: string(calendar.SpanClip), Usage: "clip or reject"},
		},
		Action: func(c *cli.Context) error {
			loc, err := location(c)
			if err != nil {
				return err
			}
			policy, err := calendar.ParseSpanPolicy(c.String("span-policy"))
			if err != nil {
				return err
			}
			events, err := loadEvents(c.Context, c.String("file"), loc, time.Now())
			if err != nil {
				return err
			}
			e, ok := findEvent(events, c.String("id"))
			if !ok {
				return fmt.Errorf("event %q not found", c.String("id"))
			}
			column := e.Date
			if v := c.String("column"); v != "" {
				if column, err = model.ParseDate(v); err != nil {
					return fmt.Errorf("invalid --column %q: %w", v, err)
				}
			}

			l := calendar.NewLayout(calendar.WithPixelsPerHour(c.Float64("pixels-per-hour")), calendar.WithSpanPolicy(policy))
			rect, visible, err := l.ComputeInColumn(e, column)
			if err != nil {
				return err
			}
			if !visible {
				_, err := fmt.Fprintf(c.App.Writer, "%s is not on %s\n", e.ID, column)
				return err
			}
			_, err = fmt.Fprintf(c.App.Writer, "top=%.1f height=%.1f clipped_start=%t clipped_end=%t\n",
				rect.Top, rect.Height, rect.ClippedStart, rect.ClippedEnd)
			return err
		},
	}
}

func printView(w io.Writer, v calendar.View) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s view %s .. %s\n", v.Mode, v.Start, v.End)

	if v.Mode.Timed() {
		for _, col := range v.Columns {
			fmt.Fprintf(tw, "%s\t%s\n", col.Date, col.Date.Weekday())
			for _, p := range col.Placements {
				fmt.Fprintf(tw, "\t%s\t%s\ttop=%.0f\theight=%.0f\tlane=%d/%d\n",
					p.Event.StartTime.Format("15:04"), p.Event.Title, p.Rect.Top, p.Rect.Height, p.Lane+1, p.Lanes)
			}
		}
	} else {
		for _, cell := range v.Cells {
			mark := ""
			if cell.Today {
				mark = "*"
			}
			if !cell.InMonth {
				mark += "~"
			}
			titles := make([]string, 0, len(cell.Events))
			for _, e := range cell.Events {
				titles = append(titles, e.Title)
			}
			fmt.Fprintf(tw, "%s%s\t%d\t%s\n", cell.Date, mark, len(cell.Events), strings.Join(titles, ", "))
		}
	}

	if v.Next != nil {
		fmt.Fprintf(tw, "next: %s %s\n", v.Next.StartTime.Format("15:04"), v.Next.Title)
	}
	return tw.Flush()
}

func parseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("%q is not a weekday", s)
}

func filterOwner(events []model.Event, owner string) []model.Event {
	if owner == "" {
		return events
	}
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if e.OwnerID == owner {
			out = append(out, e)
		}
	}
	return out
}

func findEvent(events []model.Event, id string) (model.Event, bool) {
	for _, e := range events {
		if e.ID == id {
			return e, true
		}
	}
	return model.Event{}, false
}
