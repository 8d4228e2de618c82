// Package calendar builds calendar view models from flat event lists.
//
// Everything here is a pure function of its arguments: no clock reads, no
// shared state, and inputs are never modified. Callers thread "now" and
// "today" through explicitly.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/calboard/internal/domain/model"
)

const (
	daysPerWeek  = 7
	hoursPerDay  = 24
	minutesInDay = hoursPerDay * 60
)

// ViewMode selects the grid shape.
type ViewMode string

// Supported view modes.
const (
	ViewMonth ViewMode = "month"
	ViewWeek  ViewMode = "week"
	ViewDay   ViewMode = "day"
)

// ParseViewMode parses a view mode case-insensitively. Empty means month.
func ParseViewMode(s string) (ViewMode, error) {
	switch ViewMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ViewMonth:
		return ViewMonth, nil
	case ViewWeek:
		return ViewWeek, nil
	case ViewDay:
		return ViewDay, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownViewMode, s)
	}
}

// Timed reports whether the mode renders events on a time axis.
func (m ViewMode) Timed() bool {
	return m == ViewWeek || m == ViewDay
}

// Cell is one date of a month/week grid, or one hour slot of a day grid.
type Cell struct {
	Date    model.Date    `json:"date"`
	Hourly  bool          `json:"hourly"`
	Hour    int           `json:"hour"`
	InMonth bool          `json:"in_month"`
	Today   bool          `json:"today"`
	Events  []model.Event `json:"events"`
}

// GridOption tunes BuildGrid.
type GridOption func(*gridConfig)

type gridConfig struct {
	today     model.Date
	weekStart time.Weekday
}

// WithToday marks cells whose date equals today.
func WithToday(today model.Date) GridOption {
	return func(c *gridConfig) {
		c.today = today
	}
}

// WithWeekStart sets the first column of month and week grids.
func WithWeekStart(day time.Weekday) GridOption {
	return func(c *gridConfig) {
		if day >= time.Sunday && day <= time.Saturday {
			c.weekStart = day
		}
	}
}

// BuildGrid returns the cells to display for ref in the given mode. Cells
// carry no events; see ProjectEvents.
func BuildGrid(ref model.Date, mode ViewMode, opts ...GridOption) ([]Cell, error) {
	cfg := gridConfig{weekStart: time.Sunday}
	for _, opt := range opts {
		opt(&cfg)
	}

	first, last, err := Window(ref, mode, cfg.weekStart)
	if err != nil {
		return nil, err
	}

	if mode == ViewDay {
		cells := make([]Cell, hoursPerDay)
		for h := range cells {
			cells[h] = Cell{
				Date:    ref,
				Hourly:  true,
				Hour:    h,
				InMonth: true,
				Today:   !cfg.today.IsZero() && ref == cfg.today,
			}
		}
		return cells, nil
	}

	n := first.DaysUntil(last) + 1
	cells := make([]Cell, 0, n)
	for d := first; !d.After(last); d = d.AddDays(1) {
		cells = append(cells, Cell{
			Date:    d,
			InMonth: d.SameMonth(ref),
			Today:   !cfg.today.IsZero() && d == cfg.today,
		})
	}
	return cells, nil
}

// Window returns the first and last dates shown by a grid for ref.
func Window(ref model.Date, mode ViewMode, weekStart time.Weekday) (model.Date, model.Date, error) {
	switch mode {
	case ViewMonth:
		first := ref.FirstOfMonth()
		lead := daysSinceWeekStart(first, weekStart)
		total := lead + first.DaysInMonth()
		if rem := total % daysPerWeek; rem != 0 {
			total += daysPerWeek - rem
		}
		start := first.AddDays(-lead)
		return start, start.AddDays(total - 1), nil
	case ViewWeek:
		start := ref.AddDays(-daysSinceWeekStart(ref, weekStart))
		return start, start.AddDays(daysPerWeek - 1), nil
	case ViewDay:
		return ref, ref, nil
	default:
		return model.Date{}, model.Date{}, fmt.Errorf("%w: %q", ErrUnknownViewMode, string(mode))
	}
}

func daysSinceWeekStart(d model.Date, weekStart time.Weekday) int {
	return (int(d.Weekday()) - int(weekStart) + daysPerWeek) % daysPerWeek
}
