package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/okian/calboard/internal/domain/model"
)

// PixelsPerHour is the default vertical scale of a time-axis column.
const PixelsPerHour = 80

// SpanPolicy decides what the layout engine does with events whose end
// falls on a later day than their start.
type SpanPolicy string

// Span policies.
const (
	// SpanClip cuts the rectangle at the column boundary. Continuation
	// segments on later days are available through ComputeInColumn.
	SpanClip SpanPolicy = "clip"
	// SpanReject returns an UnsupportedSpanError.
	SpanReject SpanPolicy = "reject"
)

// ParseSpanPolicy parses a span policy name. Empty means SpanClip.
func ParseSpanPolicy(s string) (SpanPolicy, error) {
	switch SpanPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", SpanClip:
		return SpanClip, nil
	case SpanReject:
		return SpanReject, nil
	default:
		return "", fmt.Errorf("unknown span policy %q", s)
	}
}

// Rect positions an event block inside a day column, in pixels from the
// column's midnight.
type Rect struct {
	Top          float64 `json:"top"`
	Height       float64 `json:"height"`
	ClippedStart bool    `json:"clipped_start,omitempty"`
	ClippedEnd   bool    `json:"clipped_end,omitempty"`
}

// Bottom is Top plus Height.
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// Placement is an event positioned in a column, with its lane among
// overlapping neighbours.
type Placement struct {
	Event model.Event `json:"event"`
	Rect  Rect        `json:"rect"`
	Lane  int         `json:"lane"`
	Lanes int         `json:"lanes"`
}

// Layout converts event times into column rectangles.
type Layout struct {
	pixelsPerHour float64
	policy        SpanPolicy
}

// LayoutOption configures a Layout.
type LayoutOption func(*Layout)

// WithPixelsPerHour overrides the vertical scale.
func WithPixelsPerHour(px float64) LayoutOption {
	return func(l *Layout) {
		if px > 0 {
			l.pixelsPerHour = px
		}
	}
}

// WithSpanPolicy sets the midnight-crossing policy.
func WithSpanPolicy(p SpanPolicy) LayoutOption {
	return func(l *Layout) {
		if p == SpanClip || p == SpanReject {
			l.policy = p
		}
	}
}

// NewLayout returns a Layout at 80 px/hour that clips at midnight.
func NewLayout(opts ...LayoutOption) *Layout {
	l := &Layout{pixelsPerHour: PixelsPerHour, policy: SpanClip}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// PixelsPerHour returns the configured scale.
func (l *Layout) PixelsPerHour() float64 { return l.pixelsPerHour }

// Policy returns the configured span policy.
func (l *Layout) Policy() SpanPolicy { return l.policy }

// ColumnHeight is the pixel height of a full day column.
func (l *Layout) ColumnHeight() float64 { return hoursPerDay * l.pixelsPerHour }

// ComputeLayout positions e in its start day's column with the default Layout.
func ComputeLayout(e model.Event) (Rect, error) {
	return NewLayout().Compute(e)
}

// Compute positions e in the column of the day it starts on.
func (l *Layout) Compute(e model.Event) (Rect, error) {
	r, _, err := l.ComputeInColumn(e, model.DateOf(e.StartTime))
	return r, err
}

// ComputeInColumn positions the part of e that falls on column. The bool is
// false when e does not touch column at all.
func (l *Layout) ComputeInColumn(e model.Event, column model.Date) (Rect, bool, error) {
	start, end := e.StartTime, e.EndTime()
	if end.Before(start) {
		return Rect{}, false, &ValidationError{
			Field:  "duration",
			Value:  fmt.Sprint(int(e.Duration)),
			Reason: "must not be negative",
		}
	}

	startDay, endDay := model.DateOf(start), model.DateOf(end)
	endMin := wallMinutes(end)
	// Ending exactly at midnight belongs to the previous day's column.
	if endMin == 0 && endDay.After(startDay) {
		endDay = endDay.AddDays(-1)
		endMin = minutesInDay
	}

	if column.Before(startDay) || column.After(endDay) {
		return Rect{}, false, nil
	}
	if endDay.After(startDay) && l.policy == SpanReject {
		return Rect{}, false, &UnsupportedSpanError{EventID: e.ID, Start: start, End: end}
	}

	r := Rect{}
	startMin := 0.0
	if column == startDay {
		startMin = wallMinutes(start)
	} else {
		r.ClippedStart = true
	}
	if column != endDay {
		endMin = minutesInDay
		r.ClippedEnd = true
	}

	r.Top = startMin / 60 * l.pixelsPerHour
	r.Height = (endMin - startMin) / 60 * l.pixelsPerHour
	return r, true, nil
}

// Arrange positions every event touching column and spreads overlapping
// events across lanes. Lanes is the lane count of the overlap cluster the
// event belongs to.
func (l *Layout) Arrange(events []model.Event, column model.Date) ([]Placement, error) {
	placed := make([]Placement, 0, len(events))
	for _, e := range events {
		r, ok, err := l.ComputeInColumn(e, column)
		if err != nil {
			return nil, err
		}
		if ok {
			placed = append(placed, Placement{Event: e.Clone(), Rect: r})
		}
	}

	sort.SliceStable(placed, func(i, j int) bool {
		if placed[i].Rect.Top != placed[j].Rect.Top {
			return placed[i].Rect.Top < placed[j].Rect.Top
		}
		return placed[i].Rect.Height > placed[j].Rect.Height
	})

	clusterStart := 0
	clusterBottom := 0.0
	var laneBottoms []float64
	closeCluster := func(end int) {
		for k := clusterStart; k < end; k++ {
			placed[k].Lanes = len(laneBottoms)
		}
	}
	for i := range placed {
		r := placed[i].Rect
		if i > clusterStart && r.Top >= clusterBottom {
			closeCluster(i)
			clusterStart = i
			laneBottoms = laneBottoms[:0]
		}
		lane := -1
		for k, bottom := range laneBottoms {
			if bottom <= r.Top {
				lane = k
				break
			}
		}
		if lane < 0 {
			lane = len(laneBottoms)
			laneBottoms = append(laneBottoms, 0)
		}
		laneBottoms[lane] = r.Bottom()
		placed[i].Lane = lane
		if i == clusterStart || r.Bottom() > clusterBottom {
			clusterBottom = r.Bottom()
		}
	}
	closeCluster(len(placed))
	return placed, nil
}

func wallMinutes(t time.Time) float64 {
	return float64(t.Hour()*60 + t.Minute())
}
