package calendar

import (
	"time"

	"github.com/okian/calboard/internal/domain/model"
)

// ViewRequest selects what BuildView renders.
type ViewRequest struct {
	Reference model.Date
	Mode      ViewMode
	Now       time.Time
	WeekStart time.Weekday
}

// Column holds the placements of one day of a week or day view.
type Column struct {
	Date       model.Date  `json:"date"`
	Placements []Placement `json:"placements"`
}

// View is the complete render model for one calendar screen.
type View struct {
	Mode          ViewMode     `json:"mode"`
	Reference     model.Date   `json:"reference"`
	Start         model.Date   `json:"start"`
	End           model.Date   `json:"end"`
	PixelsPerHour float64      `json:"pixels_per_hour"`
	Cells         []Cell       `json:"cells"`
	Columns       []Column     `json:"columns,omitempty"`
	Next          *model.Event `json:"next,omitempty"`
}

// BuildView runs grid building, projection and, for timed modes, layout.
// Events are not modified.
func BuildView(events []model.Event, req ViewRequest, layout *Layout) (View, error) {
	if layout == nil {
		layout = NewLayout()
	}

	cells, err := BuildGrid(req.Reference, req.Mode,
		WithToday(model.DateOf(req.Now)),
		WithWeekStart(req.WeekStart),
	)
	if err != nil {
		return View{}, err
	}
	first, last, err := Window(req.Reference, req.Mode, req.WeekStart)
	if err != nil {
		return View{}, err
	}

	v := View{
		Mode:          req.Mode,
		Reference:     req.Reference,
		Start:         first,
		End:           last,
		PixelsPerHour: layout.PixelsPerHour(),
		Cells:         ProjectEvents(events, cells),
	}

	if req.Mode.Timed() {
		for d := first; !d.After(last); d = d.AddDays(1) {
			placements, err := layout.Arrange(events, d)
			if err != nil {
				return View{}, err
			}
			v.Columns = append(v.Columns, Column{Date: d, Placements: placements})
		}
	}

	if next, ok := NextUpcomingEvent(events, req.Now); ok {
		v.Next = &next
	}
	return v, nil
}
