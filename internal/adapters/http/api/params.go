package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/calboard/internal/domain/calendar"
	"github.com/okian/calboard/internal/domain/model"
)

var localNowLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04"}

func requiredParam(r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return "", fmt.Errorf("missing %s", name)
	}
	return v, nil
}

// nowParam reads "now" as RFC3339 or a local time in cfg.loc. Without it the
// server clock is used.
func (cfg *settings) nowParam(r *http.Request) (time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get("now"))
	if v == "" {
		return cfg.now().In(cfg.loc), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	for _, layout := range localNowLayouts {
		if t, err := time.ParseInLocation(layout, v, cfg.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid now %q; want RFC3339", v)
}

func dateParam(r *http.Request, name string, def model.Date) (model.Date, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	d, err := model.ParseDate(v)
	if err != nil {
		return model.Date{}, fmt.Errorf("invalid %s %q; want YYYY-MM-DD", name, v)
	}
	return d, nil
}

func viewParam(r *http.Request) (calendar.ViewMode, error) {
	v := r.URL.Query().Get("view")
	if v == "" {
		return calendar.ViewMonth, nil
	}
	return calendar.ParseViewMode(v)
}

func limitParam(r *http.Request, def, maxLimit int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}
