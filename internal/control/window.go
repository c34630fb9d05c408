package control

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow is returned for unparsable or empty time windows.
var ErrInvalidWindow = errors.New("invalid time window")

const clockLayout = "15:04"

// TimeWindow is a daily local-time interval [On, Off). When On is after
// Off the window wraps midnight.
type TimeWindow struct {
	On  time.Duration // offset from midnight
	Off time.Duration
}

// NewTimeWindow parses "HH:MM" times.
func NewTimeWindow(on, off string) (TimeWindow, error) {
	onD, err := parseClock(on)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("%w: time_on: %v", ErrInvalidWindow, err)
	}
	offD, err := parseClock(off)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("%w: time_off: %v", ErrInvalidWindow, err)
	}
	if onD == offD {
		return TimeWindow{}, fmt.Errorf("%w: time_on and time_off are both %s", ErrInvalidWindow, on)
	}
	return TimeWindow{On: onD, Off: offD}, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Contains reports whether t's local time of day falls in the window.
func (w TimeWindow) Contains(t time.Time) bool {
	h, m, s := t.Clock()
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second
	if w.On < w.Off {
		return d >= w.On && d < w.Off
	}
	return d >= w.On || d < w.Off
}

func (w TimeWindow) String() string {
	return formatClock(w.On) + "-" + formatClock(w.Off)
}

func formatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
