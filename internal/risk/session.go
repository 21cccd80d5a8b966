package risk

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"confluenceBot/config"
	"confluenceBot/internal/ports"
)

// Session is a daily trading window in a fixed time zone. A window whose end
// is not after its start wraps past midnight.
type Session struct {
	enabled bool
	loc     *time.Location
	start   time.Duration
	end     time.Duration
}

// NewSession builds the window from parameters.
func NewSession(p config.SessionParams) (*Session, error) {
	s := &Session{enabled: p.Enabled}
	if !p.Enabled {
		return s, nil
	}
	loc, err := time.LoadLocation(p.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown session location %q: %v", ports.ErrConfigurationError, p.Location, err)
	}
	s.loc = loc
	s.start = time.Duration(p.StartHour)*time.Hour + time.Duration(p.StartMinute)*time.Minute
	s.end = time.Duration(p.EndHour)*time.Hour + time.Duration(p.EndMinute)*time.Minute
	return s, nil
}

// Enabled reports whether the filter is active.
func (s *Session) Enabled() bool { return s.enabled }

// Contains reports whether t falls inside the window. A disabled session
// contains every time.
func (s *Session) Contains(t time.Time) bool {
	if !s.enabled {
		return true
	}
	local := t.In(s.loc)
	tod := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
	if s.end > s.start {
		return tod >= s.start && tod <= s.end
	}
	return tod >= s.start || tod <= s.end
}
