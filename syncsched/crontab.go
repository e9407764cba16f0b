package syncsched

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xapiens/rvpf/datetime"
)

// maxLookaround bounds how far CrontabSync will step while searching for a
// scheduled stamp, to keep a schedule that never matches (e.g. Feb 30) from
// looping forever.
const maxLookaround = 5 * 366 * 24 * 60

// CrontabSync is a cron-style Sync honoring wall-clock semantics in
// zone: during a fall-back transition both wall-clock instants of a
// repeated hour are enumerated, earlier UTC first; a spring-forward gap
// contributes no stamps.
//
// robfig/cron/v3 is used only to parse the expression's field syntax and to
// test "does this minute match the schedule" (via Schedule.Next called over
// a one-second window); the forward/backward search itself steps minute by
// minute through UTC instants and converts each to zone, so it never asks
// Go's time.Date to resolve an ambiguous local time.
type CrontabSync struct {
	expr     string
	zone     *time.Location
	schedule cron.Schedule
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NewCrontabSync parses expr (1 to 5 space-separated cron fields: minute
// [hour [dom [month [dow]]]], missing trailing fields default to "*") in
// zone.
func NewCrontabSync(expr string, zone *time.Location) (*CrontabSync, error) {
	normalized, err := normalizeExpr(expr)
	if err != nil {
		return nil, err
	}
	sched, err := cronParser.Parse(normalized)
	if err != nil {
		return nil, err
	}
	return &CrontabSync{expr: expr, zone: zone, schedule: sched}, nil
}

func normalizeExpr(expr string) (string, error) {
	fields := strings.Fields(expr)
	if len(fields) == 0 || len(fields) > 5 {
		return "", errCronFields{expr}
	}
	for len(fields) < 5 {
		fields = append(fields, "*")
	}
	return strings.Join(fields, " "), nil
}

type errCronFields struct{ expr string }

func (e errCronFields) Error() string {
	return "syncsched: crontab expression must have 1 to 5 fields: " + e.expr
}

// matches reports whether the zone-local minute containing t is on schedule.
func (c *CrontabSync) matches(t time.Time) bool {
	truncated := t.Truncate(time.Minute)
	next := c.schedule.Next(truncated.Add(-time.Second))
	return next.Equal(truncated)
}

// NextStamp implements Sync.
func (c *CrontabSync) NextStamp(s datetime.DateTime, strict bool) (datetime.DateTime, bool) {
	t := s.In(c.zone)
	cursor := t.Truncate(time.Minute)
	if cursor.Before(t) {
		cursor = cursor.Add(time.Minute)
	}
	if cursor.Equal(t) {
		if !strict && c.matches(cursor) {
			return datetime.FromTime(cursor), true
		}
		cursor = cursor.Add(time.Minute)
	}
	for i := 0; i < maxLookaround; i++ {
		if c.matches(cursor) {
			return datetime.FromTime(cursor), true
		}
		cursor = cursor.Add(time.Minute)
	}
	return 0, false
}

// PrevStamp implements Sync.
func (c *CrontabSync) PrevStamp(s datetime.DateTime, strict bool) (datetime.DateTime, bool) {
	t := s.In(c.zone)
	cursor := t.Truncate(time.Minute)
	if cursor.Equal(t) {
		if !strict && c.matches(cursor) {
			return datetime.FromTime(cursor), true
		}
		cursor = cursor.Add(-time.Minute)
	}
	for i := 0; i < maxLookaround; i++ {
		if c.matches(cursor) {
			return datetime.FromTime(cursor), true
		}
		cursor = cursor.Add(-time.Minute)
	}
	return 0, false
}
