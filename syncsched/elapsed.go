package syncsched

import "github.com/xapiens/rvpf/datetime"

// ElapsedSync is a fixed-period Sync: scheduled stamps are offset, offset +
// period, offset + 2*period, and so on in both directions.
type ElapsedSync struct {
	Period datetime.ElapsedTime
	Offset datetime.DateTime
}

// NewElapsedSync builds an ElapsedSync with the given period and offset.
// Period must be strictly positive.
func NewElapsedSync(period datetime.ElapsedTime, offset datetime.DateTime) (*ElapsedSync, error) {
	if period <= 0 {
		return nil, errBadPeriod
	}
	return &ElapsedSync{Period: period, Offset: offset}, nil
}

var errBadPeriod = errPeriod{}

type errPeriod struct{}

func (errPeriod) Error() string { return "syncsched: elapsed sync period must be > 0" }

// tickIndex returns the schedule index covering s: Offset + n*Period.
func (e *ElapsedSync) tickIndex(s datetime.DateTime) int64 {
	delta := int64(s.Sub(e.Offset))
	period := int64(e.Period)
	n := delta / period
	if delta%period != 0 && delta < 0 {
		n--
	}
	return n
}

func (e *ElapsedSync) stampAt(n int64) datetime.DateTime {
	return e.Offset.Add(datetime.ElapsedTime(n) * e.Period)
}

// NextStamp implements Sync.
func (e *ElapsedSync) NextStamp(s datetime.DateTime, strict bool) (datetime.DateTime, bool) {
	n := e.tickIndex(s)
	tick := e.stampAt(n)
	if tick.After(s) {
		return tick, true
	}
	if tick == s {
		if !strict {
			return tick, true
		}
		return e.stampAt(n + 1), true
	}
	return e.stampAt(n + 1), true
}

// PrevStamp implements Sync.
func (e *ElapsedSync) PrevStamp(s datetime.DateTime, strict bool) (datetime.DateTime, bool) {
	n := e.tickIndex(s)
	tick := e.stampAt(n)
	if tick.Before(s) {
		return tick, true
	}
	if tick == s {
		if !strict {
			return tick, true
		}
		return e.stampAt(n - 1), true
	}
	return e.stampAt(n - 1), true
}
