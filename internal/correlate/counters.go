package correlate

import "time"

// Counts is one day's rollup. Values never decrease within a process lifetime.
type Counts struct {
	TreatCount   int
	SuccessCount int
}

// DailyCounters buckets treat and success counts by UTC date. The event
// stream is the source of truth; these are derived and re-derivable.
type DailyCounters struct {
	days map[string]*Counts
}

// NewDailyCounters creates an empty rollup.
func NewDailyCounters() *DailyCounters {
	return &DailyCounters{days: make(map[string]*Counts)}
}

// DateKey formats a wire timestamp as its UTC calendar date.
func DateKey(ts float64) string {
	return time.Unix(int64(ts), 0).UTC().Format("2006-01-02")
}

// IncTreat bumps the treat count for the day containing ts and returns the
// date key with the day's updated snapshot.
func (d *DailyCounters) IncTreat(ts float64) (string, Counts) {
	key := DateKey(ts)
	c := d.day(key)
	c.TreatCount++
	return key, *c
}

// IncSuccess bumps the success count for the day containing ts.
func (d *DailyCounters) IncSuccess(ts float64) (string, Counts) {
	key := DateKey(ts)
	c := d.day(key)
	c.SuccessCount++
	return key, *c
}

// Day returns the snapshot for a date key.
func (d *DailyCounters) Day(key string) Counts {
	if c, ok := d.days[key]; ok {
		return *c
	}
	return Counts{}
}

func (d *DailyCounters) day(key string) *Counts {
	c, ok := d.days[key]
	if !ok {
		c = &Counts{}
		d.days[key] = c
	}
	return c
}
