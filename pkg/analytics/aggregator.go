package analytics

import (
	"sort"
	"time"
)

// TrendBucket counts sessions started in one day, week or month
type TrendBucket struct {
	Period      string  `json:"period"`
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	SuccessRate float64 `json:"success_rate"`
}

// TrendSummary holds the buckets covering the current day, week and month
type TrendSummary struct {
	Today     TrendBucket `json:"today"`
	ThisWeek  TrendBucket `json:"this_week"`
	ThisMonth TrendBucket `json:"this_month"`
}

// Trends is the time-bucketed session report
type Trends struct {
	Daily   []TrendBucket `json:"daily"`
	Weekly  []TrendBucket `json:"weekly"`
	Monthly []TrendBucket `json:"monthly"`
	Summary TrendSummary  `json:"summary"`
}

type bucketCounter struct {
	buckets map[string]*TrendBucket
}

func newBucketCounter() *bucketCounter {
	return &bucketCounter{buckets: make(map[string]*TrendBucket)}
}

func (c *bucketCounter) add(key string, total, successful int) {
	b, ok := c.buckets[key]
	if !ok {
		b = &TrendBucket{Period: key}
		c.buckets[key] = b
	}
	b.Total += total
	b.Successful += successful
}

// sorted returns the buckets ascending by key. Keys are zero-padded dates,
// so lexical order is chronological.
func (c *bucketCounter) sorted() []TrendBucket {
	out := make([]TrendBucket, 0, len(c.buckets))
	for _, b := range c.buckets {
		b.SuccessRate = rate(b.Successful, b.Total)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}

func (c *bucketCounter) get(key string) TrendBucket {
	if b, ok := c.buckets[key]; ok {
		return TrendBucket{
			Period:      b.Period,
			Total:       b.Total,
			Successful:  b.Successful,
			SuccessRate: rate(b.Successful, b.Total),
		}
	}
	return TrendBucket{Period: key}
}

// buildTrends assigns each session to the buckets of its first event.
// Monthly buckets are the sum of the daily buckets in that month.
func buildTrends(sessions []*SessionSummary, now time.Time) *Trends {
	daily := newBucketCounter()
	weekly := newBucketCounter()

	for _, s := range sessions {
		successful := 0
		if s.Success {
			successful = 1
		}
		daily.add(dayStart(s.StartedAt).Format(dayLayout), 1, successful)
		weekly.add(weekStart(s.StartedAt).Format(dayLayout), 1, successful)
	}

	monthly := newBucketCounter()
	for key, b := range daily.buckets {
		day, err := time.Parse(dayLayout, key)
		if err != nil {
			continue
		}
		monthly.add(day.Format(monthLayout), b.Total, b.Successful)
	}

	return &Trends{
		Daily:   daily.sorted(),
		Weekly:  weekly.sorted(),
		Monthly: monthly.sorted(),
		Summary: TrendSummary{
			Today:     daily.get(dayStart(now).Format(dayLayout)),
			ThisWeek:  weekly.get(weekStart(now).Format(dayLayout)),
			ThisMonth: monthly.get(monthStart(now).Format(monthLayout)),
		},
	}
}
