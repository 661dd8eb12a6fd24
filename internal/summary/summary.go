// Package summary aggregates sessions into time buckets for charts and quick
// totals.
package summary

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/claude/trelog/internal/models"
)

// Unset is the bucket for sessions without a usable date.
const Unset = "unset"

// Granularity selects the bucket width.
type Granularity string

const (
	Month Granularity = "month"
	Week  Granularity = "week"
)

var ErrUnknownGranularity = errors.New("unknown granularity")

// ParseGranularity parses "month" or "week". The empty string means month.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case Month, Week:
		return g, nil
	case "":
		return Month, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGranularity, s)
}

// Key returns the bucket key of date for g.
func (g Granularity) Key(date string) string {
	if g == Week {
		return WeekKey(date)
	}
	return MonthKey(date)
}

// MonthKey returns "yyyy-mm", the first seven characters of date.
func MonthKey(date string) string {
	r := []rune(date)
	if len(r) > 7 {
		r = r[:7]
	}
	if len(r) == 0 {
		return Unset
	}
	return string(r)
}

// WeekKey returns "yyyy-Www" for the Monday-anchored week containing date.
// The year is the Monday's calendar year and the week number counts whole
// weeks from that year's January 1, starting at 1. Week numbering is not ISO
// 8601: 2023-12-31 is 2023-W52 and 2024-01-01 is 2024-W01.
func WeekKey(date string) string {
	d, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return Unset
	}
	offset := (int(d.Weekday()) + 6) % 7 // Monday=0 .. Sunday=6
	monday := d.AddDate(0, 0, -offset)
	jan1 := time.Date(monday.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	days := int(monday.Sub(jan1).Hours() / 24)
	return fmt.Sprintf("%04d-W%02d", monday.Year(), days/7+1)
}

// Bucket is one chart row.
type Bucket struct {
	Key         string  `json:"key"`
	TotalVolume float64 `json:"totalVolume"`
	AverageRPE  float64 `json:"averageRpe"`
}

// Totals is the flat summary over a filtered set of sessions.
type Totals struct {
	TotalVolume float64 `json:"totalVolume"`
	AverageRPE  float64 `json:"averageRpe"`
	SetCount    float64 `json:"setCount"`
}

type acc struct {
	volume   float64
	rpeSum   float64
	setCount float64
}

func (a *acc) add(s models.Session) {
	for _, ex := range s.Exercises {
		for _, st := range ex.Sets {
			m := st.Multiplier()
			a.volume += st.Volume()
			if st.RPE.Valid {
				a.rpeSum += st.RPE.Value * m
			}
			a.setCount += m
		}
	}
}

func (a acc) averageRPE() float64 {
	if a.setCount == 0 {
		return 0
	}
	return round2(a.rpeSum / a.setCount)
}

// Summarize buckets sessions by g and returns rows in ascending key order.
// Empty input yields an empty, non-nil slice.
func Summarize(sessions []models.Session, g Granularity) []Bucket {
	buckets := map[string]*acc{}
	for _, s := range sessions {
		k := g.Key(s.Date)
		a, ok := buckets[k]
		if !ok {
			a = &acc{}
			buckets[k] = a
		}
		a.add(s)
	}

	out := make([]Bucket, 0, len(buckets))
	for k, a := range buckets {
		out = append(out, Bucket{
			Key:         k,
			TotalVolume: roundHalfUp(a.volume),
			AverageRPE:  a.averageRPE(),
		})
	}
	slices.SortFunc(out, func(a, b Bucket) int { return cmp.Compare(a.Key, b.Key) })
	return out
}

// Flat accumulates every session without bucketing.
func Flat(sessions []models.Session) Totals {
	var a acc
	for _, s := range sessions {
		a.add(s)
	}
	return Totals{
		TotalVolume: roundHalfUp(a.volume),
		AverageRPE:  a.averageRPE(),
		SetCount:    a.setCount,
	}
}

// Group is one listing section.
type Group struct {
	Key      string           `json:"key"`
	Sessions []models.Session `json:"sessions"`
}

// GroupSessions groups sessions by g for listing: groups newest key first,
// sessions within a group by date descending. Ties keep input order.
func GroupSessions(sessions []models.Session, g Granularity) []Group {
	idx := map[string]int{}
	var groups []Group
	for _, s := range sessions {
		k := g.Key(s.Date)
		i, ok := idx[k]
		if !ok {
			i = len(groups)
			idx[k] = i
			groups = append(groups, Group{Key: k})
		}
		groups[i].Sessions = append(groups[i].Sessions, s.Clone())
	}

	slices.SortFunc(groups, func(a, b Group) int { return cmp.Compare(b.Key, a.Key) })
	for _, gr := range groups {
		slices.SortStableFunc(gr.Sessions, func(a, b models.Session) int { return cmp.Compare(b.Date, a.Date) })
	}
	if groups == nil {
		groups = []Group{}
	}
	return groups
}

// roundHalfUp rounds halves toward positive infinity.
func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
