package summary

import (
	"errors"
	"testing"

	"github.com/claude/trelog/internal/models"
	"github.com/google/go-cmp/cmp"
)

func set(weight, reps, count, rpe models.Num) models.SetEntry {
	return models.SetEntry{WeightKg: weight, Reps: reps, SetsCount: count, RPE: rpe}
}

func sess(id, date string, sets ...models.SetEntry) models.Session {
	return models.Session{ID: id, Date: date, Exercises: []models.ExerciseBlock{{Name: "Squat", Sets: sets}}}
}

var none models.Num

func TestWeekKey(t *testing.T) {
	tests := []struct {
		date string
		want string
	}{
		{"2024-01-01", "2024-W01"}, // Monday
		{"2024-01-07", "2024-W01"}, // Sunday of the same week
		{"2024-01-08", "2024-W02"},
		{"2023-12-31", "2023-W52"}, // Sunday, Monday is 2023-12-25
		{"2025-01-01", "2024-W53"}, // Monday is 2024-12-30
		{"2024-03-02", "2024-W09"},
		{"", Unset},
		{"not a date", Unset},
		{"2024-13-01", Unset},
	}
	for _, tt := range tests {
		if got := WeekKey(tt.date); got != tt.want {
			t.Errorf("WeekKey(%q) = %q, want %q", tt.date, got, tt.want)
		}
	}
}

func TestMonthKey(t *testing.T) {
	tests := []struct {
		date string
		want string
	}{
		{"2024-03-02", "2024-03"},
		{"2024-03", "2024-03"},
		{"2024", "2024"},
		{"", Unset},
	}
	for _, tt := range tests {
		if got := MonthKey(tt.date); got != tt.want {
			t.Errorf("MonthKey(%q) = %q, want %q", tt.date, got, tt.want)
		}
	}
}

func TestFlat(t *testing.T) {
	tests := []struct {
		name     string
		sessions []models.Session
		want     Totals
	}{
		{
			name:     "empty",
			sessions: nil,
			want:     Totals{},
		},
		{
			name:     "single set",
			sessions: []models.Session{sess("a", "2024-01-01", set(models.N(100), models.N(5), models.N(1), none))},
			want:     Totals{TotalVolume: 500, SetCount: 1},
		},
		{
			name: "multiplier applies to volume and rpe",
			sessions: []models.Session{sess("a", "2024-01-01",
				set(models.N(60), models.N(10), models.N(3), models.N(8)),
				set(models.N(80), models.N(5), none, models.N(9)),
			)},
			// volume 1800 + 400; rpe (24 + 9) / 4
			want: Totals{TotalVolume: 2200, AverageRPE: 8.25, SetCount: 4},
		},
		{
			name: "missing load contributes no volume but counts for rpe",
			sessions: []models.Session{sess("a", "2024-01-01",
				set(none, models.N(12), models.N(1), models.N(7)),
				set(models.N(20), none, models.N(1), none),
			)},
			want: Totals{TotalVolume: 0, AverageRPE: 3.5, SetCount: 2},
		},
		{
			name: "rounding",
			sessions: []models.Session{sess("a", "2024-01-01",
				set(models.N(22.5), models.N(3), models.N(1), models.N(7)),
				set(models.N(0.5), models.N(1), models.N(1), models.N(8)),
				set(none, none, models.N(1), models.N(8)),
			)},
			// volume 67.5 + 0.5 = 68; rpe 23/3 = 7.666..
			want: Totals{TotalVolume: 68, AverageRPE: 7.67, SetCount: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Flat(tt.sessions)); diff != "" {
				t.Errorf("Flat mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	sessions := []models.Session{
		sess("c", "2024-02-10", set(models.N(100), models.N(1), models.N(1), models.N(8))),
		sess("a", "2024-01-01", set(models.N(100), models.N(5), models.N(1), none)),
		sess("b", "2024-01-20", set(models.N(50), models.N(2), models.N(2), models.N(9))),
		sess("d", "", set(models.N(10), models.N(10), models.N(1), none)),
	}

	t.Run("month", func(t *testing.T) {
		want := []Bucket{
			{Key: "2024-01", TotalVolume: 700, AverageRPE: 6},
			{Key: "2024-02", TotalVolume: 100, AverageRPE: 8},
			{Key: Unset, TotalVolume: 100, AverageRPE: 0},
		}
		if diff := cmp.Diff(want, Summarize(sessions, Month)); diff != "" {
			t.Errorf("month buckets (-want +got):\n%s", diff)
		}
	})

	t.Run("week", func(t *testing.T) {
		want := []Bucket{
			{Key: "2024-W01", TotalVolume: 500},
			{Key: "2024-W03", TotalVolume: 200, AverageRPE: 9},
			{Key: "2024-W06", TotalVolume: 100, AverageRPE: 8},
			{Key: Unset, TotalVolume: 100},
		}
		if diff := cmp.Diff(want, Summarize(sessions, Week)); diff != "" {
			t.Errorf("week buckets (-want +got):\n%s", diff)
		}
	})

	t.Run("empty", func(t *testing.T) {
		got := Summarize(nil, Month)
		if got == nil || len(got) != 0 {
			t.Errorf("Summarize(nil) = %#v, want empty slice", got)
		}
	})
}

func TestGroupSessions(t *testing.T) {
	sessions := []models.Session{
		sess("a", "2024-01-05"),
		sess("b", "2024-02-01"),
		sess("c", "2024-01-20"),
		sess("d", "2024-01-20"),
	}
	groups := GroupSessions(sessions, Month)

	var got [][]string
	var keys []string
	for _, g := range groups {
		keys = append(keys, g.Key)
		var ids []string
		for _, s := range g.Sessions {
			ids = append(ids, s.ID)
		}
		got = append(got, ids)
	}
	if diff := cmp.Diff([]string{"2024-02", "2024-01"}, keys); diff != "" {
		t.Errorf("group keys (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]string{{"b"}, {"c", "d", "a"}}, got); diff != "" {
		t.Errorf("group members (-want +got):\n%s", diff)
	}

	if g := GroupSessions(nil, Week); g == nil || len(g) != 0 {
		t.Errorf("GroupSessions(nil) = %#v", g)
	}
}

func TestParseGranularity(t *testing.T) {
	for in, want := range map[string]Granularity{"month": Month, "WEEK": Week, "": Month} {
		got, err := ParseGranularity(in)
		if err != nil || got != want {
			t.Errorf("ParseGranularity(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseGranularity("day"); !errors.Is(err, ErrUnknownGranularity) {
		t.Errorf("err = %v, want ErrUnknownGranularity", err)
	}
}
