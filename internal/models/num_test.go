package models

import (
	"encoding/json"
	"testing"
)

// TestNumUnmarshal verifies that only JSON numbers decode as present values;
// every other JSON value, including "", decodes as absent without error.
func TestNumUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want Num
	}{
		{`100`, N(100)},
		{`62.5`, N(62.5)},
		{`-3`, N(-3)},
		{`0`, N(0)},
		{`""`, Num{}},
		{`"100"`, Num{}},
		{`null`, Num{}},
		{`true`, Num{}},
		{`[1]`, Num{}},
		{`{"a":1}`, Num{}},
	}

	for _, tt := range tests {
		var got Num
		if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
			t.Errorf("Unmarshal(%s) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Unmarshal(%s) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

// TestNumMarshal verifies absent values encode as "" like the web client writes them.
func TestNumMarshal(t *testing.T) {
	set := SetEntry{ID: "s1", SetNumber: 1, WeightKg: N(102.5), Reps: N(5)}
	data, err := json.Marshal(set)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"id":"s1","setNumber":1,"weightKg":102.5,"reps":5,"setsCount":"","rpe":"","intervalSec":"","durationSec":""}`
	if string(data) != want {
		t.Errorf("Marshal = %s\nwant      %s", data, want)
	}
}

// TestNumFieldMissing verifies a missing field stays absent rather than zero.
func TestNumFieldMissing(t *testing.T) {
	var set SetEntry
	if err := json.Unmarshal([]byte(`{"id":"x","reps":8}`), &set); err != nil {
		t.Fatal(err)
	}
	if set.WeightKg.Valid {
		t.Errorf("weightKg = %+v, want absent", set.WeightKg)
	}
	if !set.Reps.Valid || set.Reps.Value != 8 {
		t.Errorf("reps = %+v, want 8", set.Reps)
	}
}

func TestSetVolume(t *testing.T) {
	tests := []struct {
		name string
		set  SetEntry
		want float64
	}{
		{"weight and reps", SetEntry{WeightKg: N(100), Reps: N(5), SetsCount: N(1)}, 500},
		{"multiplier defaults to one", SetEntry{WeightKg: N(100), Reps: N(5)}, 500},
		{"grouped sets", SetEntry{WeightKg: N(60), Reps: N(10), SetsCount: N(3)}, 1800},
		{"bodyweight", SetEntry{Reps: N(12)}, 0},
		{"interval work", SetEntry{DurationSec: N(30), SetsCount: N(8)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.set.Volume(); got != tt.want {
				t.Errorf("Volume() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestSessionCloneIndependent verifies that mutating a clone never reaches the original.
func TestSessionCloneIndependent(t *testing.T) {
	orig := Session{
		ID:   "a",
		Date: "2024-01-01",
		Exercises: []ExerciseBlock{
			{ID: "e1", Name: "Back Squat", Sets: []SetEntry{{ID: "s1", SetNumber: 1, WeightKg: N(100)}}},
		},
	}
	c := orig.Clone()
	c.Exercises[0].Name = "Front Squat"
	c.Exercises[0].Sets[0].WeightKg = N(80)

	if orig.Exercises[0].Name != "Back Squat" {
		t.Errorf("original exercise renamed to %q", orig.Exercises[0].Name)
	}
	if orig.Exercises[0].Sets[0].WeightKg.Value != 100 {
		t.Errorf("original weight changed to %v", orig.Exercises[0].Sets[0].WeightKg.Value)
	}
}

func TestValidRPE(t *testing.T) {
	for _, v := range []float64{6, 7.5, 10} {
		if !ValidRPE(v) {
			t.Errorf("ValidRPE(%v) = false", v)
		}
	}
	for _, v := range []float64{5.5, 7.25, 11, 0} {
		if ValidRPE(v) {
			t.Errorf("ValidRPE(%v) = true", v)
		}
	}
}
