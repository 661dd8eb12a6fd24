package models

// RPEScale is the discrete perceived-effort scale accepted by the editor.
var RPEScale = []float64{6, 6.5, 7, 7.5, 8, 8.5, 9, 9.5, 10}

// ValidRPE reports whether v is on RPEScale.
func ValidRPE(v float64) bool {
	for _, r := range RPEScale {
		if r == v {
			return true
		}
	}
	return false
}

// SetEntry is one logged set, or a group of SetsCount identical sets.
type SetEntry struct {
	ID          string `json:"id"`
	SetNumber   int    `json:"setNumber"`
	WeightKg    Num    `json:"weightKg"`
	Reps        Num    `json:"reps"`
	SetsCount   Num    `json:"setsCount"`
	RPE         Num    `json:"rpe"`
	IntervalSec Num    `json:"intervalSec"`
	DurationSec Num    `json:"durationSec"`
	Note        string `json:"note,omitempty"`
}

// Multiplier returns how many identical sets this row represents.
func (s SetEntry) Multiplier() float64 {
	return s.SetsCount.Or(1)
}

// Volume returns weight x reps x multiplier, or 0 when weight or reps is absent.
// Bodyweight and interval work is valid and simply carries no load.
func (s SetEntry) Volume() float64 {
	if !s.WeightKg.Valid || !s.Reps.Valid {
		return 0
	}
	return s.WeightKg.Value * s.Reps.Value * s.Multiplier()
}

// ExerciseBlock is one exercise within a session or template.
type ExerciseBlock struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Variant string     `json:"variant,omitempty"`
	Note    string     `json:"note,omitempty"`
	Sets    []SetEntry `json:"sets"`
}

// Clone returns a deep copy.
func (b ExerciseBlock) Clone() ExerciseBlock {
	c := b
	c.Sets = make([]SetEntry, len(b.Sets))
	copy(c.Sets, b.Sets)
	return c
}

// Session is one workout occurrence. Exercise order is user-meaningful.
type Session struct {
	ID           string          `json:"id"`
	Title        string          `json:"title,omitempty"`
	Date         string          `json:"date"` // yyyy-mm-dd
	StartTime    string          `json:"startTime,omitempty"`
	EndTime      string          `json:"endTime,omitempty"`
	BodyweightKg Num             `json:"bodyweightKg,omitzero"`
	Notes        string          `json:"notes,omitempty"`
	Exercises    []ExerciseBlock `json:"exercises"`
}

// Clone returns a deep copy.
func (s Session) Clone() Session {
	c := s
	c.Exercises = cloneBlocks(s.Exercises)
	return c
}

// Volume sums the volume of every set in the session.
func (s Session) Volume() float64 {
	var v float64
	for _, ex := range s.Exercises {
		for _, st := range ex.Sets {
			v += st.Volume()
		}
	}
	return v
}

// Template is a reusable exercise-list skeleton.
type Template struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Notes     string          `json:"notes,omitempty"`
	Exercises []ExerciseBlock `json:"exercises"`
}

// Clone returns a deep copy.
func (t Template) Clone() Template {
	c := t
	c.Exercises = cloneBlocks(t.Exercises)
	return c
}

// CloneSessions deep-copies a session collection. The result is never nil.
func CloneSessions(in []Session) []Session {
	out := make([]Session, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}

// CloneTemplates deep-copies a template collection. The result is never nil.
func CloneTemplates(in []Template) []Template {
	out := make([]Template, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}

func cloneBlocks(in []ExerciseBlock) []ExerciseBlock {
	out := make([]ExerciseBlock, len(in))
	for i, b := range in {
		out[i] = b.Clone()
	}
	return out
}
