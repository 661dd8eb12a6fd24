package migrate

import "github.com/claude/trelog/internal/models"

func decodeSessions(v any) []models.Session {
	raw := asSlice(v)
	out := make([]models.Session, 0, len(raw))
	for _, item := range raw {
		m := asMap(item)
		out = append(out, models.Session{
			ID:           str(m["id"]),
			Title:        str(m["title"]),
			Date:         str(m["date"]),
			StartTime:    str(m["startTime"]),
			EndTime:      str(m["endTime"]),
			BodyweightKg: models.NumFrom(m["bodyweightKg"]),
			Notes:        str(m["notes"]),
			Exercises:    decodeBlocks(m["exercises"]),
		})
	}
	return out
}

func decodeTemplates(v any) []models.Template {
	raw := asSlice(v)
	out := make([]models.Template, 0, len(raw))
	for _, item := range raw {
		m := asMap(item)
		out = append(out, models.Template{
			ID:        str(m["id"]),
			Name:      str(m["name"]),
			Notes:     str(m["notes"]),
			Exercises: decodeBlocks(m["exercises"]),
		})
	}
	return out
}

func decodeBlocks(v any) []models.ExerciseBlock {
	raw := asSlice(v)
	out := make([]models.ExerciseBlock, 0, len(raw))
	for _, item := range raw {
		m := asMap(item)
		rawSets := asSlice(m["sets"])
		sets := make([]models.SetEntry, 0, len(rawSets))
		for i, s := range rawSets {
			sets = append(sets, decodeSet(asMap(s), i))
		}
		out = append(out, models.ExerciseBlock{
			ID:      str(m["id"]),
			Name:    str(m["name"]),
			Variant: str(m["variant"]),
			Note:    str(m["note"]),
			Sets:    sets,
		})
	}
	return out
}

func decodeSet(m map[string]any, i int) models.SetEntry {
	setNumber := i + 1
	if n := models.NumFrom(m["setNumber"]); n.Valid {
		setNumber = int(n.Value)
	}
	return models.SetEntry{
		ID:          str(m["id"]),
		SetNumber:   setNumber,
		WeightKg:    models.NumFrom(m["weightKg"]),
		Reps:        models.NumFrom(m["reps"]),
		SetsCount:   models.NumFrom(m["setsCount"]),
		RPE:         models.NumFrom(m["rpe"]),
		IntervalSec: models.NumFrom(m["intervalSec"]),
		DurationSec: models.NumFrom(m["durationSec"]),
		Note:        str(m["note"]),
	}
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func asSlice(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	return nil
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
