package migrate

// v0ToV1 rebuilds every record field by field. Missing identifiers are
// generated, missing text becomes "", missing numbers become "" (absent) and a
// missing setsCount becomes 1. Present values are kept as they are, even when
// wrongly typed; the decoder and the analyzer deal with those.
func v0ToV1(doc map[string]any, newID func() string) map[string]any {
	out := copyMap(doc)

	rawSessions := asSlice(doc["sessions"])
	sessions := make([]any, 0, len(rawSessions))
	for _, s := range rawSessions {
		sessions = append(sessions, sessionV0(asMap(s), newID))
	}
	out["sessions"] = sessions

	rawTemplates := asSlice(doc["templates"])
	templates := make([]any, 0, len(rawTemplates))
	for _, t := range rawTemplates {
		templates = append(templates, templateV0(asMap(t), newID))
	}
	out["templates"] = templates
	out["version"] = float64(1)
	return out
}

func sessionV0(s map[string]any, newID func() string) map[string]any {
	out := copyMap(s)
	out["id"] = orID(s, newID)
	out["date"] = or(s, "date", "")
	out["title"] = or(s, "title", "")
	out["notes"] = or(s, "notes", "")
	out["exercises"] = exercisesV0(s["exercises"], newID)
	return out
}

func templateV0(t map[string]any, newID func() string) map[string]any {
	out := copyMap(t)
	out["id"] = orID(t, newID)
	out["name"] = or(t, "name", "")
	// Early templates called their notes "description".
	out["notes"] = or(t, "notes", or(t, "description", ""))
	delete(out, "description")
	out["exercises"] = exercisesV0(t["exercises"], newID)
	return out
}

func exercisesV0(v any, newID func() string) []any {
	raw := asSlice(v)
	out := make([]any, 0, len(raw))
	for _, e := range raw {
		ex := asMap(e)
		m := copyMap(ex)
		m["id"] = orID(ex, newID)
		m["name"] = or(ex, "name", "")
		m["variant"] = or(ex, "variant", "")
		m["note"] = or(ex, "note", "")

		rawSets := asSlice(ex["sets"])
		sets := make([]any, 0, len(rawSets))
		for i, st := range rawSets {
			sets = append(sets, setV0(asMap(st), i, newID))
		}
		m["sets"] = sets
		out = append(out, m)
	}
	return out
}

func setV0(st map[string]any, i int, newID func() string) map[string]any {
	out := copyMap(st)
	out["id"] = orID(st, newID)
	out["setNumber"] = or(st, "setNumber", float64(i+1))
	out["weightKg"] = or(st, "weightKg", "")
	out["reps"] = or(st, "reps", "")
	out["durationSec"] = or(st, "durationSec", "")
	out["setsCount"] = or(st, "setsCount", float64(1))
	out["intervalSec"] = or(st, "intervalSec", "")
	out["rpe"] = or(st, "rpe", "")
	out["note"] = or(st, "note", "")
	return out
}

func orID(m map[string]any, newID func() string) any {
	if v, ok := m["id"]; ok && v != nil {
		return v
	}
	return newID()
}

// or returns m[key] unless it is missing or null.
func or(m map[string]any, key string, def any) any {
	if v, ok := m[key]; ok && v != nil {
		return v
	}
	return def
}
