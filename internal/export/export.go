// Package export writes backups as JSON and the filtered session list as CSV.
package export

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/claude/trelog/internal/backup"
	"github.com/claude/trelog/internal/models"
)

// Kind selects what a JSON export contains.
type Kind string

const (
	All       Kind = "all"
	Sessions  Kind = "sessions"
	Templates Kind = "templates"
)

var ErrUnknownKind = errors.New("unknown export kind")

// ParseKind parses an export kind. The empty string means All.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case All, Sessions, Templates:
		return k, nil
	case "":
		return All, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Build returns the envelope for kind.
func Build(kind Kind, sessions []models.Session, templates []models.Template, now time.Time) models.BackupFile {
	switch kind {
	case Sessions:
		return backup.SessionsOnly(sessions, now)
	case Templates:
		return backup.TemplatesOnly(templates, now)
	default:
		return backup.NewBackup(sessions, templates, now)
	}
}

// Filename returns the download name for a JSON export made on now's local date.
func Filename(kind Kind, now time.Time) string {
	name := "backup"
	switch kind {
	case Sessions:
		name = "sessions"
	case Templates:
		name = "templates"
	}
	return fmt.Sprintf("trelog-%s-%s.json", name, now.Format(time.DateOnly))
}

// CSVFilename returns the download name for a CSV export.
func CSVFilename(now time.Time) string {
	return fmt.Sprintf("trelog-filtered-%s.csv", now.Format(time.DateOnly))
}

// WriteJSON writes v indented by two spaces.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}
	return nil
}

// CSVHeader is the fixed column order.
var CSVHeader = []string{
	"date", "title", "exercise", "variant",
	"setNumber", "setsCount", "weightKg", "reps", "durationSec", "intervalSec", "rpe",
	"sessionNote", "exerciseNote", "setNote",
}

// CSVRows returns the header followed by one row per set. Absent numbers are
// empty; setsCount is always written, defaulting to 1.
func CSVRows(sessions []models.Session) [][]string {
	rows := [][]string{CSVHeader}
	for _, s := range sessions {
		for _, ex := range s.Exercises {
			for _, st := range ex.Sets {
				rows = append(rows, []string{
					s.Date,
					s.Title,
					ex.Name,
					ex.Variant,
					strconv.Itoa(st.SetNumber),
					strconv.FormatFloat(st.Multiplier(), 'f', -1, 64),
					st.WeightKg.String(),
					st.Reps.String(),
					st.DurationSec.String(),
					st.IntervalSec.String(),
					st.RPE.String(),
					s.Notes,
					ex.Note,
					st.Note,
				})
			}
		}
	}
	return rows
}

// WriteCSV writes CSVRows with every field quoted and embedded quotes
// doubled. Rows are separated by "\n" with no trailing newline.
func WriteCSV(w io.Writer, sessions []models.Session) error {
	bw := bufio.NewWriter(w)
	for i, row := range CSVRows(sessions) {
		if i > 0 {
			bw.WriteByte('\n')
		}
		for j, cell := range row {
			if j > 0 {
				bw.WriteByte(',')
			}
			bw.WriteByte('"')
			bw.WriteString(strings.ReplaceAll(cell, `"`, `""`))
			bw.WriteByte('"')
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	return nil
}
