package backup

import (
	"time"

	"github.com/claude/trelog/internal/models"
)

// Application identity written into export meta.
const (
	AppName    = "trelog-mvp"
	AppVersion = "0.1.0"
)

// NewBackup builds a full export envelope with informational meta.
func NewBackup(sessions []models.Session, templates []models.Template, now time.Time) models.BackupFile {
	var volume float64
	for _, s := range sessions {
		volume += s.Volume()
	}
	return models.BackupFile{
		Meta: &models.BackupMeta{
			AppName:    AppName,
			AppVersion: AppVersion,
			Counts:     models.Counts{Sessions: len(sessions), Templates: len(templates)},
			Stats: models.BackupStats{
				TotalVolume: volume,
				DateRange:   DateRangeOf(sessions),
			},
		},
		Type:       models.BackupType,
		Version:    models.SchemaVersion,
		ExportedAt: timestamp(now),
		Sessions:   models.CloneSessions(sessions),
		Templates:  models.CloneTemplates(templates),
	}
}

// SessionsOnly builds an envelope without templates.
func SessionsOnly(sessions []models.Session, now time.Time) models.BackupFile {
	return models.BackupFile{
		Type:       models.BackupType,
		Version:    models.SchemaVersion,
		ExportedAt: timestamp(now),
		Sessions:   models.CloneSessions(sessions),
	}
}

// TemplatesOnly builds an envelope with an empty session list.
func TemplatesOnly(templates []models.Template, now time.Time) models.BackupFile {
	return models.BackupFile{
		Type:       models.BackupType,
		Version:    models.SchemaVersion,
		ExportedAt: timestamp(now),
		Sessions:   []models.Session{},
		Templates:  models.CloneTemplates(templates),
	}
}

// NewAutoBackup builds the periodic snapshot envelope.
func NewAutoBackup(sessions []models.Session, templates []models.Template, now time.Time) models.BackupFile {
	return models.BackupFile{
		Type:       models.AutoBackupType,
		Version:    models.SchemaVersion,
		ExportedAt: timestamp(now),
		Sessions:   models.CloneSessions(sessions),
		Templates:  models.CloneTemplates(templates),
	}
}

func timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
