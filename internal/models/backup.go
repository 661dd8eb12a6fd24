package models

// Backup envelope type tags and the current schema version.
const (
	BackupType     = "trelog-backup"
	AutoBackupType = "trelog-auto-backup"
	SchemaVersion  = 1
)

// BackupFile is the versioned backup envelope.
type BackupFile struct {
	Meta       *BackupMeta `json:"meta,omitempty"`
	Type       string      `json:"__type"`
	Version    int         `json:"version"`
	ExportedAt string      `json:"exportedAt"`
	Sessions   []Session   `json:"sessions"`
	Templates  []Template  `json:"templates,omitempty"`
}

// BackupMeta is informational and ignored on import.
type BackupMeta struct {
	AppName    string      `json:"appName"`
	AppVersion string      `json:"appVersion"`
	Counts     Counts      `json:"counts"`
	Stats      BackupStats `json:"stats"`
}

// BackupStats summarizes the exported history.
type BackupStats struct {
	TotalVolume float64   `json:"totalVolume"`
	DateRange   DateRange `json:"dateRange"`
}

// Counts holds per-category record counts.
type Counts struct {
	Sessions  int `json:"sessions"`
	Templates int `json:"templates"`
}

// DateRange is the min/max session date. Both are nil when there are no dated sessions.
type DateRange struct {
	Min *string `json:"min"`
	Max *string `json:"max"`
}
