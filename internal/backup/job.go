// Package backup performs a single WAL or base backup and captures its outcome.
package backup

import (
	"fmt"
	"path/filepath"
)

// Variant selects how a job is backed up.
type Variant string

const (
	// VariantCopy copies the source file verbatim.
	VariantCopy Variant = "plain-copy"
	// VariantArchive stores the source file as the single entry of a zip archive.
	VariantArchive Variant = "archive"
	// VariantFull delegates to pg_basebackup.
	VariantFull Variant = "external-full"
)

// FullBackupFilename is the logical filename reported for full backups.
const FullBackupFilename = "FULL COPY"

// ParseVariant maps a CLI subcommand and the zip flag to a Variant.
func ParseVariant(command string, zip bool) (Variant, error) {
	switch command {
	case "wal":
		if zip {
			return VariantArchive, nil
		}
		return VariantCopy, nil
	case "full":
		return VariantFull, nil
	default:
		return "", fmt.Errorf("unknown backup command %q", command)
	}
}

// Job describes one backup invocation. It is not modified once built.
type Job struct {
	Source   string
	DestDir  string
	Filename string
	Variant  Variant
	// Zip requests compression. For WAL jobs it also selects VariantArchive;
	// for full jobs it is passed through to pg_basebackup.
	Zip bool

	CollectorHost string
	Password      string
	IndexName     string
	SourceHost    string

	// DBConnString is handed to pg_basebackup --dbname (full backups only).
	DBConnString string
	// Verbose adds progress and verbose flags to pg_basebackup.
	Verbose bool
}

// LogicalName returns the name the backup is stored and reported under.
func (j Job) LogicalName() string {
	if j.Variant == VariantFull {
		return FullBackupFilename
	}
	if j.Filename != "" {
		return j.Filename
	}
	return filepath.Base(j.Source)
}

// ReportedSource returns the source path to report. Full backups have none.
func (j Job) ReportedSource() string {
	if j.Variant == VariantFull {
		return ""
	}
	return j.Source
}

// DestPath returns the path of the file a WAL job writes.
func (j Job) DestPath() string {
	return filepath.Join(j.DestDir, j.LogicalName())
}
