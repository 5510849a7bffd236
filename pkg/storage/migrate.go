package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"chatsync/pkg/logger"
)

const (
	schemaVersionKey = "system:schema_version"
	inProgressKey    = "system:migration_in_progress"
)

// Migration rewrites stored values from an older schema. Migrations must
// be idempotent; a crash mid-run leaves the in-progress marker and the
// whole set reruns on next start.
type Migration func(s Store) error

// Migrate checks the stored schema version and runs the migration set
// when it changed. Returns true if migrations ran.
func Migrate(s Store, newVersion string, migrations ...Migration) (bool, error) {
	stored := ""
	if v, err := s.Read(schemaVersionKey); err == nil {
		stored = string(v)
	} else if !IsNotFound(err) {
		return false, fmt.Errorf("read schema version: %w", err)
	}
	if stored == newVersion {
		logger.Debug("migration_noop", "version", newVersion)
		return false, nil
	}

	marker, _ := json.Marshal(map[string]string{
		"from":       stored,
		"to":         newVersion,
		"started_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err := s.Write(inProgressKey, marker); err != nil {
		return true, fmt.Errorf("write in-progress marker: %w", err)
	}

	logger.Info("migration_start", "from", stored, "to", newVersion)
	for _, m := range migrations {
		if err := m(s); err != nil {
			logger.Error("migration_failed", "from", stored, "to", newVersion, "error", err)
			return true, err
		}
	}

	if err := s.Write(schemaVersionKey, []byte(newVersion)); err != nil {
		return true, fmt.Errorf("persist schema version: %w", err)
	}
	if err := s.Delete(inProgressKey); err != nil {
		logger.Warn("migration_marker_cleanup_failed", "error", err)
	}
	logger.Info("migration_done", "version", newVersion)
	return true, nil
}
