package migrate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/litekeeper/litekeeper/internal/storage"
)

// Report bundles one migration result with the manager's aggregate
// statistics and plain-language guidance, in the same layout the
// integrity reports use.
type Report struct {
	MigrationID     string     `json:"migration_id"`
	GeneratedAt     time.Time  `json:"generated_at"`
	Result          Result     `json:"result"`
	Aggregate       Statistics `json:"aggregate"`
	Recommendations []string   `json:"recommendations"`
}

// BuildReport bundles a finished migration with the aggregate
// statistics at the time of the call.
func (m *Manager) BuildReport(res *Result) *Report {
	return &Report{
		MigrationID:     res.ID,
		GeneratedAt:     time.Now().UTC(),
		Result:          *res,
		Aggregate:       m.Statistics(),
		Recommendations: migrationRecommendations(res),
	}
}

// WriteReport saves a report as JSON under reports/ beside the source
// database and returns the file path.
func (m *Manager) WriteReport(rep *Report) (string, error) {
	dir := filepath.Join(filepath.Dir(rep.Result.SourcePath), "reports")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}
	name := fmt.Sprintf("migration_report_%s.json", rep.GeneratedAt.Format(stampFormat))
	path := filepath.Join(dir, name)
	if err := storage.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	m.logger.Info("migration report written", "path", path)
	return path, nil
}

// migrationRecommendations produces the guidance attached to a report.
// The texts are fixed; nothing here is acted on automatically.
func migrationRecommendations(res *Result) []string {
	switch {
	case res.Success:
		return []string{
			"point database.preferred_path at the new location",
			"keep the pre-migration backup until the new location has been used successfully",
		}
	case res.Status == StatusRolledBack:
		return []string{
			"the source database is unchanged; investigate the failure before retrying",
			"check free space and permissions at the target location",
		}
	default:
		return []string{
			"the target may be incomplete; remove it or re-run with rollback enabled",
			"the source database is unchanged",
		}
	}
}
