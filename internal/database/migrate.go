package database

import (
	"fmt"

	"taskboard/internal/models"
)

const tagsArrayConstraint = "chk_tasks_tags_array"

// sqlite has no JSON column type, so the tags column is guarded by
// triggers. Scan relies on every stored value being a JSON array.
var sqliteTagsGuards = []string{
	`CREATE TRIGGER IF NOT EXISTS trg_tasks_tags_insert BEFORE INSERT ON tasks
	WHEN NOT json_valid(NEW.tags) OR json_type(NEW.tags) <> 'array'
	BEGIN SELECT RAISE(ABORT, 'tags must be a JSON array'); END`,
	`CREATE TRIGGER IF NOT EXISTS trg_tasks_tags_update BEFORE UPDATE OF tags ON tasks
	WHEN NOT json_valid(NEW.tags) OR json_type(NEW.tags) <> 'array'
	BEGIN SELECT RAISE(ABORT, 'tags must be a JSON array'); END`,
}

// Migrate creates or updates the tasks table and the tags guard for the
// dialect. On postgres it also adds a GIN index so tag containment
// queries can use it.
func (p *DatabasePool) Migrate() error {
	if p.DB == nil {
		return fmt.Errorf("database not initialized")
	}

	if err := p.DB.AutoMigrate(&models.Task{}); err != nil {
		return fmt.Errorf("failed to migrate tasks table: %w", err)
	}

	switch p.Dialect() {
	case DriverPostgres:
		if err := p.DB.Exec("CREATE INDEX IF NOT EXISTS idx_tasks_tags ON tasks USING GIN (tags)").Error; err != nil {
			return fmt.Errorf("failed to create tags index: %w", err)
		}
		if !p.DB.Migrator().HasConstraint(&models.Task{}, tagsArrayConstraint) {
			stmt := fmt.Sprintf("ALTER TABLE tasks ADD CONSTRAINT %s CHECK (jsonb_typeof(tags) = 'array')", tagsArrayConstraint)
			if err := p.DB.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to add tags constraint: %w", err)
			}
		}
	case DriverSQLite:
		for _, stmt := range sqliteTagsGuards {
			if err := p.DB.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to add tags guard: %w", err)
			}
		}
	}

	return nil
}
