package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

//go:embed sql/create_schema.sql
var createSchemaSQL string

//go:embed sql/run_indexes.sql
var runIndexesSQL string

type migrationStep struct {
	name string
	run  func(tx *gorm.DB) error
}

// migrationSteps creates the lingo schema, the run history tables and their
// indexes. Every step is idempotent so the list runs on each startup.
func migrationSteps() []migrationStep {
	return []migrationStep{
		{name: "create schema", run: execSQL(createSchemaSQL)},
		{name: "auto-migrate run history", run: func(tx *gorm.DB) error {
			return tx.AutoMigrate(autoMigrateModels()...)
		}},
		{name: "run history indexes", run: execSQL(runIndexesSQL)},
	}
}

func (p *Pool) autoMigrate(ctx context.Context) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	session := p.gdb.WithContext(ctx)
	for _, step := range migrationSteps() {
		if err := step.run(session); err != nil {
			return fmt.Errorf("migrate %s: %w", step.name, err)
		}
	}
	return nil
}

func execSQL(sqlText string) func(tx *gorm.DB) error {
	trimmed := strings.TrimSpace(sqlText)
	return func(tx *gorm.DB) error {
		if trimmed == "" {
			return nil
		}
		return tx.Exec(trimmed).Error
	}
}
