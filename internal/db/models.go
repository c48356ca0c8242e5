package db

import "time"

// AnnotationRun maps lingo.annotation_runs.
type AnnotationRun struct {
	RunID         int64     `gorm:"column:run_id;primaryKey;autoIncrement"`
	RunUUID       string    `gorm:"column:run_uuid;type:uuid;not null;unique"`
	Filename      string    `gorm:"column:filename;type:text;not null;default:''"`
	StoredPath    string    `gorm:"column:stored_path;type:text;not null;default:''"`
	SourceColumn  string    `gorm:"column:source_column;type:text;not null"`
	Status        string    `gorm:"column:status;type:text;not null"`
	ErrorMessage  *string   `gorm:"column:error_message;type:text"`
	FailFast      bool      `gorm:"column:fail_fast;not null;default:false"`
	RowsTotal     int       `gorm:"column:rows_total;type:integer;not null;default:0"`
	RowsAnnotated int       `gorm:"column:rows_annotated;type:integer;not null;default:0"`
	RowsFailed    int       `gorm:"column:rows_failed;type:integer;not null;default:0"`
	StartedAt     time.Time `gorm:"column:started_at;type:timestamptz;not null"`
	FinishedAt    time.Time `gorm:"column:finished_at;type:timestamptz;not null"`
	DurationMS    int64     `gorm:"column:duration_ms;type:bigint;not null;default:0"`
	CreatedAt     time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (AnnotationRun) TableName() string { return "lingo.annotation_runs" }

// AnnotationFailure maps lingo.annotation_failures.
type AnnotationFailure struct {
	FailureID    int64     `gorm:"column:failure_id;primaryKey;autoIncrement"`
	RunUUID      string    `gorm:"column:run_uuid;type:uuid;not null;index"`
	RowIndex     int       `gorm:"column:row_index;type:integer;not null"`
	Stage        string    `gorm:"column:stage;type:text;not null"`
	ErrorMessage string    `gorm:"column:error_message;type:text;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (AnnotationFailure) TableName() string { return "lingo.annotation_failures" }

func autoMigrateModels() []any {
	return []any{
		&AnnotationRun{},
		&AnnotationFailure{},
	}
}
