package migration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_extension_uuid_ossp",
		SQL:  `CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	},
	{
		Name: "create_table_vehicles",
		SQL: `CREATE TABLE IF NOT EXISTS vehicles (
  id                UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  plate             TEXT        NOT NULL UNIQUE,
  make              TEXT,
  model             TEXT,
  year              INT,
  responsible_email TEXT,
  created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_documents",
		SQL: `CREATE TABLE IF NOT EXISTS documents (
  id             UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
  vehicle_id     UUID NOT NULL REFERENCES vehicles (id) ON DELETE CASCADE,
  doc_type       TEXT NOT NULL,
  valid_from     DATE,
  valid_to       DATE NOT NULL,
  note           TEXT,
  attachment_key TEXT
);`,
	},
	{
		Name: "create_table_notifications_log",
		SQL: `CREATE TABLE IF NOT EXISTS notifications_log (
  document_id    UUID        NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
  threshold_days INT         NOT NULL,
  sent_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (document_id, threshold_days)
);`,
	},
	{
		Name: "create_index_documents_vehicle_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_vehicle_id ON documents (vehicle_id);`,
	},
	{
		Name: "create_index_documents_valid_to",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_valid_to ON documents (valid_to);`,
	},
	{
		Name: "create_index_notifications_log_document_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_notifications_log_document_id ON notifications_log (document_id);`,
	},
}

// EnsureMigrated checks if the 'vehicles' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, loc *time.Location, dbHost string) error {
	start := time.Now()

	logJSON(loc, map[string]any{
		"component": "database",
		"event":     "db_migration_check",
		"status":    "starting",
		"db_host":   dbHost,
	})

	var exists bool
	query := "SELECT to_regclass('public.vehicles') IS NOT NULL"
	err := db.QueryRowContext(ctx, query).Scan(&exists)
	if err != nil {
		logJSON(loc, map[string]any{
			"component":     "database",
			"event":         "db_migration_failed",
			"status":        "error",
			"error_message": fmt.Sprintf("failed to check sentinel table: %v", err),
			"db_host":       dbHost,
			"duration_ms":   time.Since(start).Milliseconds(),
		})
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		logJSON(loc, map[string]any{
			"component":   "database",
			"event":       "db_migration_skip",
			"status":      "success",
			"msg":         "schema already exists, skipping migration",
			"db_host":     dbHost,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil
	}

	logJSON(loc, map[string]any{
		"component": "database",
		"event":     "db_migration_start",
		"status":    "in_progress",
		"db_host":   dbHost,
	})

	for _, step := range steps {
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			logJSON(loc, map[string]any{
				"component":     "database",
				"event":         "db_migration_failed",
				"status":        "error",
				"step":          step.Name,
				"error_message": err.Error(),
				"db_host":       dbHost,
				"duration_ms":   time.Since(start).Milliseconds(),
			})
			return fmt.Errorf("migration step %s: %w", step.Name, err)
		}
	}

	logJSON(loc, map[string]any{
		"component":   "database",
		"event":       "db_migration_success",
		"status":      "success",
		"db_host":     dbHost,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return nil
}

func logJSON(loc *time.Location, data map[string]any) {
	data["ts"] = time.Now().In(loc).Format(time.RFC3339Nano)
	if _, ok := data["level"]; !ok {
		if data["status"] == "error" {
			data["level"] = "error"
		} else {
			data["level"] = "info"
		}
	}

	b, err := json.Marshal(data)
	if err != nil {
		log.Printf("failed to marshal migration log: %v", err)
		return
	}
	log.SetFlags(0)
	log.Println(string(b))
}
