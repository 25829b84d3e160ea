package postgresql

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/quarryhq/quarry/pkg/persistence/sqlbase"
)

func runMigrations(ctx context.Context, logger *slog.Logger, db *sql.DB) error {
	return sqlbase.NewMigrationManager(logger, db, migrations()).RunMigrations(ctx)
}

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS statuses (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				category TEXT NOT NULL CHECK (category IN ('todo', 'in_progress', 'done'))
			);

			CREATE TABLE IF NOT EXISTS workflows (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				is_draft BOOLEAN NOT NULL DEFAULT FALSE,
				draft_of TEXT REFERENCES workflows(id) ON DELETE CASCADE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE UNIQUE INDEX IF NOT EXISTS workflows_one_draft_per_published
				ON workflows (draft_of) WHERE draft_of IS NOT NULL;

			CREATE TABLE IF NOT EXISTS workflow_steps (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				status_id TEXT NOT NULL,
				position INTEGER NOT NULL DEFAULT 0,
				CONSTRAINT workflow_steps_status_once UNIQUE (workflow_id, status_id)
			);

			CREATE TABLE IF NOT EXISTS workflow_transitions (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				from_status_id TEXT NOT NULL,
				to_status_id TEXT NOT NULL,
				rule_ref TEXT NOT NULL DEFAULT '',
				CONSTRAINT workflow_transitions_edge_once UNIQUE (workflow_id, from_status_id, to_status_id)
			);

			CREATE TABLE IF NOT EXISTS projects (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				workflow_id TEXT NOT NULL REFERENCES workflows(id)
			);

			CREATE TABLE IF NOT EXISTS issues (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				status_id TEXT NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS issues_project_status
				ON issues (project_id, status_id);

			CREATE TABLE IF NOT EXISTS boards (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				name TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS board_columns (
				id TEXT PRIMARY KEY,
				board_id TEXT NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				position INTEGER NOT NULL DEFAULT 0,
				min_issues INTEGER,
				max_issues INTEGER
			);

			CREATE TABLE IF NOT EXISTS board_column_statuses (
				column_id TEXT NOT NULL REFERENCES board_columns(id) ON DELETE CASCADE,
				status_id TEXT NOT NULL,
				PRIMARY KEY (column_id, status_id)
			);
		`,
	}
}
