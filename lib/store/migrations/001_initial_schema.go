package migrations

import (
	"database/sql"
)

// GetMigrations returns all available migrations
func GetMigrations() []Migration {
	return []Migration{
		migration001InitialSchema(),
		migration002BranchIndex(),
	}
}

// migration001InitialSchema creates the version log, branch pointer and
// published pointer tables
func migration001InitialSchema() Migration {
	return Migration{
		Version:     1,
		Description: "Initial schema - version log, branches, published pointers",
		Up: func(db *sql.DB, dialect Dialect) error {
			var queries []string

			switch dialect {
			case DialectPostgres:
				queries = getPostgresInitialSchema()
			default:
				queries = getSQLiteInitialSchema()
			}

			for _, query := range queries {
				if _, err := db.Exec(query); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func getSQLiteInitialSchema() []string {
	return []string{
		// VERSION LOG (append-only)
		`CREATE TABLE IF NOT EXISTS content_version (
			content_path TEXT NOT NULL,
			id TEXT NOT NULL,
			branch_id TEXT NOT NULL,
			parent_ids TEXT,
			content TEXT NOT NULL,
			changes TEXT,
			author TEXT,
			status TEXT NOT NULL DEFAULT 'draft',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (content_path, id)
		)`,

		// BRANCH POINTERS
		`CREATE TABLE IF NOT EXISTS branch (
			content_path TEXT NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			base_version_id TEXT NOT NULL DEFAULT '',
			head_version_id TEXT NOT NULL DEFAULT '',
			created_by TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (content_path, id),
			UNIQUE (content_path, name)
		)`,

		// PUBLISHED POINTERS
		`CREATE TABLE IF NOT EXISTS published_content (
			content_path TEXT PRIMARY KEY,
			version_id TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}
}

func getPostgresInitialSchema() []string {
	return []string{
		// VERSION LOG (append-only); seq fixes the scan order
		`CREATE TABLE IF NOT EXISTS content_version (
			seq BIGSERIAL,
			content_path TEXT NOT NULL,
			id TEXT NOT NULL,
			branch_id TEXT NOT NULL,
			parent_ids TEXT,
			content TEXT NOT NULL,
			changes TEXT,
			author TEXT,
			status TEXT NOT NULL DEFAULT 'draft',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (content_path, id)
		)`,

		// BRANCH POINTERS
		`CREATE TABLE IF NOT EXISTS branch (
			content_path TEXT NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			base_version_id TEXT NOT NULL DEFAULT '',
			head_version_id TEXT NOT NULL DEFAULT '',
			created_by TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (content_path, id),
			UNIQUE (content_path, name)
		)`,

		// PUBLISHED POINTERS
		`CREATE TABLE IF NOT EXISTS published_content (
			content_path TEXT PRIMARY KEY,
			version_id TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}
}

// migration002BranchIndex speeds up per-branch history scans
func migration002BranchIndex() Migration {
	return Migration{
		Version:     2,
		Description: "Index version rows by branch",
		Up: func(db *sql.DB, dialect Dialect) error {
			_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_content_version_branch
				ON content_version (content_path, branch_id)`)
			return err
		},
	}
}
