package postgres

import (
	"context"
	"embed"
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLockID is the advisory lock key serializing migrations across
// processes (for example serve and import starting together).
const migrationLockID = 7283910442

var migrationNameRe = regexp.MustCompile(`^(\d{3})_[a-z0-9_]+\.sql$`)

// migration is one embedded schema change. Name doubles as the recorded
// version so existing schema_migrations rows stay valid.
type migration struct {
	Seq  int
	Name string
	SQL  string
}

// parseMigrationName returns the sequence number of a migration file.
func parseMigrationName(name string) (int, error) {
	m := migrationNameRe.FindStringSubmatch(name)
	if m == nil {
		return 0, fmt.Errorf("migration %q does not match NNN_name.sql", name)
	}
	return strconv.Atoi(m[1])
}

// loadMigrations reads the embedded migrations ordered by sequence number.
// Duplicate sequence numbers are rejected.
func loadMigrations() ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	seen := make(map[int]string, len(entries))
	migrations := make([]migration, 0, len(entries))
	for _, e := range entries {
		seq, err := parseMigrationName(e.Name())
		if err != nil {
			return nil, err
		}
		if other, ok := seen[seq]; ok {
			return nil, fmt.Errorf("migrations %s and %s share sequence %03d", other, e.Name(), seq)
		}
		seen[seq] = e.Name()

		content, err := migrationsFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		migrations = append(migrations, migration{Seq: seq, Name: e.Name(), SQL: string(content)})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Seq < migrations[j].Seq })
	return migrations, nil
}

// Migrate applies pending migrations, each in its own transaction holding
// the migration advisory lock. Whether a migration is pending is checked
// under the lock so concurrent starts apply it once.
func (p *Pool) Migrate(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	if _, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	for _, m := range migrations {
		applied, err := p.applyMigration(ctx, m)
		if err != nil {
			return err
		}
		if applied {
			fmt.Printf("Applied migration: %s\n", m.Name)
		}
	}
	return nil
}

func (p *Pool) applyMigration(ctx context.Context, m migration) (bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction for %s: %w", m.Name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
		return false, fmt.Errorf("lock migrations: %w", err)
	}

	var done bool
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)", m.Name,
	).Scan(&done); err != nil {
		return false, fmt.Errorf("check migration %s: %w", m.Name, err)
	}
	if done {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return false, fmt.Errorf("execute migration %s: %w", m.Name, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Name); err != nil {
		return false, fmt.Errorf("record migration %s: %w", m.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", m.Name, err)
	}
	return true, nil
}

// MigrationsApplied returns the recorded migrations in order.
func (p *Pool) MigrationsApplied(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}
