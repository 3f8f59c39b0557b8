// Package migration applies the gorm schema followed by the embedded SQL
// files, each at most once.
package migration

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/Ayash-Bera/querygen/internal/database"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

//go:embed sql/*.sql
var embedded embed.FS

// Files returns the SQL migrations shipped with the binary.
func Files() fs.FS {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

// SchemaMigration records an applied SQL file.
type SchemaMigration struct {
	Name      string `gorm:"primaryKey;type:varchar(255)"`
	AppliedAt time.Time
}

func (SchemaMigration) TableName() string { return "schema_migrations" }

type Runner struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewRunner(db *gorm.DB, logger *logrus.Logger) *Runner {
	return &Runner{
		db:     db,
		logger: logger,
	}
}

// RunMigrations executes all pending migrations and returns the names of
// the SQL files applied by this call.
func (r *Runner) RunMigrations(ctx context.Context, files fs.FS) ([]string, error) {
	r.logger.Info("Starting database migrations...")

	if err := database.AutoMigrate(r.db.WithContext(ctx)); err != nil {
		return nil, fmt.Errorf("gorm auto-migration failed: %w", err)
	}
	if err := r.db.WithContext(ctx).AutoMigrate(&SchemaMigration{}); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied, err := r.runSQLMigrations(ctx, files)
	if err != nil {
		return applied, fmt.Errorf("SQL migrations failed: %w", err)
	}

	r.logger.WithField("applied", len(applied)).Info("Database migrations completed successfully")
	return applied, nil
}

// Pending lists SQL files that have not been applied yet.
func (r *Runner) Pending(ctx context.Context, files fs.FS) ([]string, error) {
	names, err := sqlFiles(files)
	if err != nil {
		return nil, err
	}

	var done []SchemaMigration
	if r.db.Migrator().HasTable(&SchemaMigration{}) {
		if err := r.db.WithContext(ctx).Find(&done).Error; err != nil {
			return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
		}
	}
	seen := make(map[string]bool, len(done))
	for _, m := range done {
		seen[m.Name] = true
	}

	var pending []string
	for _, name := range names {
		if !seen[name] {
			pending = append(pending, name)
		}
	}
	return pending, nil
}

func (r *Runner) runSQLMigrations(ctx context.Context, files fs.FS) ([]string, error) {
	pending, err := r.Pending(ctx, files)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, name := range pending {
		content, err := fs.ReadFile(files, name)
		if err != nil {
			return applied, fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for i, stmt := range splitSQLStatements(string(content)) {
				r.logger.WithFields(logrus.Fields{
					"file":      name,
					"statement": i + 1,
				}).Debug("Executing SQL statement")

				if err := tx.Exec(stmt).Error; err != nil {
					return fmt.Errorf("statement %d: %w", i+1, err)
				}
			}
			return tx.Create(&SchemaMigration{Name: name, AppliedAt: time.Now()}).Error
		})
		if err != nil {
			return applied, fmt.Errorf("failed to run migration %s: %w", name, err)
		}

		applied = append(applied, name)
		r.logger.WithField("file", name).Info("Migration executed successfully")
	}
	return applied, nil
}

func sqlFiles(files fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && path.Ext(e.Name()) == ".sql" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// splitSQLStatements drops comment lines and splits on semicolons.
func splitSQLStatements(sql string) []string {
	var cleaned []string
	for _, line := range strings.Split(sql, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			cleaned = append(cleaned, line)
		}
	}

	var result []string
	for _, stmt := range strings.Split(strings.Join(cleaned, " "), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			result = append(result, stmt)
		}
	}
	return result
}
