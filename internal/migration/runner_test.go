package migration

import (
	"context"
	"io"
	"testing"
	"testing/fstest"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newRunner(t *testing.T) (*Runner, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewRunner(db, l), db
}

func TestRunMigrations_EmbeddedFilesApplyOnce(t *testing.T) {
	ctx := context.Background()
	runner, db := newRunner(t)

	applied, err := runner.RunMigrations(ctx, Files())
	require.NoError(t, err)
	assert.Equal(t, []string{"001_generation_indexes.sql", "002_template_ranking.sql"}, applied)

	assert.True(t, db.Migrator().HasTable("generated_queries"))
	assert.True(t, db.Migrator().HasIndex("generated_queries", "idx_generated_queries_search_status"))
	assert.True(t, db.Migrator().HasIndex("query_templates", "idx_query_templates_active_type_priority"))

	again, err := runner.RunMigrations(ctx, Files())
	require.NoError(t, err)
	assert.Empty(t, again)

	pending, err := runner.Pending(ctx, Files())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunMigrations_FailedFileIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	runner, _ := newRunner(t)

	files := fstest.MapFS{
		"001_ok.sql":     {Data: []byte("CREATE TABLE extra (id INTEGER);")},
		"002_broken.sql": {Data: []byte("-- typo\nCREATE TABLEE nope (id INTEGER);")},
		"notes.txt":      {Data: []byte("ignored")},
	}

	applied, err := runner.RunMigrations(ctx, files)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "002_broken.sql")
	assert.Equal(t, []string{"001_ok.sql"}, applied)

	pending, err := runner.Pending(ctx, files)
	require.NoError(t, err)
	assert.Equal(t, []string{"002_broken.sql"}, pending)
}

func TestSplitSQLStatements(t *testing.T) {
	sql := `-- header
CREATE INDEX a ON t (x);

-- second
CREATE INDEX b
    ON t (y);
`
	assert.Equal(t, []string{"CREATE INDEX a ON t (x)", "CREATE INDEX b ON t (y)"}, splitSQLStatements(sql))
}
