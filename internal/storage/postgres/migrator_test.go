package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func sqlFile(body string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(body)}
}

func TestLoadMigrationsFromFS_SortsPairs(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0002_more.up.sql":   sqlFile("CREATE TABLE test_b (id INT);"),
		"sql/migrations/0002_more.down.sql": sqlFile("DROP TABLE IF EXISTS test_b;"),
		"sql/migrations/0001_init.up.sql":   sqlFile("CREATE TABLE test_a (id INT);"),
		"sql/migrations/0001_init.down.sql": sqlFile("DROP TABLE IF EXISTS test_a;"),
		"sql/migrations/README.md":          sqlFile("not a migration"),
	}

	migrations, err := loadMigrationsFromFS(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	require.Equal(t, int64(1), migrations[0].Version)
	require.Equal(t, "init", migrations[0].Name)
	require.Equal(t, "0002_more", migrations[1].label())
	require.Equal(t, "DROP TABLE IF EXISTS test_b;", migrations[1].DownSQL)
}

func TestLoadMigrationsFromFS_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fsys    fstest.MapFS
		wantErr string
	}{
		{
			name:    "missing down",
			fsys:    fstest.MapFS{"sql/migrations/0001_init.up.sql": sqlFile("SELECT 1;")},
			wantErr: "both up and down",
		},
		{
			name:    "bad file name",
			fsys:    fstest.MapFS{"sql/migrations/not_a_migration.sql": sqlFile("SELECT 1;")},
			wantErr: "invalid migration file name",
		},
		{
			name: "empty body",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":   sqlFile("   \n"),
				"sql/migrations/0001_init.down.sql": sqlFile("DROP TABLE test;"),
			},
			wantErr: "empty",
		},
		{
			name: "name mismatch",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":    sqlFile("SELECT 1;"),
				"sql/migrations/0001_other.down.sql": sqlFile("SELECT 1;"),
			},
			wantErr: "name mismatch",
		},
		{
			name:    "no directory",
			fsys:    fstest.MapFS{},
			wantErr: "list migrations",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := loadMigrationsFromFS(tt.fsys)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadMigrationsFromFS_Embedded(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(migrationsFS)
	require.NoError(t, err)
	require.Len(t, migrations, 3)
	for i, m := range migrations {
		require.Equal(t, int64(i+1), m.Version, "migrations must be contiguous")
	}
	require.Contains(t, migrations[0].UpSQL, "stock_level INTEGER NOT NULL CHECK (stock_level >= 0)")
}

func TestPlanMigrations(t *testing.T) {
	t.Parallel()

	all := []migration{
		{Version: 1, Name: "a"},
		{Version: 2, Name: "b"},
		{Version: 3, Name: "c"},
	}
	versions := func(plan []migration) []int64 {
		out := make([]int64, 0, len(plan))
		for _, m := range plan {
			out = append(out, m.Version)
		}
		return out
	}

	plan, err := planMigrations(all, []int64{1}, migrationUp, 0)
	require.NoError(t, err)
	require.Equal(t, []int64{2, 3}, versions(plan))

	plan, err = planMigrations(all, nil, migrationUp, 1)
	require.NoError(t, err)
	require.Equal(t, []int64{1}, versions(plan))

	plan, err = planMigrations(all, []int64{1, 2, 3}, migrationUp, 0)
	require.NoError(t, err)
	require.Empty(t, plan)

	plan, err = planMigrations(all, []int64{1, 2, 3}, migrationDown, 2)
	require.NoError(t, err)
	require.Equal(t, []int64{3, 2}, versions(plan))

	plan, err = planMigrations(all, nil, migrationDown, 1)
	require.NoError(t, err)
	require.Empty(t, plan)

	_, err = planMigrations(all, []int64{1, 7}, migrationDown, 1)
	require.ErrorContains(t, err, "unknown migration version 7")
}
