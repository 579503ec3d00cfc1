package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/admitcast/internal/adapters/repository"
	"github.com/okian/admitcast/internal/domain/model"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrateAndLoad(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "admits.db")
	csvPath := filepath.Join(dir, "admits.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(`university_id,gre_score,ielts_score,toefl_score,technical_papers_count,total_work_experience_in_months,application_status
3,325,8,,2,24,6
3,300,,95,0,0,7
3,310,,,0,0,6
`), 0o600))

	_, err := execute(t, "migrate", "--dsn", db)
	require.NoError(t, err)

	out, err := execute(t, "load", "--dsn", db, "--csv", csvPath, "--quiet")
	require.NoError(t, err)
	assert.Contains(t, out, "no IELTS or TOEFL score")
	assert.Contains(t, out, "load complete")

	store, err := repository.NewSQLStore(context.Background(), repository.DriverSQLite, db)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, 2, store.Count(context.Background()))
	toefl, err := store.FetchDecided(context.Background(), 3, model.FamilyB)
	require.NoError(t, err)
	require.Len(t, toefl, 1)
	assert.Equal(t, model.OutcomeRejected, toefl[0].Outcome)
}

func TestLoad_RequiresCSV(t *testing.T) {
	_, err := execute(t, "load", "--dsn", filepath.Join(t.TempDir(), "admits.db"))
	require.Error(t, err)
}

func TestMigrate_UnsupportedDriver(t *testing.T) {
	_, err := execute(t, "migrate", "--driver", "oracle", "--dsn", "x")
	require.ErrorIs(t, err, repository.ErrUnsupportedDriver)
}
