package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_Embedded(t *testing.T) {
	entries, err := fs.ReadDir(Migrations, migrationsDir)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{
		"00001_core_tables.sql",
		"00002_pipeline_tables.sql",
		"00003_cache_reports.sql",
	}, names)
}

func TestMigrations_HaveUpAndDown(t *testing.T) {
	entries, err := fs.ReadDir(Migrations, migrationsDir)
	require.NoError(t, err)

	for _, e := range entries {
		t.Run(e.Name(), func(t *testing.T) {
			body, err := fs.ReadFile(Migrations, migrationsDir+"/"+e.Name())
			require.NoError(t, err)
			assert.Contains(t, string(body), "-- +goose Up")
			assert.Contains(t, string(body), "-- +goose Down")
		})
	}
}

func TestMigrations_SeenItemsDedupIndex(t *testing.T) {
	body, err := fs.ReadFile(Migrations, migrationsDir+"/00002_pipeline_tables.sql")
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body),
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_seen_items_interest_item ON seen_items(interest_id, item_id)"))
}
