package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbeddedInOrder(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	require.Len(t, migrations, 4)

	for i, m := range migrations {
		require.Equal(t, i+1, m.Version, m.Name)
		require.NotEmpty(t, strings.TrimSpace(m.SQL), m.Name)
	}
}

func TestMigrationsDefineBackendSurface(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)

	var all strings.Builder
	for _, m := range migrations {
		all.WriteString(m.SQL)
	}
	schema := all.String()

	for _, name := range []string{
		"CREATE TABLE IF NOT EXISTS users",
		"CREATE TABLE IF NOT EXISTS transactions",
		"CREATE TABLE IF NOT EXISTS mining_sessions",
		"CREATE OR REPLACE VIEW leaderboard",
		"FUNCTION create_room",
		"FUNCTION join_room",
		"pg_notify",
	} {
		require.Contains(t, schema, name)
	}
}
