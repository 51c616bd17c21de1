package migrate

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgresql://u:p@host:5432/seq", "pgx5://u:p@host:5432/seq?sslmode=disable"},
		{"postgres://u:p@host/seq?connect_timeout=5", "pgx5://u:p@host/seq?connect_timeout=5&sslmode=disable"},
		{"postgresql://u:p@host/seq?sslmode=require", "pgx5://u:p@host/seq?sslmode=require"},
		{"pgx5://host/seq", "pgx5://host/seq"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, MigrateURL(tt.in), tt.want)
		})
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	assert.NilError(t, err)
	assert.Equal(t, len(entries), 2)
}
