package migrate

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrations embed.FS

// MigrateDB applies the embedded migrations
func MigrateDB(dbURI string) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, MigrateURL(dbURI))
	if err != nil {
		return err
	}
	return up(m)
}

// MigrateFrom applies the migrations found at sourceURL (e.g. file:///migrations)
func MigrateFrom(sourceURL, dbURI string) error {
	m, err := migrate.New(sourceURL, MigrateURL(dbURI))
	if err != nil {
		return err
	}
	return up(m)
}

func up(m *migrate.Migrate) error {
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// MigrateURL converts a postgresql url into the scheme used by the migrate driver.
// sslmode=disable is added unless the url configures sslmode.
func MigrateURL(dbURI string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dbURI, prefix) {
			return withSSLMode("pgx5://" + strings.TrimPrefix(dbURI, prefix))
		}
	}
	return dbURI
}

func withSSLMode(url string) string {
	if strings.Contains(url, "sslmode=") {
		return url
	}
	if strings.Contains(url, "?") {
		return fmt.Sprintf("%s&%s", url, "sslmode=disable")
	}
	return fmt.Sprintf("%s?%s", url, "sslmode=disable")
}
