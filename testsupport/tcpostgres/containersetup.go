package tcpostgres

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	defaultImage = "postgres:17"
	pgPort       = "5432/tcp"
)

// PostgresContainer is a running postgres server for the archive tests
type PostgresContainer struct {
	testcontainers.Container
	user     string
	password string
	dbName   string
}

type Option func(req *testcontainers.ContainerRequest)

func WithName(containerName string) Option {
	return func(req *testcontainers.ContainerRequest) {
		req.Name = containerName
	}
}

func readyStrategy(d time.Duration) wait.Strategy {
	// the server restarts once after the init scripts ran
	return wait.ForLog("database system is ready to accept connections").
		WithOccurrence(2).
		WithStartupTimeout(d)
}

// SetupPostgres starts a postgres container with the given credentials.
// Containers are reused by name between test packages.
//
//nolint:whitespace // can't make both editor and linter happy
func SetupPostgres(
	ctx context.Context, user, password, dbName string, opts ...Option,
) (*PostgresContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        defaultImage,
		ExposedPorts: []string{pgPort},
		Env: map[string]string{
			"POSTGRES_USER":     user,
			"POSTGRES_PASSWORD": password,
			"POSTGRES_DB":       dbName,
		},
		Cmd:        []string{"postgres", "-c", "fsync=off"},
		WaitingFor: readyStrategy(30 * time.Second),
	}
	for _, opt := range opts {
		opt(&req)
	}

	container, err := testcontainers.GenericContainer(
		ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
			Reuse:            req.Name != "",
		})
	if err != nil {
		return nil, err
	}
	return &PostgresContainer{
		Container: container,
		user:      user,
		password:  password,
		dbName:    dbName,
	}, nil
}

// ConnectionURL returns the postgresql url of the mapped port
func (c *PostgresContainer) ConnectionURL(ctx context.Context) (string, error) {
	port, err := c.MappedPort(ctx, nat.Port(pgPort))
	if err != nil {
		return "", err
	}
	host, err := c.Host(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s",
		c.user, c.password, host, port.Port(), c.dbName), nil
}
