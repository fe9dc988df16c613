// Package databasetest starts disposable Postgres instances for repository tests.
package databasetest

import (
	"fmt"
	"net"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/database"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"gorm.io/gorm"
)

const (
	testPostgresPassword = "secret"
	testPostgresDatabase = "receptionist"
)

// StartTestPostgres runs a throwaway Postgres container for repository tests
// and migrates models into it. The test is skipped when Docker is not reachable.
func StartTestPostgres(t *testing.T, models ...any) *gorm.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres-backed test in short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker is not available: %v", err)
	}

	err = pool.Client.Ping()
	if err != nil {
		t.Skipf("docker is not reachable: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "14-alpine",
		Env: []string{
			"POSTGRES_PASSWORD=" + testPostgresPassword,
			"POSTGRES_DB=" + testPostgresDatabase,
		},
	}, func(hostConfig *docker.HostConfig) {
		hostConfig.AutoRemove = true
		hostConfig.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Skipf("could not start postgres container: %v", err)
	}

	t.Cleanup(func() {
		_ = pool.Purge(resource)
	})

	host, port, err := net.SplitHostPort(resource.GetHostPort("5432/tcp"))
	if err != nil {
		t.Fatalf("unexpected postgres address: %v", err)
	}

	dsn := fmt.Sprintf(
		"host=%s user=postgres password=%s dbname=%s port=%s sslmode=disable",
		host,
		testPostgresPassword,
		testPostgresDatabase,
		port,
	)

	var dbConn *gorm.DB

	pool.MaxWait = time.Minute

	err = pool.Retry(func() error {
		var err error

		dbConn, err = database.Open(dsn)

		return err
	})
	if err != nil {
		t.Fatalf("postgres did not become ready: %v", err)
	}

	err = dbConn.AutoMigrate(models...)
	if err != nil {
		t.Fatalf("failed to migrate test schema: %v", err)
	}

	return dbConn
}
