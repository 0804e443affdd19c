package integration

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgImage    = "postgres:16-alpine"
	pgUser     = "testuser"
	pgPassword = "testpass"
	pgDatabase = "carelinktest"
)

// startPostgresContainer launches a throwaway Postgres container via the
// Docker CLI and returns its connection string plus a cleanup function.
func startPostgresContainer(ctx context.Context) (string, func(), error) {
	port, err := freePort()
	if err != nil {
		return "", nil, fmt.Errorf("find free port: %w", err)
	}

	name := fmt.Sprintf("carelink-integration-test-%d", port)
	// A stale container from an aborted run would block the name.
	exec.CommandContext(ctx, "docker", "rm", "-f", name).Run()

	out, err := exec.CommandContext(ctx, "docker", "run",
		"--name", name,
		"-d",
		"-p", fmt.Sprintf("%d:5432", port),
		"-e", "POSTGRES_USER="+pgUser,
		"-e", "POSTGRES_PASSWORD="+pgPassword,
		"-e", "POSTGRES_DB="+pgDatabase,
		pgImage,
	).CombinedOutput()
	if err != nil {
		return "", nil, fmt.Errorf("docker run: %w\noutput: %s", err, string(out))
	}
	containerID := strings.TrimSpace(string(out))

	cleanup := func() {
		exec.Command("docker", "rm", "-f", containerID).Run()
	}

	connStr := fmt.Sprintf("postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		pgUser, pgPassword, port, pgDatabase)
	if err := waitForPostgres(ctx, connStr, 30*time.Second); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("wait for postgres: %w", err)
	}

	return connStr, cleanup, nil
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// waitForPostgres polls until the database answers a ping or the timeout
// elapses.
func waitForPostgres(ctx context.Context, connStr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		pool, err := pgxpool.New(pingCtx, connStr)
		if err == nil {
			err = pool.Ping(pingCtx)
			pool.Close()
		}
		cancel()
		if err == nil {
			return nil
		}

		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("postgres not ready after %v", timeout)
}
