package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikola1125/ashila-backend/internal/storage/postgres"
)

type fakeMigrator struct {
	calls  []string
	steps  int
	status postgres.MigrationStatus
	err    error
}

func (f *fakeMigrator) MigrateUp(_ context.Context, steps int) error {
	f.calls = append(f.calls, "up")
	f.steps = steps
	return f.err
}

func (f *fakeMigrator) MigrateDown(_ context.Context, steps int) error {
	f.calls = append(f.calls, "down")
	f.steps = steps
	return f.err
}

func (f *fakeMigrator) MigrationStatus(context.Context) (postgres.MigrationStatus, error) {
	f.calls = append(f.calls, "status")
	return f.status, nil
}

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"-direction= DOWN ", "-steps=2"}, env(map[string]string{
		"OMS_POSTGRES_DSN": " postgres://localhost/shop ",
	}))
	require.NoError(t, err)
	assert.Equal(t, "down", opts.direction)
	assert.Equal(t, 2, opts.steps)
	assert.Equal(t, "postgres://localhost/shop", opts.dsn)

	opts, err = parseOptions([]string{"-dsn=postgres://flag/shop"}, env(map[string]string{
		"OMS_POSTGRES_DSN": "postgres://env/shop",
	}))
	require.NoError(t, err)
	assert.Equal(t, "up", opts.direction)
	assert.Equal(t, "postgres://flag/shop", opts.dsn)

	_, err = parseOptions(nil, env(nil))
	assert.ErrorContains(t, err, "OMS_POSTGRES_DSN")

	_, err = parseOptions([]string{"-steps=-1", "-dsn=x"}, env(nil))
	assert.ErrorContains(t, err, "steps must be >= 0")

	_, err = parseOptions([]string{"-unknown"}, env(nil))
	assert.Error(t, err)
}

func TestExecute(t *testing.T) {
	status := postgres.MigrationStatus{Version: 2, Applied: 2, Known: 2}

	m := &fakeMigrator{status: status}
	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), m, options{direction: "up"}, &out))
	assert.Equal(t, []string{"up", "status"}, m.calls)
	assert.Equal(t, "migrate up ok: version=2 applied=2 known=2\n", out.String())

	m = &fakeMigrator{status: status}
	out.Reset()
	require.NoError(t, execute(context.Background(), m, options{direction: "down", steps: 1}, &out))
	assert.Equal(t, []string{"down", "status"}, m.calls)
	assert.Equal(t, 1, m.steps)
	assert.True(t, strings.HasPrefix(out.String(), "migrate down ok"))

	m = &fakeMigrator{status: status}
	out.Reset()
	require.NoError(t, execute(context.Background(), m, options{direction: "status"}, &out))
	assert.Equal(t, []string{"status"}, m.calls)

	m = &fakeMigrator{err: errors.New("lock timeout")}
	err := execute(context.Background(), m, options{direction: "up"}, &out)
	assert.ErrorContains(t, err, "migrate up failed: lock timeout")

	err = execute(context.Background(), &fakeMigrator{}, options{direction: "sideways"}, &out)
	assert.ErrorContains(t, err, "unsupported direction")
}

func TestExecuteAgainstPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("OMS_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		t.Skipf("postgres is not available: %v", err)
	}
	defer store.Close()

	var out bytes.Buffer
	require.NoError(t, execute(ctx, store, options{direction: "up"}, &out))
	require.NoError(t, execute(ctx, store, options{direction: "status"}, &out))
	assert.Contains(t, out.String(), "migration status: version=")
}

func TestFailExits(t *testing.T) {
	if os.Getenv("MIGRATE_TEST_FAIL_EXIT") == "1" {
		fail("forced failure %d", 42)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "MIGRATE_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.NotZero(t, exitErr.ExitCode())
}
