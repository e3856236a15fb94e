package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicsched/libs/auth"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/allocator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func seeded(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	schedule := filepath.Join(dir, "doctor_schedule.csv")
	out, err := run(t, "seed",
		"--start", "2025-09-10",
		"--schedule-csv", schedule,
		"--patients-csv", filepath.Join(dir, "patients.csv"),
	)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 2160 slots")
	assert.Contains(t, out, "50 patients")
	return schedule
}

func TestSeedWritesFiles(t *testing.T) {
	schedule := seeded(t)
	raw, err := os.ReadFile(schedule)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Len(t, lines, 2161)

	patients, err := os.ReadFile(filepath.Join(filepath.Dir(schedule), "patients.csv"))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(patients)), "\n"), 51)
}

func TestSlotsSearchAndReserve(t *testing.T) {
	schedule := seeded(t)
	sel := []string{"--schedule-csv", schedule, "--doctor", "D001", "--location", "Koramangala", "--date", "2025-09-10"}

	out, err := run(t, append([]string{"slots", "search", "--duration", "60"}, sel...)...)
	require.NoError(t, err)
	var res allocator.SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotEmpty(t, res.Windows)
	assert.Equal(t, "10:00", res.Windows[0].Start.String())

	out, err = run(t, append([]string{"slots", "reserve", "--start", "10:00", "--end", "11:00", "--appointment-id", "A1"}, sel...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "reserved 10:00-11:00 as A1")

	out, err = run(t, append([]string{"slots", "search", "--duration", "60"}, sel...)...)
	require.NoError(t, err)
	res = allocator.SearchResult{}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "11:00", res.Windows[0].Start.String())

	_, err = run(t, append([]string{"slots", "reserve", "--start", "10:30", "--end", "11:30", "--appointment-id", "A2"}, sel...)...)
	require.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	out, err := run(t, "token", "--role", "admin", "--subject", "ops", "--jwt-secret", "s3cret", "--ttl", "1h")
	require.NoError(t, err)

	claims, err := auth.ParseAndVerifyHS256(strings.TrimSpace(out), "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, auth.RoleAdmin, claims.Role)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)

	_, err = run(t, "token", "--role", "root", "--jwt-secret", "s3cret")
	require.Error(t, err)
}

func TestTokenSecretFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	out, err := run(t, "token")
	require.NoError(t, err)
	_, err = auth.ParseAndVerifyHS256(strings.TrimSpace(out), "from-env")
	require.NoError(t, err)
}
