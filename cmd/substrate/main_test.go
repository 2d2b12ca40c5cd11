package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"substrate"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunUnknownCommand(t *testing.T) {
	code, _, errOut := run(t, "frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Unknown command")
}

func TestRunHelp(t *testing.T) {
	code, out, _ := run(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "substrate <command>")
}

func TestInitAppendLogRoundTrip(t *testing.T) {
	db := filepath.Join(t.TempDir(), "substrate.db")

	code, out, _ := run(t, "init", "--db", db)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Device id:")

	code, out, errOut := run(t, "append", "--db", db,
		"--type", "given", "--category", "sensor_reading", "--actor", "bench",
		"--payload", `{"value": 21.5}`)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Committed")

	code, out, _ = run(t, "log", "--db", db)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "sensor_reading")
	assert.Contains(t, out, "1 events")
}

func TestAppendMeantRequiresRefs(t *testing.T) {
	db := filepath.Join(t.TempDir(), "substrate.db")

	code, _, errOut := run(t, "append", "--db", db,
		"--type", "meant", "--category", "interpretation", "--actor", "bench",
		"--claim", "ungrounded claim")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Rejected")
}

func TestProvenanceWalksToGiven(t *testing.T) {
	db := filepath.Join(t.TempDir(), "substrate.db")

	code, out, errOut := run(t, "append", "--db", db,
		"--type", "given", "--category", "reading", "--actor", "bench", "--json")
	require.Equal(t, 0, code, errOut)

	var res struct {
		EventID string `json:"eventId"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))

	code, _, errOut = run(t, "append", "--db", db,
		"--type", "meant", "--category", "interpretation", "--actor", "bench",
		"--claim", "reading is nominal", "--refs", res.EventID+":semantic")
	require.Equal(t, 0, code, errOut)

	code, out, _ = run(t, "log", "--db", db, "--type", "meant", "--json")
	require.Equal(t, 0, code)
	var events []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events, 1)

	code, out, errOut = run(t, "provenance", "--db", db, "--id", events[0].ID)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "given")
	assert.Contains(t, out, res.EventID)
}

func TestVerifyCleanLog(t *testing.T) {
	db := filepath.Join(t.TempDir(), "substrate.db")
	code, _, errOut := run(t, "append", "--db", db,
		"--type", "given", "--category", "reading", "--actor", "bench")
	require.Equal(t, 0, code, errOut)

	code, out, _ := run(t, "verify", "--db", db)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "all grounded")
}

func TestExportImportBetweenDatabases(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.db")
	dst := filepath.Join(dir, "dst.db")
	snapshot := filepath.Join(dir, "snapshot.json")

	code, _, errOut := run(t, "append", "--db", src,
		"--type", "given", "--category", "reading", "--actor", "bench")
	require.Equal(t, 0, code, errOut)

	code, _, errOut = run(t, "export", "--db", src, "--out", snapshot)
	require.Equal(t, 0, code, errOut)
	_, err := os.Stat(snapshot)
	require.NoError(t, err)

	code, out, errOut := run(t, "import", "--db", dst, "--in", snapshot)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Imported 1 events")

	code, out, _ = run(t, "log", "--db", dst)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "1 events")
}

func TestSyncConvergesTwoDatabases(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.db")
	b := filepath.Join(dir, "b.db")

	code, _, errOut := run(t, "append", "--db", a,
		"--type", "given", "--category", "reading", "--actor", "device-a")
	require.Equal(t, 0, code, errOut)
	code, _, errOut = run(t, "append", "--db", b,
		"--type", "given", "--category", "note", "--actor", "device-b")
	require.Equal(t, 0, code, errOut)

	code, out, errOut := run(t, "sync", "--db", a, "--peer-db", b)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "received 1")
	assert.Contains(t, out, "sent 1")

	for _, db := range []string{a, b} {
		code, out, _ = run(t, "log", "--db", db)
		require.Equal(t, 0, code)
		assert.Contains(t, out, "2 events")
	}
}

func TestSupersedeCorrectsInterpretation(t *testing.T) {
	db := filepath.Join(t.TempDir(), "substrate.db")

	code, out, errOut := run(t, "append", "--db", db,
		"--type", "given", "--category", "reading", "--actor", "bench", "--json")
	require.Equal(t, 0, code, errOut)
	var res struct {
		EventID string `json:"eventId"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))

	code, _, errOut = run(t, "append", "--db", db,
		"--type", "meant", "--category", "interpretation", "--actor", "bench",
		"--claim", "first take", "--refs", res.EventID+":semantic")
	require.Equal(t, 0, code, errOut)

	code, out, _ = run(t, "log", "--db", db, "--type", "meant", "--json")
	require.Equal(t, 0, code)
	var events []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events, 1)

	code, out, errOut = run(t, "supersede", "--db", db,
		"--target", events[0].ID, "--actor", "bench",
		"--claim", "second take", "--type", "correction")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Superseded")

	// A given can never be superseded.
	code, _, errOut = run(t, "supersede", "--db", db,
		"--target", res.EventID, "--actor", "bench",
		"--claim", "rewrite history", "--type", "correction")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Rejected")
}
