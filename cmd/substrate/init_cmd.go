package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/substratelabs/substrate/pkg/storage"
)

// runInitCmd creates the database, runs migrations, and mints the stable
// device identity.
//
// Exit codes:
//
//	0 = initialized
//	2 = runtime error
func runInitCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("init", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var dbPath string
	cmd.StringVar(&dbPath, "db", "", "Path to substrate database (default $SUBSTRATE_DB or substrate.db)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	path := defaultDBPath(dbPath)

	db, err := storage.Open(path)
	if err != nil {
		return fail(stderr, "cannot open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	deviceID, err := db.DeviceID(context.Background())
	if err != nil {
		return fail(stderr, "cannot establish device identity: %v", err)
	}

	_, _ = fmt.Fprintf(stdout, "Initialized substrate at %s\n", path)
	_, _ = fmt.Fprintf(stdout, "Device id: %s\n", deviceID)
	return 0
}
