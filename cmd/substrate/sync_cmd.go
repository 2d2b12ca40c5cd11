package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/substratelabs/substrate/pkg/config"
	"github.com/substratelabs/substrate/pkg/syncproto"
)

// runSyncCmd reconciles the local database with a peer database through
// the full sync protocol. Both logs converge; conflicts are surfaced, not
// resolved.
//
// Exit codes:
//
//	0 = sync completed (conflicts may be reported)
//	1 = sync failed after retries
//	2 = runtime error
func runSyncCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("sync", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dbPath      string
		peerDBPath  string
		workspace   string
		profilesDir string
	)
	cmd.StringVar(&dbPath, "db", "", "Path to substrate database")
	cmd.StringVar(&peerDBPath, "peer-db", "", "Path to peer substrate database (REQUIRED)")
	cmd.StringVar(&workspace, "workspace", "", "Workspace to sync (default workspace if empty)")
	cmd.StringVar(&profilesDir, "profiles", "", "Directory of workspace profile YAMLs")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if peerDBPath == "" {
		return fail(stderr, "--peer-db is required")
	}

	logger := newLogger(stderr)
	provider, shutdown := newTelemetry(logger)
	defer shutdown()

	localDB, local, closeLocal, err := openSubstrate(defaultDBPath(dbPath), logger, storeMetrics(provider)...)
	if err != nil {
		return fail(stderr, "cannot open database: %v", err)
	}
	defer closeLocal()

	_, peer, closePeer, err := openSubstrate(peerDBPath, logger)
	if err != nil {
		return fail(stderr, "cannot open peer database: %v", err)
	}
	defer closePeer()

	ctx := context.Background()
	deviceID, err := localDB.DeviceID(ctx)
	if err != nil {
		return fail(stderr, "cannot establish device identity: %v", err)
	}

	engineOpts := []syncproto.EngineOption{
		syncproto.WithDeviceID(deviceID),
		syncproto.WithEngineLogger(logger),
	}
	if profilesDir != "" && workspace != "" {
		profile, perr := config.LoadProfile(profilesDir, workspace)
		if perr != nil {
			return fail(stderr, "cannot load workspace profile: %v", perr)
		}
		if profile.Retry.MaxRetries > 0 {
			engineOpts = append(engineOpts, syncproto.WithMaxRetries(profile.Retry.MaxRetries))
		}
		if profile.RateLimit.PerSecond > 0 {
			engineOpts = append(engineOpts,
				syncproto.WithRateLimit(profile.RateLimit.PerSecond, max(profile.RateLimit.Burst, 1)))
		}
	}
	if provider != nil {
		engineOpts = append(engineOpts, syncproto.WithMetrics(provider))
		var span trace.Span
		ctx, span = provider.StartSpan(ctx, "substrate.sync",
			trace.WithAttributes(attribute.String("sync.workspace", workspace)))
		defer span.End()
	}

	responder := syncproto.NewResponder(peer, logger)
	engineOpts = append(engineOpts,
		syncproto.WithTransport(peerDBPath, syncproto.Loopback{Peer: responder}))
	engine := syncproto.NewEngine(local, engineOpts...)

	stats, err := engine.Sync(ctx, workspace)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Sync failed: %v\n", err)
		return 1
	}

	_, _ = fmt.Fprintf(stdout, "Synced: received %d, sent %d, rejected %d\n",
		stats.Received, stats.Sent, stats.Rejected)
	for _, c := range responderConflicts(responder) {
		_, _ = fmt.Fprintf(stdout, "  ⚠ conflict: %s and %s both extend %s\n",
			c.LocalEvent, c.RemoteEvent, c.CommonParent)
	}
	if stats.Conflicts > 0 {
		_, _ = fmt.Fprintf(stdout, "%d conflicts on this side\n", stats.Conflicts)
	}
	return 0
}

func responderConflicts(r *syncproto.Responder) []syncproto.Conflict {
	if s := r.Session(); s != nil {
		return s.Conflicts()
	}
	return nil
}
