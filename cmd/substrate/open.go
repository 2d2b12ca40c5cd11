package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/substratelabs/substrate/pkg/config"
	"github.com/substratelabs/substrate/pkg/observability"
	"github.com/substratelabs/substrate/pkg/storage"
	"github.com/substratelabs/substrate/pkg/store"
)

// defaultDBPath resolves the database path: flag value first, then env.
func defaultDBPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return config.Load().DatabasePath
}

// newTelemetry builds the OTel provider when telemetry is enabled. The
// returned shutdown function is safe to call either way; the provider is
// nil when telemetry is off or unavailable.
func newTelemetry(logger *slog.Logger) (*observability.Provider, func()) {
	cfg := config.Load()
	if !cfg.OTELEnabled {
		return nil, func() {}
	}
	provider, err := observability.New(context.Background(), &observability.Config{
		ServiceName:    "substrate",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		Enabled:        true,
		Insecure:       true,
	})
	if err != nil {
		logger.Warn("observability unavailable", "err", err)
		return nil, func() {}
	}
	return provider, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
	}
}

// storeMetrics converts a possibly-nil provider into store options without
// smuggling a typed nil behind the Metrics interface.
func storeMetrics(provider *observability.Provider) []store.Option {
	if provider == nil {
		return nil
	}
	return []store.Option{store.WithMetrics(provider)}
}

// openSubstrate restores the in-memory store from the database and wires
// incremental persistence, so every command mutation lands on disk.
func openSubstrate(path string, logger *slog.Logger, opts ...store.Option) (*storage.DB, *store.Store, func(), error) {
	db, err := storage.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	st, res, err := db.Restore(context.Background(), append([]store.Option{store.WithLogger(logger)}, opts...)...)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	for _, ie := range res.Errors {
		logger.Warn("stored event failed replay", "id", ie.EventID, "err", ie.Err)
	}
	unsubscribe := db.Watch(st, logger)
	closer := func() {
		unsubscribe()
		_ = db.Close()
	}
	return db, st, closer, nil
}

func fail(stderr io.Writer, format string, args ...any) int {
	_, _ = fmt.Fprintf(stderr, "Error: "+format+"\n", args...)
	return 2
}
