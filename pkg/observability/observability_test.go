package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/substratelabs/substrate/pkg/store"
	"github.com/substratelabs/substrate/pkg/syncproto"
)

// The provider feeds both the store and the sync engine instruments.
var (
	_ store.Metrics     = (*Provider)(nil)
	_ syncproto.Metrics = (*Provider)(nil)
)

func TestDisabledProviderIsNoOp(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, &Config{Enabled: false})
	require.NoError(t, err)

	// Every instrument call must be safe on a disabled provider.
	p.RecordAppend(ctx, "given")
	p.RecordParked(ctx, 1)
	p.RecordParked(ctx, -1)
	p.RecordRejection(ctx, "RULE_2")
	p.SyncAttempt(ctx, true, 120*time.Millisecond)
	p.SyncConflicts(ctx, 3)

	sctx, span := p.StartSpan(ctx, "append")
	assert.NotNil(t, sctx)
	span.End()

	assert.NoError(t, p.Shutdown(ctx))
}

func TestNilConfigUsesDefaults(t *testing.T) {
	p, err := New(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "substrate", p.config.ServiceName)
	assert.False(t, p.config.Enabled)
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, 1.0, c.SampleRate)
	assert.Equal(t, 5*time.Second, c.BatchTimeout)
	assert.Equal(t, "localhost:4317", c.OTLPEndpoint)
	assert.False(t, c.Enabled)
}
