package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-frontdesk-server/internal/config"
)

func TestInitDisabled(t *testing.T) {
	tp, err := Init(context.Background(), config.TracingConfig{Enabled: false})
	require.NoError(t, err)
	defer tp.Shutdown(context.Background())

	_, span := tp.Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsSampled())
	span.End()
}
