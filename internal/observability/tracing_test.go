package observability_test

import (
	"context"
	"testing"

	"tokoorder/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestSetupTracing_WithoutEndpoint(t *testing.T) {
	tp, shutdown, err := observability.SetupTracing(context.Background(), observability.TracingConfig{
		ServiceName:    "order-service",
		ServiceVersion: "test",
	})
	require.NoError(t, err)
	require.NotNil(t, tp)
	defer func() { assert.NoError(t, shutdown(context.Background())) }()

	ctx, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	assert.True(t, span.SpanContext().IsValid())

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	assert.NotEmpty(t, carrier.Get("traceparent"))
}
