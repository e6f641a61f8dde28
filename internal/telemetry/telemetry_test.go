package telemetry_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.opentelemetry.io/otel"

	"github.com/angeloszaimis/ai-gateway/config"
	"github.com/angeloszaimis/ai-gateway/internal/telemetry"
	"github.com/angeloszaimis/ai-gateway/pkg/logger"
)

var _ = Describe("Init", func() {
	It("should be a no-op when disabled", func() {
		before := otel.GetTracerProvider()

		shutdown, err := telemetry.Init(context.Background(), config.TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "ai-gateway",
		}, logger.Discard())

		Expect(err).NotTo(HaveOccurred())
		Expect(shutdown(context.Background())).To(Succeed())
		Expect(otel.GetTracerProvider()).To(BeIdenticalTo(before))
	})

	It("should install a tracer provider when enabled", func() {
		before := otel.GetTracerProvider()
		DeferCleanup(func() { otel.SetTracerProvider(before) })

		// The gRPC exporter connects lazily, so no collector is needed here.
		shutdown, err := telemetry.Init(context.Background(), config.TelemetryConfig{
			Enabled:      true,
			OTLPEndpoint: "127.0.0.1:4317",
			ServiceName:  "ai-gateway-test",
		}, logger.Discard())

		Expect(err).NotTo(HaveOccurred())
		Expect(otel.GetTracerProvider()).NotTo(BeIdenticalTo(before))

		ctx, cancel := context.WithTimeout(context.Background(), 0)
		defer cancel()
		_ = shutdown(ctx)
	})
})
