package config

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/trafficlab/roadsim/log"
)

// Telemetry bundles the configured meter provider so the command layer can
// shut it down on exit.
type Telemetry struct {
	provider *sdkmetric.MeterProvider
	ctx      context.Context
}

// SetupTelemetry installs a periodic stdout metric exporter as the global
// meter provider.
func SetupTelemetry(ctx context.Context) (*Telemetry, error) {
	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("could not create metric exporter: %w", err)
	}
	interval := 10 * time.Second
	if TelemetryInterval != "" {
		if parsed, parseErr := time.ParseDuration(TelemetryInterval); parseErr == nil {
			interval = parsed
		} else {
			log.Warn("invalid telemetry interval, using default",
				log.String("value", TelemetryInterval), log.ErrorField(parseErr))
		}
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))))
	otel.SetMeterProvider(provider)
	return &Telemetry{provider: provider, ctx: ctx}, nil
}

func (t *Telemetry) Shutdown() {
	if err := t.provider.Shutdown(t.ctx); err != nil {
		log.Warn("could not shutdown telemetry", log.ErrorField(err))
	}
}
