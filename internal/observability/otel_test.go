package observability

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tbourn/go-storefront-backend/internal/config"
)

// keepGlobals restores the OTel globals after the test.
func keepGlobals(t *testing.T) {
	t.Helper()
	tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func enabledConfig(name string, insecure bool) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    insecure,
		Endpoint:    "localhost:4317",
		ServiceName: name,
		SampleRatio: 1,
	}
}

func TestSetupOTel_DisabledIsNoOp(t *testing.T) {
	keepGlobals(t)
	before := otel.GetTracerProvider()

	shutdown, err := SetupOTel(context.Background(), config.OTELConfig{Endpoint: "ignored:4317"}, Build{Version: "dev"})
	if err != nil || shutdown == nil {
		t.Fatalf("SetupOTel = %p, %v", shutdown, err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatal("disabled setup replaced the tracer provider")
	}
}

func TestSetupOTel_InstallsProvider(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	cases := []struct {
		name string
		ctx  context.Context
		cfg  config.OTELConfig
	}{
		{"insecure", context.Background(), enabledConfig("storefront-insecure", true)},
		{"tls", context.Background(), enabledConfig("storefront-tls", false)},
		// The gRPC client dials lazily.
		{"canceled context", canceled, enabledConfig("storefront-canceled", true)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			keepGlobals(t)
			shutdown, err := SetupOTel(tc.ctx, tc.cfg, Build{Version: "v1.2.3", Environment: "test"})
			if err != nil {
				t.Fatalf("SetupOTel: %v", err)
			}
			if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
				t.Fatalf("provider = %T", otel.GetTracerProvider())
			}

			// A sampled span propagates as a W3C traceparent.
			ctx, span := otel.Tracer("services.orders").Start(context.Background(), "OrderService.Create")
			carrier := propagation.MapCarrier{}
			otel.GetTextMapPropagator().Inject(ctx, carrier)
			span.End()
			if tp := carrier.Get("traceparent"); !strings.HasSuffix(tp, "-01") {
				t.Fatalf("traceparent = %q", tp)
			}

			sctx, stop := context.WithTimeout(context.Background(), 250*time.Millisecond)
			defer stop()
			_ = shutdown(sctx)
		})
	}
}

func TestSetupOTel_SeamFailuresLeaveGlobals(t *testing.T) {
	origExp, origRes := newOTLPExporterFn, newServiceResourceFn
	t.Cleanup(func() { newOTLPExporterFn, newServiceResourceFn = origExp, origRes })

	cases := []struct {
		name  string
		setup func()
		want  string
	}{
		{"exporter", func() {
			newOTLPExporterFn = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
				return nil, errors.New("boom-exporter")
			}
		}, "otlp exporter: boom-exporter"},
		{"resource", func() {
			newServiceResourceFn = func(context.Context, string, Build) (*resource.Resource, error) {
				return nil, errors.New("boom-resource")
			}
		}, "otel resource: boom-resource"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			keepGlobals(t)
			newOTLPExporterFn, newServiceResourceFn = origExp, origRes
			tc.setup()
			tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()

			_, err := SetupOTel(context.Background(), enabledConfig("storefront", true), Build{Version: "v0"})
			if err == nil || err.Error() != tc.want {
				t.Fatalf("err = %v; want %q", err, tc.want)
			}
			if otel.GetTracerProvider() != tp || otel.GetTextMapPropagator() != prop {
				t.Fatal("globals changed on failure")
			}
		})
	}
}

func Test_clampRatio(t *testing.T) {
	cases := map[float64]float64{-0.5: 0, 0: 0, 0.25: 0.25, 1: 1, 7: 1}
	for in, want := range cases {
		if got := clampRatio(in); got != want {
			t.Fatalf("clampRatio(%v) = %v; want %v", in, got, want)
		}
	}
}

func TestServiceResource_CarriesBuild(t *testing.T) {
	attrs := func(b Build) map[string]string {
		res, err := newServiceResourceFn(context.Background(), "storefront", b)
		if err != nil {
			t.Fatalf("resource: %v", err)
		}
		got := map[string]string{}
		for _, kv := range res.Attributes() {
			got[string(kv.Key)] = kv.Value.Emit()
		}
		return got
	}

	got := attrs(Build{Version: "v2", Environment: "release"})
	if got["service.name"] != "storefront" || got["service.version"] != "v2" || got["deployment.environment"] != "release" {
		t.Fatalf("attributes = %v", got)
	}
	if _, ok := attrs(Build{Version: "v2"})["deployment.environment"]; ok {
		t.Fatal("empty environment should be omitted")
	}
}
