package runner

import "go.opentelemetry.io/otel"

// tracer emits spans around the resource-gather/query-execute/
// assertion-evaluate pipeline stages (spec §4.8's tracing surface),
// exported by the otelconfig.ConfigureOpenTelemetry bootstrap cmd/xqtsrun/main.go
// installs before any Runner is constructed.
var tracer = otel.Tracer("github.com/xqts-suite/runnercore/runner")
