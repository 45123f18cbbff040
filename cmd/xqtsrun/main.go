// Command xqtsrun is a reference CLI wiring the runner core against a
// local-fixtures resource cache and the module's own fake engine,
// grounded on the teacher's cmd/main.go lifecycle (cli.NewApp, otel
// bootstrap, log.Crit on fatal setup failure).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/xqts-suite/runnercore/catalog"
	"github.com/xqts-suite/runnercore/enginebridge/enginetest"
	"github.com/xqts-suite/runnercore/logging"
	"github.com/xqts-suite/runnercore/metrics"
	"github.com/xqts-suite/runnercore/reportsink"
	"github.com/xqts-suite/runnercore/resourcecache"
	"github.com/xqts-suite/runnercore/runner"
	"github.com/xqts-suite/runnercore/types"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s", Version, GitCommit)
	app.Name = "xqtsrun"
	app.Usage = "runs XQTS-shaped test cases against a scripted engine and local fixtures"
	app.Flags = []cli.Flag{
		&cli.StringFlag{Name: "fixtures-dir", Value: ".", Usage: "root directory holding *.yaml fixture cases and their resource files"},
		&cli.StringFlag{Name: "config", Usage: "optional YAML file overriding runner.DefaultConfig"},
		&cli.IntFlag{Name: "concurrency", Value: 0, Usage: "override the config's Runner count (0 keeps the config value)"},
		&cli.StringFlag{Name: "log-level", Value: "info"},
		&cli.StringFlag{Name: "metrics-addr", Value: ":9090"},
		&cli.StringFlag{Name: "sink", Value: "table", Usage: "table or json"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Crit("xqtsrun failed", "err", err)
	}
}

func run(c *cli.Context) error {
	runID := uuid.NewString()
	logger := logging.New(c.String("log-level"), runID)

	shutdownTelemetry, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName("xqtsrun"),
		otelconfig.WithServiceVersion(Version),
	)
	if err != nil {
		logger.Warn("telemetry setup failed, continuing without it", "err", err)
	} else {
		defer shutdownTelemetry()
	}

	cfg := runner.DefaultConfig()
	if path := c.String("config"); path != "" {
		loaded, err := runner.LoadConfig(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	concurrency := cfg.Concurrency
	if n := c.Int("concurrency"); n > 0 {
		concurrency = n
	}
	if concurrency < 1 {
		concurrency = 1
	}

	stats := metrics.New()
	go serveMetrics(logger, c.String("metrics-addr"))

	fixturesDir := c.String("fixtures-dir")
	cache := resourcecache.NewMemory(func(_ context.Context, path string) ([]byte, error) {
		return os.ReadFile(filepath.Join(fixturesDir, path))
	})

	cases, err := catalog.LoadFixtures(fixturesDir)
	if err != nil {
		return fmt.Errorf("loading fixtures: %w", err)
	}
	logger.Info("fixtures loaded", "count", len(cases), "dir", fixturesDir)

	var sink reportsink.Sink
	if c.String("sink") == "json" {
		sink = reportsink.NewJSONSink(os.Stdout)
	} else {
		sink = reportsink.NewTableSink(os.Stdout)
	}

	runners := make([]*runner.Runner, concurrency)
	for i := range runners {
		runners[i] = runner.New(cache, enginetest.New(), stats)
		go runners[i].Start()
	}
	defer func() {
		for _, rn := range runners {
			rn.Stop()
		}
	}()

	var wg sync.WaitGroup
	manager := &sinkManager{sink: sink, log: logger, wg: &wg}
	wg.Add(len(cases))
	for i, tc := range cases {
		rn := runners[i%len(runners)]
		rn.Submit(types.RunTestCase{
			TestSet:  types.TestSetName(fixturesDir),
			TestCase: tc,
			Manager:  manager,
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		for _, rn := range runners {
			manager.complete(rn.RunID().String())
		}
		close(done)
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-done:
		logger.Info("all fixtures completed")
	}
	return nil
}

// sinkManager bridges Runner verdict callbacks into a reportsink.Sink
// (spec §6's CLI entrypoint), tracking per-run completion via a shared
// WaitGroup covering every fixture submitted across every Runner.
type sinkManager struct {
	sink reportsink.Sink
	log  log.Logger
	wg   *sync.WaitGroup
}

func (m *sinkManager) RunningTestCase(_ types.ManagerRef, id types.TestCaseId) {
	m.log.Debug("test case running", "id", id)
}

func (m *sinkManager) RanTestCase(_ types.ManagerRef, result types.TestResult) {
	if err := m.sink.Consume(result.RunID.String(), result); err != nil {
		m.log.Error("sink consume failed", "id", result.ID(), "err", err)
	}
	m.wg.Done()
}

func (m *sinkManager) complete(runID string) {
	if err := m.sink.Complete(runID); err != nil {
		m.log.Error("sink complete failed", "runID", runID, "err", err)
	}
}

func serveMetrics(logger log.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server exited", "err", err)
	}
}
