// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command campaignctld is the long-running daemon form of the multi-run
// scheduler: it discovers every active run under a workspaces root and
// steps them fairly forever, for operators who want a supervised process
// instead of a cron-driven `campaignctl loop`.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scicampaign/campaignctl/internal/campaignrt"
	"github.com/scicampaign/campaignctl/internal/lifecycle"
	campaignlog "github.com/scicampaign/campaignctl/internal/log"
	"github.com/scicampaign/campaignctl/internal/scheduler"
	"github.com/scicampaign/campaignctl/internal/workspace"
)

// Version information, injected via ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		workspacesRoot      = flag.String("workspaces-root", "", "workspaces root to scan for active runs (default: MATTERSTACK_WORKSPACES_ROOT / discovered)")
		pidFile             = flag.String("pid-file", "campaignctld.pid", "path to write this process's PID file")
		lifecycleLogPath    = flag.String("lifecycle-log", "campaignctld.lifecycle.log", "path to the JSON-lines lifecycle event log")
		healthAddr          = flag.String("health-addr", "127.0.0.1:9090", "address to serve /health and /metrics on")
		operatorsConfigPath = flag.String("operators-config", "", "operators.yaml to bind newly-discovered runs to when they have no wiring snapshot yet")
		showVersion         = flag.Bool("version", false, "print version information and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("campaignctld %s (commit %s)\n", version, commit)
		return
	}

	logger := campaignlog.New(campaignlog.FromEnv())
	slog.SetDefault(logger)

	lifecycleLog := lifecycle.NewLifecycleLogger(*lifecycleLogPath)

	root := *workspacesRoot
	if root == "" {
		var err error
		root, err = workspace.Root()
		if err != nil {
			logger.Error("resolve workspaces root", "error", err)
			os.Exit(1)
		}
	}

	pidManager := lifecycle.NewPIDFileManager(*pidFile)
	if err := pidManager.Create(os.Getpid()); err != nil {
		if err == lifecycle.ErrPIDFileExists {
			if existing, rerr := pidManager.Read(); rerr == nil && lifecycle.IsCampaignctldProcess(existing) {
				logger.Error("campaignctld already running", "pid", existing, "pid_file", *pidFile)
				_ = lifecycleLog.LogAlreadyRunning(existing)
				os.Exit(1)
			}
		}
		logger.Error("create pid file", "error", err)
		_ = lifecycleLog.LogStartFailure(err)
		os.Exit(1)
	}
	defer pidManager.Remove()

	_ = lifecycleLog.LogStart(version, os.Args[1:], *operatorsConfigPath)
	startedAt := time.Now()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	health := newHealthServer(*healthAddr, logger)
	go health.serve()
	defer health.shutdown()

	_ = lifecycleLog.LogStartSuccess(os.Getpid(), 0, time.Since(startedAt))
	logger.Info("campaignctld started", "workspaces_root", root, "pid", os.Getpid(), "health_addr", *healthAddr)

	opts := campaignrt.EngineBuildOptions{OperatorsConfigPath: *operatorsConfigPath}
	sched := scheduler.New(root, campaignrt.NewEngineFactory(opts), logger)

	shutdownAt := time.Now()
	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler exited with error", "error", err)
		_ = lifecycleLog.LogStop(os.Getpid(), true)
		os.Exit(1)
	}

	logger.Info("campaignctld shutting down")
	_ = lifecycleLog.LogStopSuccess(os.Getpid(), time.Since(shutdownAt))
}

// healthServer exposes liveness and Prometheus metrics for an external
// supervisor (or lifecycle.HealthChecker, run from whatever spawned this
// process) to poll. It reuses campaignrt.Metrics, the same collector set
// every Engine in this process reports into.
type healthServer struct {
	srv    *http.Server
	logger *slog.Logger
}

func newHealthServer(addr string, logger *slog.Logger) *healthServer {
	registry := promRegistryWithCampaignMetrics()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &healthServer{
		srv:    &http.Server{Addr: addr, Handler: mux},
		logger: logger,
	}
}

func (h *healthServer) serve() {
	if err := h.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		h.logger.Error("health server stopped", "error", err)
	}
}

func (h *healthServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = h.srv.Shutdown(ctx)
}

// promRegistryWithCampaignMetrics registers campaignrt.Metrics into a
// fresh registry rather than prometheus.DefaultRegisterer, so /metrics
// exposes exactly this process's campaign counters and nothing the Go
// runtime collector would add by default.
func promRegistryWithCampaignMetrics() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	if err := campaignrt.Metrics.Register(registry); err != nil {
		slog.Default().Warn("register campaign metrics", "error", err)
	}
	return registry
}
