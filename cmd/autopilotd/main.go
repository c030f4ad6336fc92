/*
Copyright 2026 The Incident Core Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command autopilotd wires C1 through C10 into pkg/engine's worker loops
// and serves its one HTTP surface: /metrics and
// /healthz.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ai-autopilot/incident-core/internal/config"
	"github.com/ai-autopilot/incident-core/internal/tracing"
	"github.com/ai-autopilot/incident-core/pkg/aiseam"
	"github.com/ai-autopilot/incident-core/pkg/aiseam/anthropic"
	"github.com/ai-autopilot/incident-core/pkg/aiseam/bedrock"
	"github.com/ai-autopilot/incident-core/pkg/analysis"
	"github.com/ai-autopilot/incident-core/pkg/audit"
	"github.com/ai-autopilot/incident-core/pkg/autonomy"
	"github.com/ai-autopilot/incident-core/pkg/autonomy/policy"
	"github.com/ai-autopilot/incident-core/pkg/detection"
	"github.com/ai-autopilot/incident-core/pkg/engine"
	"github.com/ai-autopilot/incident-core/pkg/executor"
	"github.com/ai-autopilot/incident-core/pkg/executor/providers/k8sprovider"
	"github.com/ai-autopilot/incident-core/pkg/knowledge"
	"github.com/ai-autopilot/incident-core/pkg/learning"
	"github.com/ai-autopilot/incident-core/pkg/prevention"
	"github.com/ai-autopilot/incident-core/pkg/risk"
	"github.com/ai-autopilot/incident-core/pkg/shared/logging"
	"github.com/ai-autopilot/incident-core/pkg/store"
	"github.com/ai-autopilot/incident-core/pkg/store/inmemstore"
	"github.com/ai-autopilot/incident-core/pkg/store/redisstore"
	"github.com/ai-autopilot/incident-core/pkg/types"

	"github.com/go-logr/zapr"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "autopilotd: "+err.Error())
		os.Exit(1)
	}

	log, err := buildLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "autopilotd: "+err.Error())
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("autopilotd exited with error", logging.NewFields().Component("main").Error(err).Zap()...)
		os.Exit(1)
	}
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zcfg.Level = level
	return zcfg.Build()
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	shutdownTracing, err := tracing.Setup(cfg.Tracing.ServiceName, cfg.Tracing.SampleRatio)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("failed to shut down tracing providers", logging.NewFields().Component("main").Error(err).Zap()...)
		}
	}()

	kv, err := buildStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to build store: %w", err)
	}

	ai, err := buildAIAnalyzer(ctx, cfg.AI, log)
	if err != nil {
		return fmt.Errorf("failed to build AI seam: %w", err)
	}

	kb, err := knowledge.Load(ctx, kv, log)
	if err != nil {
		return fmt.Errorf("failed to load knowledge base: %w", err)
	}
	learn := learning.New(kv, log)
	detector := detection.NewDetector(kv, log)
	analyzer := analysis.New(kv, kb, learn, ai, log)
	actions := executor.New(kv, buildProviders(log), nil, cfg.Autonomy.DryRun, log)
	auditLog := audit.New(kv, log)
	pol := policy.NewEvaluator(policy.Config{PolicyPath: cfg.Autonomy.PolicyPath}, log)
	if err := pol.StartHotReload(ctx); err != nil {
		return fmt.Errorf("failed to start safety policy watcher: %w", err)
	}

	autonomyCfg := autonomy.Config{
		Mode:                 autonomy.Mode(cfg.Autonomy.Mode),
		ConfidenceThreshold:  cfg.Autonomy.ConfidenceThreshold,
		NightStartHour:       cfg.Autonomy.NightStartHour,
		NightEndHour:         cfg.Autonomy.NightEndHour,
		MaxConcurrentActions: cfg.Autonomy.MaxConcurrentActions,
		CooldownSeconds:      cfg.Autonomy.CooldownSeconds,
	}
	auto := autonomy.New(kv, actions, learn, auditLog, pol, autonomyCfg, log)
	eliminate := prevention.New(kv, actions, log)
	riskAnalyzer := risk.New(kv, log)

	eng := engine.New(engine.Deps{
		Store:     kv,
		Detector:  detector,
		Analyzer:  analyzer,
		Autonomy:  auto,
		Actions:   actions,
		Eliminate: eliminate,
		Risk:      riskAnalyzer,
		AI:        ai,
	}, engine.DefaultConfig(), log)

	srv := buildHTTPServers(cfg.Server)
	errCh := make(chan error, len(srv))
	for _, s := range srv {
		s := s
		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	log.Info("autopilotd starting", logging.NewFields().Component("main").
		Resource("autonomy_mode", cfg.Autonomy.Mode).Zap()...)

	done := make(chan struct{})
	go func() {
		eng.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case err := <-errCh:
		log.Error("HTTP server failed", logging.NewFields().Component("main").Error(err).Zap()...)
		<-done
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	for _, s := range srv {
		_ = s.Shutdown(shutdownCtx)
	}
	return nil
}

func buildStore(cfg config.StoreConfig) (store.KeyValueStore, error) {
	switch cfg.Type {
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		return redisstore.New(rdb), nil
	case "inmem":
		return inmemstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}

func buildAIAnalyzer(ctx context.Context, cfg config.AIConfig, log *zap.Logger) (aiseam.AIAnalyzer, error) {
	var backend aiseam.AIAnalyzer
	switch cfg.Provider {
	case "anthropic":
		backend = anthropic.New(anthropic.Config{APIKey: cfg.AnthropicAPIKey}, log)
	case "bedrock":
		b, err := bedrock.New(ctx, bedrock.Config{Region: cfg.BedrockRegion, ModelID: cfg.BedrockModelID}, log)
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
	return aiseam.NewCircuitBreaker(cfg.Provider, backend, log), nil
}

// buildProviders wires the k8s action family against a real cluster
// client (in-cluster config, falling back to KUBECONFIG for local runs).
// The cloud, database, and cicd families need an external cloud
// credential/client of their own that cfg does not carry; those
// categories fall back to the executor's built-in no-op provider until
// an operator supplies one (see DESIGN.md).
func buildProviders(log *zap.Logger) map[types.ActionCategory]executor.Provider {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := os.Getenv("KUBECONFIG")
		if kubeconfig == "" {
			home, _ := os.UserHomeDir()
			kubeconfig = home + "/.kube/config"
		}
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if err != nil {
		log.Warn("no kubernetes config available, k8s action family disabled", logging.NewFields().
			Component("main").Operation("build_providers").Error(err).Zap()...)
		return nil
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		log.Warn("failed to build kubernetes client, k8s action family disabled", logging.NewFields().
			Component("main").Operation("build_providers").Error(err).Zap()...)
		return nil
	}
	zlog := zapr.NewLogger(log)

	metricsClient, err := metricsclient.NewForConfig(restCfg)
	if err != nil {
		log.Warn("failed to build metrics client, update_resources will require explicit limits", logging.NewFields().
			Component("main").Operation("build_providers").Error(err).Zap()...)
		return map[types.ActionCategory]executor.Provider{
			types.ActionCategoryK8s: k8sprovider.New(clientset, zlog),
		}
	}
	return map[types.ActionCategory]executor.Provider{
		types.ActionCategoryK8s: k8sprovider.NewWithMetrics(clientset, metricsClient, zlog),
	}
}

func buildHTTPServers(cfg config.ServerConfig) []*http.Server {
	// Read-only endpoints; the permissive GET-only CORS policy lets an
	// operator dashboard poll them directly from the browser.
	readOnlyCORS := cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	})

	metricsRouter := chi.NewRouter()
	metricsRouter.Use(readOnlyCORS)
	metricsRouter.Handle("/metrics", promhttp.Handler())
	servers := []*http.Server{
		{Addr: ":" + cfg.MetricsPort, Handler: metricsRouter},
	}

	if cfg.HealthPort != "" && cfg.HealthPort != cfg.MetricsPort {
		healthRouter := chi.NewRouter()
		healthRouter.Use(readOnlyCORS)
		healthRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		servers = append(servers, &http.Server{Addr: ":" + cfg.HealthPort, Handler: healthRouter})
	}
	return servers
}
