// connectd is the connector-framework daemon: it seeds the template catalog,
// owns the connector registry, runs the classification engine and exposes
// both over HTTP.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/nairaflow/connect/internal/auth"
	"github.com/nairaflow/connect/internal/classify"
	"github.com/nairaflow/connect/internal/config"
	"github.com/nairaflow/connect/internal/connector"
	"github.com/nairaflow/connect/internal/factory"
	"github.com/nairaflow/connect/internal/health"
	"github.com/nairaflow/connect/internal/infra"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	configPath := os.Getenv("CONNECT_CONFIG")

	var cfg *config.Config
	if configPath == "" && !fileExists("config.yaml") {
		cfg = config.Default()
	} else {
		if configPath == "" {
			configPath = "config.yaml"
		}
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", configPath, err)
		}
		cfg = loaded
	}

	// Redis backs the distributed cache level; outages degrade to
	// memory-only.
	var rdb redis.Cmdable
	if cfg.Redis.Addr != "" {
		adapter, err := infra.NewGoRedisAdapter(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("Redis unavailable, classification cache is memory-only: %v", err)
		} else {
			defer adapter.Close()
			rdb = adapter.Client()
		}
	}

	engine, err := buildEngine(cfg, rdb)
	if err != nil {
		log.Fatalf("Failed to build classification engine: %v", err)
	}

	authMgr := auth.NewManager(nil)
	monitor := health.NewMonitor(
		health.WithMaxMetrics(cfg.Health.MaxMetrics),
		health.WithRegisterer(prometheus.DefaultRegisterer),
	)

	connectors := factory.NewFactory(authMgr, connector.WithNotifier(monitor.Observe))
	connectors.SeedBuiltins()

	monitor.RegisterCheck(&health.HealthCheck{
		Name:     "connectors",
		Interval: time.Duration(cfg.Health.CheckIntervalSeconds) * time.Second,
		Timeout:  time.Duration(cfg.Health.CheckTimeoutSeconds) * time.Second,
		Check: func(ctx context.Context) health.CheckStatus {
			report := connectors.HealthCheckAll(ctx)
			switch {
			case len(report.Unhealthy) == 0:
				return health.StatusHealthy
			case len(report.Healthy) > 0:
				return health.StatusDegraded
			default:
				return health.StatusUnhealthy
			}
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	monitor.Start(ctx)
	defer monitor.Stop()

	srv := newServer(connectors, engine, monitor)

	router := mux.NewRouter()
	router.HandleFunc("/health", srv.handleHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/templates", srv.handleListTemplates).Methods("GET")
	api.HandleFunc("/connectors", srv.handleCreateConnector).Methods("POST")
	api.HandleFunc("/connectors", srv.handleListConnectors).Methods("GET")
	api.HandleFunc("/connectors/{id}", srv.handleDestroyConnector).Methods("DELETE")
	api.HandleFunc("/connectors/{id}/execute", srv.handleExecute).Methods("POST")
	api.HandleFunc("/connectors/{id}/health", srv.handleConnectorHealth).Methods("GET")
	api.HandleFunc("/classify", srv.handleClassify).Methods("POST")
	api.HandleFunc("/classify/feedback", srv.handleFeedback).Methods("POST")
	api.HandleFunc("/usage", srv.handleUsage).Methods("GET")

	httpSrv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		log.Printf("connectd listening on :%s", port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func buildEngine(cfg *config.Config, rdb redis.Cmdable) (*classify.Engine, error) {
	strategy, err := cfg.Classifier.OptimizerStrategy()
	if err != nil {
		return nil, err
	}
	policy, err := cfg.Classifier.CachePolicy()
	if err != nil {
		return nil, err
	}

	cache := classify.NewCache(cfg.Classifier.MaxCacheSize, policy, cfg.Classifier.CacheTTL(), rdb)
	usage := classify.NewTracker(cfg.Classifier.MaxEvents)

	opts := []classify.EngineOption{
		classify.WithReviewThreshold(cfg.Classifier.ReviewThreshold),
	}
	if cfg.Classifier.LLM.BaseURL != "" {
		models, err := cfg.Classifier.LLM.TierModels()
		if err != nil {
			return nil, err
		}
		opts = append(opts, classify.WithLLM(classify.NewOpenAICompatibleClient(
			cfg.Classifier.LLM.BaseURL, cfg.Classifier.LLM.APIKey, models,
		)))
	}

	return classify.NewEngine(strategy, cache, usage, opts...), nil
}
