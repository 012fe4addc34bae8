package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shadowhunt/backend/internal/alerts"
	"github.com/shadowhunt/backend/internal/analyzer"
	"github.com/shadowhunt/backend/internal/api"
	"github.com/shadowhunt/backend/internal/audit"
	"github.com/shadowhunt/backend/internal/classify"
	"github.com/shadowhunt/backend/internal/config"
	"github.com/shadowhunt/backend/internal/defense"
	"github.com/shadowhunt/backend/internal/detect"
	"github.com/shadowhunt/backend/internal/dlp"
	"github.com/shadowhunt/backend/internal/events"
	"github.com/shadowhunt/backend/internal/graph"
	"github.com/shadowhunt/backend/internal/identity"
	"github.com/shadowhunt/backend/internal/mitre"
	"github.com/shadowhunt/backend/internal/soar"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// .env is optional; real env vars win either way.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	log.Printf("Starting Shadow Hunter backend (%s mode)", cfg.Server.Env)

	// Broker selection by deployment mode.
	broker, err := buildBroker(cfg)
	if err != nil {
		log.Fatalf("broker init: %v", err)
	}

	ledger, err := audit.Open(cfg.Audit.LedgerPath)
	if err != nil {
		log.Fatalf("open audit ledger: %v", err)
	}
	defer ledger.Close()

	registry := defense.NewRegistry(ledger)
	graphStore := graph.NewStore()
	alertStore := alerts.NewStore(cfg.Alerts.WindowSize)
	mapper := mitre.NewMapper()

	policy := classify.NewClassifier()
	policy.PrivacyMode = cfg.Privacy.PrivacyMode
	policy.MonitorUnknown = cfg.Privacy.MonitorUnknown

	var ml detect.Classifier
	if cfg.Analyzer.EnableClassifier {
		ml = detect.NewHeuristicClassifier()
	}

	pipeline := analyzer.NewPipeline(analyzer.Services{
		Broker:   broker,
		Graph:    graphStore,
		Ledger:   ledger,
		Registry: registry,
		Identity: identity.NewResolver(),
		Policy:   policy,
		DLP:      dlp.NewScanner(),
		Detector: detect.NewDetector(),
		ML:       ml,
		Mitre:    mapper,
		Alerts:   alertStore,
		SOAR:     soar.NewEngine(registry),
		Metrics:  analyzer.NewMetrics(),
	})

	if err := broker.Start(); err != nil {
		log.Fatalf("broker start: %v", err)
	}
	pipeline.Start()

	server := api.NewServer(broker, graphStore, alertStore, registry, ledger, mapper)
	go func() {
		if err := server.Start(cfg.Server.Port); err != nil {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	// Block until shutdown signal, then drain the broker with a deadline.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := broker.Stop(ctx); err != nil {
		log.Printf("broker stop: %v", err)
	}
}

func buildBroker(cfg *config.Config) (events.Broker, error) {
	switch cfg.Broker.Mode {
	case "redis":
		return events.NewRedisBroker(cfg.Broker.RedisAddr, cfg.Broker.RedisPassword, cfg.Broker.RedisDB, "")
	case "pubsub":
		return events.NewPubSubBroker(cfg.Broker.PubSubProject)
	default:
		return events.NewMemoryBroker(), nil
	}
}
