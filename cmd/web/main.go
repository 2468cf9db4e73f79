package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/AdamBeresnev/bracket-engine/internal/config"
	"github.com/AdamBeresnev/bracket-engine/internal/db"
	"github.com/AdamBeresnev/bracket-engine/internal/directory"
	"github.com/AdamBeresnev/bracket-engine/internal/events"
	"github.com/AdamBeresnev/bracket-engine/internal/evidence"
	"github.com/AdamBeresnev/bracket-engine/internal/match"
	"github.com/AdamBeresnev/bracket-engine/internal/metrics"
	"github.com/AdamBeresnev/bracket-engine/internal/notify"
	"github.com/AdamBeresnev/bracket-engine/internal/service"
	"github.com/AdamBeresnev/bracket-engine/internal/store"
	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", "error", err)
	}
	config.SetupLogging(cfg)

	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatal("Failed to open database", "error", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database.DB, "file://"+cfg.MigrationsDir); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var evidenceStore evidence.Store = evidence.NewMemory()
	if cfg.Evidence.Bucket != "" {
		s3Store, err := evidence.NewS3Store(ctx, evidence.S3Config{
			Endpoint:        cfg.Evidence.Endpoint,
			Region:          cfg.Evidence.Region,
			AccessKeyID:     cfg.Evidence.AccessKeyID,
			SecretAccessKey: cfg.Evidence.SecretAccessKey,
			Bucket:          cfg.Evidence.Bucket,
			Prefix:          cfg.Evidence.Prefix,
		})
		if err != nil {
			log.Fatal("Failed to set up evidence store", "error", err)
		}
		evidenceStore = s3Store
	}

	metricsService := metrics.NewService()
	eventLog := events.NewLog()

	svc := service.New(
		store.NewTournamentStore(database),
		directory.New(database),
		evidenceStore,
		eventLog,
		metricsService,
		service.Options{
			Policy: match.Policy{
				StrictScore:   cfg.Match.StrictScore,
				CheckInOffset: cfg.Match.CheckInOffset,
				CheckInWindow: cfg.Match.CheckInWindow,
				ResultWindow:  cfg.Match.ResultWindow,
				ForfeitWin:    cfg.Match.ForfeitWin,
				ForfeitLoss:   cfg.Match.ForfeitLoss,
			},
			BracketReset: cfg.BracketReset,
		},
	)

	restored, err := svc.Restore(ctx)
	if err != nil {
		log.Fatal("Failed to restore brackets", "error", err)
	}
	log.Info("Restored brackets", "count", restored)

	hub := notify.NewHub(func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(cfg.CORSOrigins, "*") || slices.Contains(cfg.CORSOrigins, origin)
	})

	sinks := map[string]notify.Sink{
		"log": notify.LogSink{},
		"ws":  hub,
	}
	if cfg.PubSub.ProjectID != "" {
		publisher, err := notify.NewGCPPublisher(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			log.Fatal("Failed to connect to Pub/Sub", "error", err)
		}
		defer publisher.Close()
		sinks["pubsub"] = notify.NewPubSubSink(publisher, cfg.PubSub.Topic)
	}

	// New subscribers start at the current end so a restart does not replay
	// restoration events to clients.
	var forwarders sync.WaitGroup
	for name, sink := range sinks {
		sub := eventLog.Subscribe(name, eventLog.Len())
		forwarders.Add(1)
		go func() {
			defer forwarders.Done()
			defer sub.Close()
			if err := notify.Forward(ctx, sub, sink); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Event forwarding stopped", "subscriber", name, "error", err)
			}
		}()
	}

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.SweepSchedule, func() {
		n, err := svc.Sweep(ctx, time.Now())
		if err != nil {
			log.Error("Sweep failed", "error", err)
			return
		}
		if n > 0 {
			log.Info("Sweep applied transitions", "count", n)
		}
	}); err != nil {
		log.Fatal("Invalid sweep schedule", "schedule", cfg.SweepSchedule, "error", err)
	}
	sweeper.Start()

	app := &application{
		svc:     svc,
		hub:     hub,
		metrics: metrics.NewMetricsHandler(),
		origins: cfg.CORSOrigins,
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: newRouter(app),
	}

	go func() {
		log.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Could not listen", "port", cfg.Port, "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	<-sweeper.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	eventLog.Close()
	forwarders.Wait()
	log.Info("Server exiting")
}
