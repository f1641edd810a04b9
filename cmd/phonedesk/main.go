package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // clinic time zones in minimal images

	"github.com/antoniostano/phonedesk/internal/callstate"
	"github.com/antoniostano/phonedesk/internal/calls"
	"github.com/antoniostano/phonedesk/internal/config"
	"github.com/antoniostano/phonedesk/internal/flow"
	"github.com/antoniostano/phonedesk/internal/httpapi"
	"github.com/antoniostano/phonedesk/internal/interpret"
	"github.com/antoniostano/phonedesk/internal/observability"
	"github.com/antoniostano/phonedesk/internal/scheduling"
	"github.com/antoniostano/phonedesk/internal/speech"
	"github.com/antoniostano/phonedesk/internal/turn"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := callstate.NewStore(ctx, cfg.CallStateDSN)
	if err != nil {
		log.Fatalf("call state store init failed: %v", err)
	}
	defer store.Close()
	storeMode := callstate.Mode(cfg.CallStateDSN)
	log.Printf("call state store: %s", storeMode)

	var backend scheduling.Backend
	if cfg.SchedulingBaseURL != "" {
		backend = scheduling.NewHTTPBackend(scheduling.HTTPConfig{
			BaseURL:       cfg.SchedulingBaseURL,
			APIKey:        cfg.SchedulingAPIKey,
			RetryAttempts: cfg.SchedulingRetryAttempts,
			Policy:        scheduling.StatusPolicy{PatchFallbackStatuses: cfg.PatchFallbackStatuses},
		})
		log.Printf("scheduling backend: %s", cfg.SchedulingBaseURL)
	} else {
		backend = scheduling.NewMemoryBackend(cfg.ClinicLocation, cfg.AppointmentDuration)
		log.Printf("scheduling backend: in-memory (SCHEDULING_BASE_URL not set)")
	}
	exec := scheduling.NewExecutor(backend, cfg.SchedulingTimeout)
	exec.SetObserver(metrics.ObserveScheduling)

	var primary interpret.Classifier
	if cfg.ClassifierEnabled() {
		primary = interpret.NewLLMClassifier(cfg.ClassifierURL, cfg.ClassifierAPIKey, cfg.ClassifierModel)
		log.Printf("intent classifier: %s with keyword fallback", cfg.ClassifierModel)
	} else {
		log.Printf("intent classifier: keyword only (CLASSIFIER_API_KEY not set)")
	}
	classifier := interpret.NewFallbackClassifier(primary, cfg.ClassifierTimeout, cfg.ClassifierMinConfidence)
	classifier.SetFallbackHook(func(reason string) {
		metrics.ClassifierFallbacks.WithLabelValues(reason).Inc()
	})

	router := flow.NewRouter(exec, flow.Config{
		Location:          cfg.ClinicLocation,
		PractitionerID:    cfg.DefaultPractitionerID,
		AppointmentTypeID: cfg.DefaultAppointmentTypeID,
		MaxFailures:       cfg.MaxConsecutiveFailures,
	})

	registry := calls.NewRegistry(cfg.CallInactivityTimeout)
	controller := turn.NewController(
		store,
		registry,
		interpret.New(classifier),
		router,
		speech.NewComposer(cfg.ClinicName, cfg.ClinicLocation),
		exec,
		metrics,
		turn.Config{
			TenantID:             cfg.DefaultTenantID,
			HandoffNumber:        cfg.HandoffPhoneNumber,
			GatherTimeoutSeconds: cfg.GatherTimeoutSeconds,
			MutationTimeout:      cfg.TurnMutationTimeout,
			LogUtterances:        cfg.LogUtterances,
		},
	)

	api := httpapi.New(cfg, controller, metrics, storeMode)
	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	registry.StartJanitor(runCtx, 30*time.Second)
	// Registry expiry only sees calls this process knows about; the store sweep
	// also clears records left by a restart or a turn that outlived its call.
	controller.StartSweeper(runCtx, time.Minute, 2*cfg.CallInactivityTimeout)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	// Shutdown waits for in-flight turns, so a booking being written completes.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
