package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dosewise/config"
	"dosewise/internal/application/command"
	"dosewise/internal/application/query"
	"dosewise/internal/application/services"
	"dosewise/internal/domain/event"
	"dosewise/internal/domain/grace"
	"dosewise/internal/infrastructure/bus"
	"dosewise/internal/infrastructure/drugverify"
	httpHandler "dosewise/internal/infrastructure/http"
	"dosewise/internal/infrastructure/mongo"
	"dosewise/internal/infrastructure/notify"
	"dosewise/internal/infrastructure/projection"
	jwtutil "dosewise/pkg/jwt"
	"dosewise/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Starting dosewise API...")

	mongoClient, err := mongo.NewClient(&mongo.Config{
		URI:      cfg.MongoURI,
		Database: cfg.MongoDatabase,
		Timeout:  cfg.MongoTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer func() {
		if err := mongoClient.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing MongoDB connection")
		}
	}()

	if err := mongoClient.Ping(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping MongoDB")
	}
	log.Info().Msg("Connected to MongoDB")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// event log indexes must exist before jobs run
	database := mongoClient.Database()
	if _, err := mongo.NewEventLog(ctx, database); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare event log indexes")
	}

	var eventBus bus.EventBus = bus.NewInMemoryEventBus()
	if cfg.AsyncEventBus {
		eventBus = bus.NewAsyncEventBus()
	}
	uowFactory := mongo.NewUnitOfWorkFactory(mongoClient.Mongo(), database)

	// Read models
	medicationProjection := projection.NewInMemoryMedicationProjection()
	timelineProjection := projection.NewInMemoryDoseTimelineProjection()

	// Subscribe projections to events
	eventBus.Subscribe("MedicationCreated", bus.EventHandlerFunc(
		func(ctx context.Context, e event.DomainEvent) error {
			return medicationProjection.HandleMedicationCreated(ctx, e.(*event.MedicationCreated))
		}))

	eventBus.Subscribe("MedicationScheduleUpdated", bus.EventHandlerFunc(
		func(ctx context.Context, e event.DomainEvent) error {
			return medicationProjection.HandleScheduleUpdated(ctx, e.(*event.MedicationScheduleUpdated))
		}))

	eventBus.Subscribe("MedicationStatusChanged", bus.EventHandlerFunc(
		func(ctx context.Context, e event.DomainEvent) error {
			return medicationProjection.HandleStatusChanged(ctx, e.(*event.MedicationStatusChanged))
		}))

	eventBus.Subscribe("MedicationGraceTierChanged", bus.EventHandlerFunc(
		func(ctx context.Context, e event.DomainEvent) error {
			return medicationProjection.HandleGraceTierChanged(ctx, e.(*event.MedicationGraceTierChanged))
		}))

	for _, doseEventType := range []event.DoseEventType{
		event.DoseScheduled, event.DoseTaken, event.DoseMissed, event.DoseSkipped,
		event.DoseSnoozed, event.DoseTakenUndone, event.DoseTakenCorrected,
		event.DoseMissedCorrected, event.DoseSkippedCorrected,
	} {
		eventBus.Subscribe(string(doseEventType), bus.EventHandlerFunc(
			func(ctx context.Context, e event.DomainEvent) error {
				return timelineProjection.HandleDoseEvent(ctx, e.(*event.DoseEvent))
			}))
	}

	// External collaborators
	var verifier drugverify.Verifier = drugverify.Unverified{}
	if cfg.DrugVerifyBaseURL != "" {
		verifier = drugverify.NewClient(drugverify.Config{
			BaseURL:   cfg.DrugVerifyBaseURL,
			Retries:   cfg.DrugVerifyRetries,
			RetryWait: cfg.DrugVerifyRetryWait,
			Timeout:   cfg.DrugVerifyTimeout,
		}, log.Logger)
	}
	notifier := notify.NewLogNotifier(log.Logger)
	holidays := grace.NewUSHolidayCalendar()

	// Unit of Work command handlers
	createMedicationHandler := command.NewCreateMedicationWithUoWHandler(uowFactory, eventBus, verifier)
	updateScheduleHandler := command.NewUpdateMedicationScheduleWithUoWHandler(uowFactory, eventBus)
	changeStatusHandler := command.NewChangeMedicationStatusWithUoWHandler(uowFactory, eventBus)
	verifyMedicationHandler := command.NewVerifyMedicationWithUoWHandler(uowFactory, verifier)
	markTakenHandler := command.NewMarkDoseTakenWithUoWHandler(uowFactory, eventBus)
	markSkippedHandler := command.NewMarkDoseSkippedWithUoWHandler(uowFactory, eventBus)
	snoozeHandler := command.NewSnoozeDoseWithUoWHandler(uowFactory, eventBus)
	undoTakenHandler := command.NewUndoDoseTakenWithUoWHandler(uowFactory, eventBus, cfg.UndoWindow)
	correctHandler := command.NewCorrectDoseWithUoWHandler(uowFactory, eventBus)

	// Query handlers
	getMedicationHandler := query.NewGetMedicationHandler(medicationProjection)
	listMedicationsHandler := query.NewListPatientMedicationsHandler(medicationProjection)
	searchMedicationsHandler := query.NewSearchMedicationsHandler(medicationProjection)
	patientTimelineHandler := query.NewGetDoseTimelineHandler(timelineProjection)
	commandTimelineHandler := query.NewGetCommandTimelineHandler(timelineProjection)
	occurrenceHandler := query.NewGetOccurrenceHandler(timelineProjection)

	// Background jobs
	evaluator := services.NewAdherenceEvaluator(
		uowFactory, eventBus, notifier, services.DefaultThresholds(), cfg.AdherenceWindowDays)
	generator := services.NewOccurrenceGenerator(
		uowFactory, eventBus, holidays, cfg.GenerationHorizonDays, cfg.GenerationInterval)
	detector := services.NewMissedDoseDetector(
		uowFactory, eventBus, evaluator, cfg.SweepInterval, cfg.SweepTimeout, cfg.SweepLookback)

	// Application services
	medicationService := services.NewMedicationService(
		createMedicationHandler,
		updateScheduleHandler,
		changeStatusHandler,
		verifyMedicationHandler,
		getMedicationHandler,
		listMedicationsHandler,
		searchMedicationsHandler,
	)
	doseService := services.NewDoseService(
		markTakenHandler,
		markSkippedHandler,
		snoozeHandler,
		undoTakenHandler,
		correctHandler,
		patientTimelineHandler,
		commandTimelineHandler,
		occurrenceHandler,
		evaluator,
	)

	if err := eventBus.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start event bus")
	}

	generator.Start(ctx)
	detector.Start(ctx)

	// HTTP controllers
	medicationController := httpHandler.NewHTTPMedicationController(medicationService)
	doseController := httpHandler.NewHTTPDoseController(doseService)
	adminController := httpHandler.NewAdminController(generator, detector, evaluator)

	jwtManager := jwtutil.NewJWTManager(cfg.JWTSecret, cfg.JWTDuration)
	var capabilities middleware.CapabilityChecker = middleware.AllowAllCapabilities{}

	r := chi.NewRouter()
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.LoggingMiddleware)
	r.Use(middleware.ErrorHandler)
	r.Use(middleware.TimeoutMiddleware(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"dosewise"}`))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTAuthMiddleware(jwtManager))

		r.Route("/medications", func(r chi.Router) {
			r.Post("/", medicationController.CreateMedication)
			r.Get("/{id}", medicationController.GetMedication)
			r.Put("/{id}/schedule", medicationController.UpdateSchedule)
			r.Put("/{id}/status", medicationController.ChangeStatus)
			r.Post("/{id}/verify", medicationController.VerifyMedication)
			r.Get("/{id}/timeline", doseController.CommandTimeline)

			r.Route("/{id}/doses", func(r chi.Router) {
				r.Get("/occurrence", doseController.Occurrence)
				r.Post("/taken", doseController.MarkTaken)
				r.Post("/skipped", doseController.MarkSkipped)
				r.Post("/snooze", doseController.Snooze)
				r.Post("/undo", doseController.UndoTaken)
				r.Post("/correct", doseController.Correct)
			})
		})

		r.Route("/patients/{patientId}", func(r chi.Router) {
			r.Use(middleware.RequireCapability(capabilities, "view_medication_records"))
			r.Get("/medications", medicationController.ListPatientMedications)
			r.Get("/timeline", doseController.PatientTimeline)
			r.Get("/adherence", doseController.AdherenceReport)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Post("/jobs/generate", adminController.TriggerGeneration)
			r.Post("/jobs/sweep", adminController.TriggerSweep)
			r.Post("/jobs/evaluate/{patientId}", adminController.TriggerEvaluation)
			r.Get("/diagnostics", adminController.GetDiagnostics)
		})
	})

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: r,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	generator.Stop()
	detector.Stop()
	eventBus.Stop()
	log.Info().Msg("Server stopped")
}
