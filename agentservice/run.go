// Package agentservice wires the meeting agent together and runs the HTTP
// server plus the background loops (scheduler, health checkers).
package agentservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/attendly/attendly/server/internal/api"
	"github.com/attendly/attendly/server/internal/api/recovery"
	"github.com/attendly/attendly/server/internal/capture"
	"github.com/attendly/attendly/server/internal/config"
	"github.com/attendly/attendly/server/internal/factory"
	"github.com/attendly/attendly/server/internal/graph"
	"github.com/attendly/attendly/server/internal/health"
	"github.com/attendly/attendly/server/internal/insight"
	"github.com/attendly/attendly/server/internal/logger"
	"github.com/attendly/attendly/server/internal/scheduler"
	"github.com/attendly/attendly/server/internal/services"
	"github.com/attendly/attendly/server/internal/store"
)

// Run starts the meeting agent service and blocks until shutdown or error.
func Run() error {
	log := logger.New("agent-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Int("http_port", cfg.HTTPPort).
		Str("organizer", cfg.OrganizerEmail).
		Str("insight_provider", cfg.InsightProvider).
		Msg("Meeting agent service starting")

	// Cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	st, graphClient, provider, err := initDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}

	// Services and background loops
	captureMgr := capture.NewManager(st, graphClient, provider,
		time.Duration(cfg.CaptureIntervalSeconds)*time.Second, log)
	summarySvc := services.NewSummaryService(st, provider, log)
	attendanceSvc := services.NewAttendanceService(st, captureMgr, summarySvc, ctx, log)
	sched := scheduler.New(st, attendanceSvc, scheduler.Config{
		Interval: time.Duration(cfg.SchedulerIntervalSeconds) * time.Second,
	}, log)
	meetingSvc := services.NewMeetingService(st, graphClient, sched, captureMgr, cfg.OrganizerEmail, log)

	router := buildRouter(cfg, st, meetingSvc, attendanceSvc, summarySvc)

	// Health checkers and startup gate
	svcHealth := startHealthCheckers(ctx, cfg, log, st, graphClient, provider)
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Err(err).Msg("startup health check failed")
		return err
	}

	// Recover durable state before the scheduler starts ticking: restart
	// capture loops for attended meetings, then re-arm or fire leave timers.
	if err := attendanceSvc.Resume(ctx); err != nil {
		log.Error().Err(err).Msg("capture resume failed")
	}
	if err := sched.Reconcile(ctx); err != nil {
		log.Error().Err(err).Msg("scheduler reconcile failed")
	}
	go func() {
		if err := sched.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		captureMgr.Shutdown()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Err(err).Msg("HTTP server failed")
		return err
	}
}

// initDependencies constructs the store, Graph client, and insight provider;
// fails fast when any of them cannot be built.
func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, graph.Client, insight.Provider, error) {
	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Store unavailable")
		return nil, nil, nil, err
	}
	graphClient := factory.NewGraphClient(cfg)
	provider := factory.NewInsightProvider(cfg, log)
	return st, graphClient, provider, nil
}

// buildRouter wires HTTP routes to handlers.
func buildRouter(cfg *config.Config, st store.Store, meetingSvc *services.MeetingService, attendanceSvc *services.AttendanceService, summarySvc *services.SummaryService) *mux.Router {
	root := mux.NewRouter()
	root.Use(recovery.Middleware)

	meeting := api.NewMeetingHandler(meetingSvc, cfg.OrganizerEmail)
	attendance := api.NewAttendanceHandler(attendanceSvc, cfg.OrganizerEmail)
	summary := api.NewSummaryHandler(summarySvc, cfg.OrganizerEmail)
	directory := api.NewDirectoryHandler(meetingSvc)
	admin := api.NewAdminHandler(st)

	// Meetings. The status route is registered before the {meetingId}
	// routes so "status" is not captured as an id.
	root.HandleFunc("/api/meetings/status", meeting.AgentStatus).Methods("GET")
	root.HandleFunc("/api/meetings", meeting.CreateMeeting).Methods("POST")
	root.HandleFunc("/api/meetings", meeting.ListMeetings).Methods("GET")
	root.HandleFunc("/api/meetings/{meetingId}", meeting.GetMeeting).Methods("GET")
	root.HandleFunc("/api/meetings/{meetingId}", meeting.UpdateMeeting).Methods("PATCH")
	root.HandleFunc("/api/meetings/{meetingId}", meeting.CancelMeeting).Methods("DELETE")
	root.HandleFunc("/api/meetings/{meetingId}/messages", meeting.ListMessages).Methods("GET")

	// Attendance
	root.HandleFunc("/api/meetings/{meetingId}/join-agent", attendance.JoinAgent).Methods("POST")
	root.HandleFunc("/api/meetings/{meetingId}/leave-agent", attendance.LeaveAgent).Methods("POST")

	// Summaries
	root.HandleFunc("/api/meetings/{meetingId}/summary", summary.GetSummary).Methods("GET")
	root.HandleFunc("/api/meetings/{meetingId}/summary", summary.RegenerateSummary).Methods("POST")

	// Directory
	root.HandleFunc("/api/users/search", directory.SearchUsers).Methods("GET")
	root.HandleFunc("/api/schedule/availability", directory.Availability).Methods("GET")

	// Operator
	root.HandleFunc("/api/admin/scheduler/report", admin.SchedulerReport).Methods("GET")

	// Health
	healthHandler := api.NewHealthHandler()
	root.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")

	return root
}

// startHealthCheckers starts component checkers and the service aggregator.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store, graphClient graph.Client, provider insight.Provider) *health.ServiceHealthChecker {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	var checkers []health.HealthChecker

	storeChecker := store.NewStoreHealthChecker(st, log, probeTimeout)
	go storeChecker.Start(ctx, interval)
	checkers = append(checkers, storeChecker)

	graphChecker := graph.NewClientHealthChecker(graphClient, log, probeTimeout)
	go graphChecker.Start(ctx, interval)
	checkers = append(checkers, graphChecker)

	providerChecker := insight.NewProviderHealthChecker(provider, log, probeTimeout)
	go providerChecker.Start(ctx, interval)
	checkers = append(checkers, providerChecker)

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, interval)
	api.BindServiceHealth(svcHealth.IsHealthy)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// calculateStartupHealthTimeout returns the startup health timeout in seconds,
// calculated as interval*2 with a minimum of 60 seconds.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
