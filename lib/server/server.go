package server

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/vellumhq/vellum-go/lib"
	api2 "github.com/vellumhq/vellum-go/lib/api"
	"github.com/vellumhq/vellum-go/lib/branch"
	"github.com/vellumhq/vellum-go/lib/collab"
	"github.com/vellumhq/vellum-go/lib/diff"
	"github.com/vellumhq/vellum-go/lib/history"
	"github.com/vellumhq/vellum-go/lib/metrics"
	settings2 "github.com/vellumhq/vellum-go/lib/settings"
	"github.com/vellumhq/vellum-go/lib/utils"
	"github.com/vellumhq/vellum-go/lib/ws"
)

func InitServer(setupLogger *zap.SugaredLogger) {
	settings2.InitSettings(setupLogger)

	var settings = settings2.Displayed

	gitVersion := settings2.GetGitCommit()
	setupLogger.Info("Starting Vellum...")
	setupLogger.Info("Report bugs at https://github.com/vellumhq/vellum-go/issues")
	setupLogger.Info("Your Vellum version is " + gitVersion)

	versionStore, err := utils.GetStore(settings, setupLogger)
	if err != nil {
		setupLogger.Fatal("Error opening version store: " + err.Error())
		return
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	historyManager := history.NewManager(versionStore, setupLogger)
	branchManager := branch.NewManager(versionStore, historyManager, setupLogger)
	diffEngine := diff.NewEngine(versionStore, setupLogger)
	coordinator := collab.NewCoordinator(historyManager, versionStore, setupLogger)

	hub := ws.NewHub()
	go hub.Run()

	var registry *prometheus.Registry
	var instrumentation *metrics.Metrics
	if settings.EnableMetrics {
		registry = prometheus.NewRegistry()
		instrumentation = metrics.NewMetrics(registry)
	}

	sessionHandler := ws.NewSessionMessageHandler(hub, coordinator, instrumentation)

	api2.InitAPI(&lib.InitStore{
		C:                 app,
		API:               app.Group("/api"),
		RetrievedSettings: &settings,
		Store:             versionStore,
		History:           historyManager,
		Branches:          branchManager,
		DiffEngine:        diffEngine,
		Coordinator:       coordinator,
		Hub:               hub,
		Handler:           sessionHandler,
		Metrics:           instrumentation,
		Registry:          registry,
		Validator:         lib.NewValidator(),
		Logger:            setupLogger,
	})

	app.Get("/collab/ws", func(c *fiber.Ctx) error {
		sessionID := c.Query("sessionId")
		authorID := c.Query("authorId")
		if sessionID == "" || authorID == "" {
			return c.Status(http.StatusBadRequest).Send([]byte("sessionId and authorId are required"))
		}
		return adaptor.HTTPHandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			ws.ServeWs(writer, request, sessionID, authorID, setupLogger, sessionHandler)
		})(c)
	})

	StartUpdateRoutine(setupLogger, gitVersion)

	// Flush open sessions before the process goes away.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		setupLogger.Info("Shutting down...")
		if err := app.Shutdown(); err != nil {
			setupLogger.Error("Error shutting down web server: " + err.Error())
		}
	}()

	fiberString := fmt.Sprintf("%s:%s", settings.IP, settings.Port)
	setupLogger.Info("Starting API on " + fiberString)
	if err := app.Listen(fiberString); err != nil {
		setupLogger.Error("Error starting API: " + err.Error())
		os.Exit(1)
	}

	coordinator.Shutdown()
	if err := versionStore.Close(); err != nil {
		setupLogger.Error("Error closing version store: " + err.Error())
	}
}
