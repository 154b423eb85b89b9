package stats

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vellumhq/vellum-go/lib"
	"github.com/vellumhq/vellum-go/lib/collab"
	"github.com/vellumhq/vellum-go/lib/settings"
)

func Init(initStore *lib.InitStore) {
	checks := []Checker{
		StoreChecker{initStore.Store},
		SessionChecker{initStore.Coordinator},
		SocketChecker{initStore.Hub},
	}

	version, releaseID := settings.BuildInfo()
	initStore.C.Get("/health", Handler(
		version,
		releaseID,
		"vellum-api",
		checks,
	))

	if initStore.RetrievedSettings.EnableMetrics && initStore.Registry != nil {
		initStore.Metrics.RegisterSessionGauges(
			func() float64 {
				open := 0
				for _, snapshot := range initStore.Coordinator.ListSessions() {
					if snapshot.State != collab.StateClosed {
						open++
					}
				}
				return float64(open)
			},
			func() float64 {
				participants := 0
				for _, snapshot := range initStore.Coordinator.ListSessions() {
					participants += len(snapshot.Participants)
				}
				return float64(participants)
			},
		)

		initStore.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		handler := promhttp.HandlerFor(
			initStore.Registry,
			promhttp.HandlerOpts{},
		)
		initStore.C.Get("/metrics", adaptor.HTTPHandler(handler))
	}
}
