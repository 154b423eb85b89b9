package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/vellumhq/vellum-go/lib"
	"github.com/vellumhq/vellum-go/lib/api/branches"
	"github.com/vellumhq/vellum-go/lib/api/sessions"
	"github.com/vellumhq/vellum-go/lib/api/stats"
	"github.com/vellumhq/vellum-go/lib/api/versions"
	"github.com/vellumhq/vellum-go/lib/metrics"
)

// InitAPI registers every HTTP route of the engine on the app carried by the
// init store. The /api group must already be set; health and metrics live at
// the root.
func InitAPI(initStore *lib.InitStore) {
	if initStore.API == nil {
		initStore.API = initStore.C.Group("/api")
	}

	initStore.C.Use(requestMetrics(initStore.Metrics))

	versions.Init(initStore)
	branches.Init(initStore)
	sessions.Init(initStore)
	stats.Init(initStore)
}

// requestMetrics observes every served request under its registered route
// pattern, keeping the label cardinality bounded.
func requestMetrics(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		m.RecordHTTPRequest(c.Method(), c.Route().Path, c.Response().StatusCode(), time.Since(start))
		return err
	}
}
