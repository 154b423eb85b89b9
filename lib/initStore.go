package lib

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vellumhq/vellum-go/lib/branch"
	"github.com/vellumhq/vellum-go/lib/collab"
	"github.com/vellumhq/vellum-go/lib/diff"
	"github.com/vellumhq/vellum-go/lib/history"
	"github.com/vellumhq/vellum-go/lib/metrics"
	"github.com/vellumhq/vellum-go/lib/settings"
	"github.com/vellumhq/vellum-go/lib/store"
	"github.com/vellumhq/vellum-go/lib/ws"
	"go.uber.org/zap"
)

type InitStore struct {
	C                 *fiber.App
	API               fiber.Router
	RetrievedSettings *settings.Settings
	Store             store.VersionStore
	History           *history.Manager
	Branches          *branch.Manager
	DiffEngine        *diff.Engine
	Coordinator       *collab.Coordinator
	Hub               *ws.Hub
	Handler           *ws.SessionMessageHandler
	Metrics           *metrics.Metrics
	Registry          *prometheus.Registry
	Validator         *validator.Validate
	Logger            *zap.SugaredLogger
}

// NewValidator builds the request validator used across the API. Field names
// in validation errors come from the json tags so they match the wire format.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
