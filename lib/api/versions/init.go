package versions

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/vellumhq/vellum-go/lib"
	apiErrors "github.com/vellumhq/vellum-go/lib/api/errors"
	"github.com/vellumhq/vellum-go/lib/metrics"
	"github.com/vellumhq/vellum-go/lib/models/author"
	"github.com/vellumhq/vellum-go/lib/models/version"
)

// CreateVersionRequest represents the request to commit a new version
type CreateVersionRequest struct {
	ContentPath             string               `json:"contentPath" validate:"required"`
	Content                 string               `json:"content"`
	Author                  author.VersionAuthor `json:"author" validate:"required"`
	Branch                  string               `json:"branch"`
	Changes                 json.RawMessage      `json:"changes"`
	ExpectedParentVersionID string               `json:"expectedParentVersionId"`
}

// PublishVersionRequest represents the request to publish a version
type PublishVersionRequest struct {
	ContentPath string               `json:"contentPath" validate:"required"`
	VersionID   string               `json:"versionId" validate:"required"`
	Author      author.VersionAuthor `json:"author" validate:"required"`
}

// RollbackVersionRequest represents the request to roll back to a version
type RollbackVersionRequest struct {
	ContentPath string               `json:"contentPath" validate:"required"`
	VersionID   string               `json:"versionId" validate:"required"`
	Author      author.VersionAuthor `json:"author" validate:"required"`
}

// PublishVersionResponse represents the response after publishing
type PublishVersionResponse struct {
	ContentPath string `json:"contentPath"`
	VersionID   string `json:"versionId"`
	Status      string `json:"status"`
}

// CreateVersion godoc
// @Summary Commit a new version
// @Description Creates an immutable version of a content path, optionally on a named branch
// @Tags Versions
// @Accept json
// @Produce json
// @Param request body CreateVersionRequest true "Content, author and optional branch"
// @Success 200 {object} version.ContentVersion
// @Failure 400 {object} errors.Error
// @Failure 409 {object} errors.StaleHeadResponse
// @Failure 422 {object} errors.Error
// @Router /api/versions [post]
func CreateVersion(initStore *lib.InitStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var request CreateVersionRequest
		if err := c.BodyParser(&request); err != nil {
			return c.Status(400).JSON(apiErrors.InvalidRequestError)
		}
		if err := initStore.Validator.Struct(request); err != nil {
			return c.Status(400).JSON(apiErrors.FromValidation(err))
		}

		var changes []version.VersionChange
		if len(request.Changes) > 0 {
			parsed, err := version.UnmarshalChanges(request.Changes)
			if err != nil {
				return c.Status(400).JSON(apiErrors.NewInvalidParamError("changes"))
			}
			changes = parsed
		}

		start := time.Now()
		var created *version.ContentVersion
		var err error
		if request.Branch == "" || request.Branch == version.TrunkBranchName {
			created, err = initStore.History.CreateVersion(
				request.ContentPath, request.Content, request.Author, changes, request.ExpectedParentVersionID)
		} else {
			created, err = initStore.History.CreateVersionOnBranch(
				request.ContentPath, request.Branch, request.Content, request.Author, changes, request.ExpectedParentVersionID)
		}
		if err != nil {
			initStore.Metrics.RecordOperation(metrics.OpCreateVersion, "error", time.Since(start))
			return apiErrors.Write(c, err)
		}
		initStore.Metrics.RecordOperation(metrics.OpCreateVersion, "ok", time.Since(start))

		return c.JSON(created)
	}
}

// GetVersion godoc
// @Summary Get a single version
// @Description Returns one version of a content path by id
// @Tags Versions
// @Produce json
// @Param versionId path string true "Version ID"
// @Param path query string true "Content path"
// @Success 200 {object} version.ContentVersion
// @Failure 400 {object} errors.Error
// @Failure 404 {object} errors.Error
// @Router /api/versions/{versionId} [get]
func GetVersion(initStore *lib.InitStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		contentPath := c.Query("path")
		if contentPath == "" {
			return c.Status(400).JSON(apiErrors.NewMissingParamError("path"))
		}

		found, err := initStore.History.GetVersion(contentPath, c.Params("versionId"))
		if err != nil {
			return apiErrors.Write(c, err)
		}
		return c.JSON(found)
	}
}

// PublishVersion godoc
// @Summary Publish a version
// @Description Marks a trunk version as the published one for its content path
// @Tags Versions
// @Accept json
// @Produce json
// @Param request body PublishVersionRequest true "Version and publisher"
// @Success 200 {object} PublishVersionResponse
// @Failure 400 {object} errors.Error
// @Failure 404 {object} errors.Error
// @Failure 409 {object} errors.Error
// @Router /api/versions/publish [post]
func PublishVersion(initStore *lib.InitStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var request PublishVersionRequest
		if err := c.BodyParser(&request); err != nil {
			return c.Status(400).JSON(apiErrors.InvalidRequestError)
		}
		if err := initStore.Validator.Struct(request); err != nil {
			return c.Status(400).JSON(apiErrors.FromValidation(err))
		}

		start := time.Now()
		err := initStore.History.PublishVersion(request.ContentPath, request.VersionID, request.Author)
		if err != nil {
			initStore.Metrics.RecordOperation(metrics.OpPublish, "error", time.Since(start))
			return apiErrors.Write(c, err)
		}
		initStore.Metrics.RecordOperation(metrics.OpPublish, "ok", time.Since(start))

		return c.JSON(PublishVersionResponse{
			ContentPath: request.ContentPath,
			VersionID:   request.VersionID,
			Status:      string(version.StatusPublished),
		})
	}
}

// RollbackVersion godoc
// @Summary Roll back to a version
// @Description Creates a new trunk version whose content equals an older version
// @Tags Versions
// @Accept json
// @Produce json
// @Param request body RollbackVersionRequest true "Target version and author"
// @Success 200 {object} version.ContentVersion
// @Failure 400 {object} errors.Error
// @Failure 404 {object} errors.Error
// @Router /api/versions/rollback [post]
func RollbackVersion(initStore *lib.InitStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var request RollbackVersionRequest
		if err := c.BodyParser(&request); err != nil {
			return c.Status(400).JSON(apiErrors.InvalidRequestError)
		}
		if err := initStore.Validator.Struct(request); err != nil {
			return c.Status(400).JSON(apiErrors.FromValidation(err))
		}

		start := time.Now()
		restored, err := initStore.History.RollbackToVersion(request.ContentPath, request.VersionID, request.Author)
		if err != nil {
			initStore.Metrics.RecordOperation(metrics.OpRollback, "error", time.Since(start))
			return apiErrors.Write(c, err)
		}
		initStore.Metrics.RecordOperation(metrics.OpRollback, "ok", time.Since(start))

		return c.JSON(restored)
	}
}

// GetHistory godoc
// @Summary Get version history
// @Description Returns every version, the latest and published pointers and all branches of a content path
// @Tags Versions
// @Produce json
// @Param path query string true "Content path"
// @Success 200 {object} version.VersionHistory
// @Failure 400 {object} errors.Error
// @Failure 404 {object} errors.Error
// @Router /api/history [get]
func GetHistory(initStore *lib.InitStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		contentPath := c.Query("path")
		if contentPath == "" {
			return c.Status(400).JSON(apiErrors.NewMissingParamError("path"))
		}

		history, err := initStore.History.GetVersionHistory(contentPath)
		if err != nil {
			return apiErrors.Write(c, err)
		}
		return c.JSON(history)
	}
}

// GetDiff godoc
// @Summary Diff two versions
// @Description Returns the line changes that transform one version's content into another's
// @Tags Versions
// @Produce json
// @Param path query string true "Content path"
// @Param from query string true "Source version ID"
// @Param to query string true "Target version ID"
// @Success 200 {object} version.VersionDiff
// @Failure 400 {object} errors.Error
// @Failure 404 {object} errors.Error
// @Router /api/diff [get]
func GetDiff(initStore *lib.InitStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		contentPath := c.Query("path")
		if contentPath == "" {
			return c.Status(400).JSON(apiErrors.NewMissingParamError("path"))
		}
		from := c.Query("from")
		if from == "" {
			return c.Status(400).JSON(apiErrors.NewMissingParamError("from"))
		}
		to := c.Query("to")
		if to == "" {
			return c.Status(400).JSON(apiErrors.NewMissingParamError("to"))
		}

		diff, err := initStore.DiffEngine.GenerateDiff(contentPath, from, to)
		if err != nil {
			return apiErrors.Write(c, err)
		}
		return c.JSON(diff)
	}
}

// GetAnalytics godoc
// @Summary Get contribution analytics
// @Description Returns version, branch, merge and per-author activity counts for a content path
// @Tags Versions
// @Produce json
// @Param path query string true "Content path"
// @Success 200 {object} version.VersionAnalytics
// @Failure 400 {object} errors.Error
// @Failure 404 {object} errors.Error
// @Router /api/analytics [get]
func GetAnalytics(initStore *lib.InitStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		contentPath := c.Query("path")
		if contentPath == "" {
			return c.Status(400).JSON(apiErrors.NewMissingParamError("path"))
		}

		analytics, err := initStore.History.GetAnalytics(contentPath)
		if err != nil {
			return apiErrors.Write(c, err)
		}
		return c.JSON(analytics)
	}
}

func Init(initStore *lib.InitStore) {
	initStore.API.Post("/versions", CreateVersion(initStore))
	initStore.API.Get("/versions/:versionId", GetVersion(initStore))
	initStore.API.Post("/versions/publish", PublishVersion(initStore))
	initStore.API.Post("/versions/rollback", RollbackVersion(initStore))
	initStore.API.Get("/history", GetHistory(initStore))
	initStore.API.Get("/diff", GetDiff(initStore))
	initStore.API.Get("/analytics", GetAnalytics(initStore))
}
