package branches

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/vellumhq/vellum-go/lib"
	apiErrors "github.com/vellumhq/vellum-go/lib/api/errors"
	"github.com/vellumhq/vellum-go/lib/exception"
	"github.com/vellumhq/vellum-go/lib/metrics"
	"github.com/vellumhq/vellum-go/lib/models/author"
	"github.com/vellumhq/vellum-go/lib/models/version"
)

// CreateBranchRequest represents the request to fork a new branch
type CreateBranchRequest struct {
	ContentPath   string               `json:"contentPath" validate:"required"`
	Name          string               `json:"name" validate:"required"`
	Description   string               `json:"description"`
	BaseVersionID string               `json:"baseVersionId"`
	Author        author.VersionAuthor `json:"author" validate:"required"`
}

// MergeBranchRequest represents the request to merge one branch into another
type MergeBranchRequest struct {
	ContentPath string               `json:"contentPath" validate:"required"`
	Source      string               `json:"source" validate:"required"`
	Target      string               `json:"target" validate:"required"`
	Author      author.VersionAuthor `json:"author" validate:"required"`
}

// BranchListResponse represents the response with all branches of a path
type BranchListResponse struct {
	ContentPath string            `json:"contentPath"`
	Branches    []*version.Branch `json:"branches"`
}

// CreateBranch godoc
// @Summary Create a branch
// @Description Forks a new branch from a base version, defaulting to the trunk head
// @Tags Branches
// @Accept json
// @Produce json
// @Param request body CreateBranchRequest true "Branch name, base version and author"
// @Success 200 {object} version.Branch
// @Failure 400 {object} errors.Error
// @Failure 404 {object} errors.Error
// @Failure 422 {object} errors.Error
// @Router /api/branches [post]
func CreateBranch(initStore *lib.InitStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var request CreateBranchRequest
		if err := c.BodyParser(&request); err != nil {
			return c.Status(400).JSON(apiErrors.InvalidRequestError)
		}
		if err := initStore.Validator.Struct(request); err != nil {
			return c.Status(400).JSON(apiErrors.FromValidation(err))
		}

		start := time.Now()
		created, err := initStore.Branches.CreateBranch(
			request.ContentPath, request.Name, request.Description, request.BaseVersionID, request.Author)
		if err != nil {
			initStore.Metrics.RecordOperation(metrics.OpCreateBranch, "error", time.Since(start))
			return apiErrors.Write(c, err)
		}
		initStore.Metrics.RecordOperation(metrics.OpCreateBranch, "ok", time.Since(start))

		return c.JSON(created)
	}
}

// ListBranches godoc
// @Summary List branches
// @Description Returns every branch of a content path, trunk included
// @Tags Branches
// @Produce json
// @Param path query string true "Content path"
// @Success 200 {object} BranchListResponse
// @Failure 400 {object} errors.Error
// @Failure 404 {object} errors.Error
// @Router /api/branches [get]
func ListBranches(initStore *lib.InitStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		contentPath := c.Query("path")
		if contentPath == "" {
			return c.Status(400).JSON(apiErrors.NewMissingParamError("path"))
		}

		found, err := initStore.Branches.GetBranches(contentPath)
		if err != nil {
			return apiErrors.Write(c, err)
		}
		return c.JSON(BranchListResponse{
			ContentPath: contentPath,
			Branches:    found,
		})
	}
}

// MergeBranch godoc
// @Summary Merge a branch
// @Description Three-way merges a source branch into a target branch; conflicting regions reject the merge with both competing changes
// @Tags Branches
// @Accept json
// @Produce json
// @Param request body MergeBranchRequest true "Source, target and author"
// @Success 200 {object} version.ContentVersion
// @Failure 400 {object} errors.Error
// @Failure 404 {object} errors.Error
// @Failure 409 {object} errors.MergeConflictResponse
// @Router /api/branches/merge [post]
func MergeBranch(initStore *lib.InitStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var request MergeBranchRequest
		if err := c.BodyParser(&request); err != nil {
			return c.Status(400).JSON(apiErrors.InvalidRequestError)
		}
		if err := initStore.Validator.Struct(request); err != nil {
			return c.Status(400).JSON(apiErrors.FromValidation(err))
		}

		start := time.Now()
		merged, err := initStore.Branches.MergeBranch(
			request.ContentPath, request.Source, request.Target, request.Author)
		if err != nil {
			initStore.Metrics.RecordOperation(metrics.OpMergeBranch, "error", time.Since(start))
			var conflictErr *exception.MergeConflictError
			if errors.As(err, &conflictErr) {
				initStore.Metrics.RecordMergeConflict()
			}
			return apiErrors.Write(c, err)
		}
		initStore.Metrics.RecordOperation(metrics.OpMergeBranch, "ok", time.Since(start))

		return c.JSON(merged)
	}
}

func Init(initStore *lib.InitStore) {
	initStore.API.Post("/branches", CreateBranch(initStore))
	initStore.API.Get("/branches", ListBranches(initStore))
	initStore.API.Post("/branches/merge", MergeBranch(initStore))
}
