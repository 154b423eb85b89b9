package branches

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vellumhq/vellum-go/lib"
	apiErrors "github.com/vellumhq/vellum-go/lib/api/errors"
	"github.com/vellumhq/vellum-go/lib/branch"
	"github.com/vellumhq/vellum-go/lib/history"
	"github.com/vellumhq/vellum-go/lib/models/author"
	"github.com/vellumhq/vellum-go/lib/models/version"
	"github.com/vellumhq/vellum-go/lib/settings"
	"github.com/vellumhq/vellum-go/lib/store"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *lib.InitStore {
	logger := zap.NewNop().Sugar()
	versionStore := store.NewMemoryVersionStore()
	historyManager := history.NewManager(versionStore, logger)

	app := fiber.New()
	initStore := &lib.InitStore{
		C:                 app,
		API:               app.Group("/api"),
		RetrievedSettings: &settings.Displayed,
		Store:             versionStore,
		History:           historyManager,
		Branches:          branch.NewManager(versionStore, historyManager, logger),
		Validator:         lib.NewValidator(),
		Logger:            logger,
	}
	Init(initStore)
	return initStore
}

func newTestAuthor() author.VersionAuthor {
	return author.VersionAuthor{
		ID:   gofakeit.UUID(),
		Name: gofakeit.Name(),
	}
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) *http.Response {
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, target any) {
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, target))
}

func TestCreateAndListBranches(t *testing.T) {
	initStore := newTestStore(t)
	alice := newTestAuthor()

	v1, err := initStore.History.CreateVersion("docs/guide", "A\nB\nC", alice, nil, "")
	require.NoError(t, err)

	resp := postJSON(t, initStore.C, "/api/branches", CreateBranchRequest{
		ContentPath: "docs/guide",
		Name:        "draft-2",
		Description: "second draft",
		Author:      alice,
	})
	require.Equal(t, 200, resp.StatusCode)

	var created version.Branch
	decodeInto(t, resp, &created)
	assert.Equal(t, "draft-2", created.Name)
	assert.Equal(t, v1.ID, created.BaseVersionID)
	assert.Equal(t, v1.ID, created.HeadVersionID)

	req := httptest.NewRequest("GET", "/api/branches?path=docs/guide", nil)
	listResp, err := initStore.C.Test(req, 5000)
	require.NoError(t, err)
	require.Equal(t, 200, listResp.StatusCode)

	var listed BranchListResponse
	decodeInto(t, listResp, &listed)
	require.Len(t, listed.Branches, 2)

	names := []string{listed.Branches[0].Name, listed.Branches[1].Name}
	assert.Contains(t, names, version.TrunkBranchName)
	assert.Contains(t, names, "draft-2")
}

func TestCreateBranchRejections(t *testing.T) {
	initStore := newTestStore(t)
	alice := newTestAuthor()

	_, err := initStore.History.CreateVersion("docs/guide", "A\nB\nC", alice, nil, "")
	require.NoError(t, err)
	_, err = initStore.Branches.CreateBranch("docs/guide", "draft-2", "", "", alice)
	require.NoError(t, err)

	resp := postJSON(t, initStore.C, "/api/branches", CreateBranchRequest{
		ContentPath: "docs/guide",
		Name:        "draft-2",
		Author:      alice,
	})
	require.Equal(t, 422, resp.StatusCode)

	var duplicate apiErrors.Error
	decodeInto(t, resp, &duplicate)
	assert.Equal(t, "DUPLICATE_BRANCH_NAME", duplicate.Code)

	resp = postJSON(t, initStore.C, "/api/branches", CreateBranchRequest{
		ContentPath: "docs/ghost",
		Name:        "draft-3",
		Author:      alice,
	})
	assert.Equal(t, 404, resp.StatusCode)

	resp = postJSON(t, initStore.C, "/api/branches", CreateBranchRequest{
		ContentPath: "docs/guide",
		Author:      alice,
	})
	require.Equal(t, 400, resp.StatusCode)

	var missing apiErrors.Error
	decodeInto(t, resp, &missing)
	assert.Equal(t, "MISSING_PARAM", missing.Code)
	assert.Contains(t, missing.Message, "name")
}

func TestMergeDisjointBranches(t *testing.T) {
	initStore := newTestStore(t)
	alice := newTestAuthor()
	bob := newTestAuthor()

	v1, err := initStore.History.CreateVersion("docs/guide", "A\nB\nC", alice, nil, "")
	require.NoError(t, err)
	_, err = initStore.Branches.CreateBranch("docs/guide", "feature", "", v1.ID, bob)
	require.NoError(t, err)

	v2, err := initStore.History.CreateVersion("docs/guide", "A2\nB\nC", alice, nil, v1.ID)
	require.NoError(t, err)
	v1b, err := initStore.History.CreateVersionOnBranch("docs/guide", "feature", "A\nB\nC2", bob, nil, v1.ID)
	require.NoError(t, err)

	resp := postJSON(t, initStore.C, "/api/branches/merge", MergeBranchRequest{
		ContentPath: "docs/guide",
		Source:      "feature",
		Target:      version.TrunkBranchName,
		Author:      alice,
	})
	require.Equal(t, 200, resp.StatusCode)

	var merged version.ContentVersion
	decodeInto(t, resp, &merged)
	assert.Equal(t, "A2\nB\nC2", merged.Content)
	assert.ElementsMatch(t, []string{v2.ID, v1b.ID}, merged.ParentIDs)
}

func TestMergeConflictReturnsBothChanges(t *testing.T) {
	initStore := newTestStore(t)
	alice := newTestAuthor()
	bob := newTestAuthor()

	v1, err := initStore.History.CreateVersion("docs/guide", "A\nB\nC", alice, nil, "")
	require.NoError(t, err)
	_, err = initStore.Branches.CreateBranch("docs/guide", "feature", "", v1.ID, bob)
	require.NoError(t, err)

	_, err = initStore.History.CreateVersion("docs/guide", "A\nB2\nC", alice, nil, v1.ID)
	require.NoError(t, err)
	_, err = initStore.History.CreateVersionOnBranch("docs/guide", "feature", "A\nB3\nC", bob, nil, v1.ID)
	require.NoError(t, err)

	resp := postJSON(t, initStore.C, "/api/branches/merge", MergeBranchRequest{
		ContentPath: "docs/guide",
		Source:      "feature",
		Target:      version.TrunkBranchName,
		Author:      alice,
	})
	require.Equal(t, 409, resp.StatusCode)

	var conflict apiErrors.MergeConflictResponse
	decodeInto(t, resp, &conflict)
	assert.Equal(t, "MERGE_CONFLICT", conflict.Code)
	assert.Equal(t, "feature", conflict.SourceBranch)
	assert.Equal(t, version.TrunkBranchName, conflict.TargetBranch)
	require.Len(t, conflict.Conflicts, 1)
	assert.NotNil(t, conflict.Conflicts[0].Source)
	assert.NotNil(t, conflict.Conflicts[0].Target)

	// The rejected merge must leave history untouched.
	versions, err := initStore.Store.GetVersions("docs/guide")
	require.NoError(t, err)
	assert.Len(t, versions, 3)
}

func TestMergeGuards(t *testing.T) {
	initStore := newTestStore(t)
	alice := newTestAuthor()

	v1, err := initStore.History.CreateVersion("docs/guide", "A\nB\nC", alice, nil, "")
	require.NoError(t, err)
	_, err = initStore.Branches.CreateBranch("docs/guide", "feature", "", v1.ID, alice)
	require.NoError(t, err)

	resp := postJSON(t, initStore.C, "/api/branches/merge", MergeBranchRequest{
		ContentPath: "docs/guide",
		Source:      version.TrunkBranchName,
		Target:      "feature",
		Author:      alice,
	})
	require.Equal(t, 409, resp.StatusCode)

	var trunkMerge apiErrors.Error
	decodeInto(t, resp, &trunkMerge)
	assert.Equal(t, "CANNOT_MERGE_TRUNK", trunkMerge.Code)

	resp = postJSON(t, initStore.C, "/api/branches/merge", MergeBranchRequest{
		ContentPath: "docs/guide",
		Source:      "ghost",
		Target:      version.TrunkBranchName,
		Author:      alice,
	})
	assert.Equal(t, 404, resp.StatusCode)

	resp = postJSON(t, initStore.C, "/api/branches/merge", MergeBranchRequest{
		ContentPath: "docs/guide",
		Source:      "feature",
		Author:      alice,
	})
	assert.Equal(t, 400, resp.StatusCode)
}
