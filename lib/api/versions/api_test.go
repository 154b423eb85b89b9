package versions

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
	"github.com/vellumhq/vellum-go/lib/diff"
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
		DiffEngine:        diff.NewEngine(versionStore, logger),
		Coordinator:       nil,
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

func getJSON(t *testing.T, app *fiber.App, path string) *http.Response {
	req := httptest.NewRequest("GET", path, nil)
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, target any) {
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, target))
}

func TestCreateVersionAndHistory(t *testing.T) {
	initStore := newTestStore(t)
	alice := newTestAuthor()

	resp := postJSON(t, initStore.C, "/api/versions", CreateVersionRequest{
		ContentPath: "docs/guide",
		Content:     "A\nB\nC",
		Author:      alice,
	})
	require.Equal(t, 200, resp.StatusCode)

	var v1 version.ContentVersion
	decodeInto(t, resp, &v1)
	assert.NotEmpty(t, v1.ID)
	assert.Empty(t, v1.ParentIDs)
	assert.Equal(t, version.StatusDraft, v1.Status)

	resp = postJSON(t, initStore.C, "/api/versions", CreateVersionRequest{
		ContentPath:             "docs/guide",
		Content:                 "A\nB2\nC",
		Author:                  alice,
		ExpectedParentVersionID: v1.ID,
	})
	require.Equal(t, 200, resp.StatusCode)

	var v2 version.ContentVersion
	decodeInto(t, resp, &v2)
	assert.Equal(t, []string{v1.ID}, v2.ParentIDs)
	assert.Len(t, v2.Changes, 1)

	resp = getJSON(t, initStore.C, "/api/history?path=docs/guide")
	require.Equal(t, 200, resp.StatusCode)

	var fetched version.VersionHistory
	decodeInto(t, resp, &fetched)
	assert.Len(t, fetched.Versions, 2)
	require.NotNil(t, fetched.LatestVersion)
	assert.Equal(t, v2.ID, fetched.LatestVersion.ID)
	assert.Contains(t, fetched.Branches, version.TrunkBranchName)
}

func TestCreateVersionRejectsBadRequests(t *testing.T) {
	initStore := newTestStore(t)

	req := httptest.NewRequest("POST", "/api/versions", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := initStore.C.Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	resp = postJSON(t, initStore.C, "/api/versions", CreateVersionRequest{
		Content: "A\nB\nC",
		Author:  newTestAuthor(),
	})
	require.Equal(t, 400, resp.StatusCode)

	var missingParam apiErrors.Error
	decodeInto(t, resp, &missingParam)
	assert.Equal(t, "MISSING_PARAM", missingParam.Code)
	assert.Contains(t, missingParam.Message, "contentPath")

	resp = postJSON(t, initStore.C, "/api/versions", CreateVersionRequest{
		ContentPath: "docs/guide",
		Content:     "   \n  ",
		Author:      newTestAuthor(),
	})
	require.Equal(t, 422, resp.StatusCode)

	var emptyContent apiErrors.Error
	decodeInto(t, resp, &emptyContent)
	assert.Equal(t, "EMPTY_CONTENT", emptyContent.Code)
}

func TestCreateVersionStaleParentReturnsConflict(t *testing.T) {
	initStore := newTestStore(t)
	alice := newTestAuthor()

	v1, err := initStore.History.CreateVersion("docs/guide", "A\nB\nC", alice, nil, "")
	require.NoError(t, err)
	v2, err := initStore.History.CreateVersion("docs/guide", "A\nB2\nC", alice, nil, v1.ID)
	require.NoError(t, err)

	resp := postJSON(t, initStore.C, "/api/versions", CreateVersionRequest{
		ContentPath:             "docs/guide",
		Content:                 "A\nB3\nC",
		Author:                  alice,
		ExpectedParentVersionID: v1.ID,
	})
	require.Equal(t, 409, resp.StatusCode)

	var conflict apiErrors.StaleHeadResponse
	decodeInto(t, resp, &conflict)
	assert.Equal(t, "STALE_PARENT_VERSION", conflict.Code)
	assert.Equal(t, v1.ID, conflict.ExpectedHeadID)
	assert.Equal(t, v2.ID, conflict.ActualHeadID)
}

func TestPublishVersion(t *testing.T) {
	initStore := newTestStore(t)
	alice := newTestAuthor()

	v1, err := initStore.History.CreateVersion("docs/guide", "A\nB\nC", alice, nil, "")
	require.NoError(t, err)

	resp := postJSON(t, initStore.C, "/api/versions/publish", PublishVersionRequest{
		ContentPath: "docs/guide",
		VersionID:   v1.ID,
		Author:      alice,
	})
	require.Equal(t, 200, resp.StatusCode)

	var published PublishVersionResponse
	decodeInto(t, resp, &published)
	assert.Equal(t, string(version.StatusPublished), published.Status)

	resp = getJSON(t, initStore.C, "/api/history?path=docs/guide")
	require.Equal(t, 200, resp.StatusCode)

	var fetched version.VersionHistory
	decodeInto(t, resp, &fetched)
	require.NotNil(t, fetched.PublishedVersion)
	assert.Equal(t, v1.ID, fetched.PublishedVersion.ID)

	resp = postJSON(t, initStore.C, "/api/versions/publish", PublishVersionRequest{
		ContentPath: "docs/guide",
		VersionID:   "v-ghost",
		Author:      alice,
	})
	assert.Equal(t, 404, resp.StatusCode)
}

func TestPublishRejectsBranchVersions(t *testing.T) {
	initStore := newTestStore(t)
	alice := newTestAuthor()

	v1, err := initStore.History.CreateVersion("docs/guide", "A\nB\nC", alice, nil, "")
	require.NoError(t, err)
	_, err = initStore.Branches.CreateBranch("docs/guide", "draft-2", "", v1.ID, alice)
	require.NoError(t, err)

	resp := postJSON(t, initStore.C, "/api/versions", CreateVersionRequest{
		ContentPath:             "docs/guide",
		Content:                 "A\nB\nC\nD",
		Author:                  alice,
		Branch:                  "draft-2",
		ExpectedParentVersionID: v1.ID,
	})
	require.Equal(t, 200, resp.StatusCode)

	var branched version.ContentVersion
	decodeInto(t, resp, &branched)

	resp = postJSON(t, initStore.C, "/api/versions/publish", PublishVersionRequest{
		ContentPath: "docs/guide",
		VersionID:   branched.ID,
		Author:      alice,
	})
	require.Equal(t, 409, resp.StatusCode)

	var rejected apiErrors.Error
	decodeInto(t, resp, &rejected)
	assert.Equal(t, "VERSION_NOT_ON_TRUNK", rejected.Code)
}

func TestRollbackVersion(t *testing.T) {
	initStore := newTestStore(t)
	alice := newTestAuthor()

	v1, err := initStore.History.CreateVersion("docs/guide", "A\nB\nC", alice, nil, "")
	require.NoError(t, err)
	v2, err := initStore.History.CreateVersion("docs/guide", "A\nB2\nC", alice, nil, v1.ID)
	require.NoError(t, err)

	resp := postJSON(t, initStore.C, "/api/versions/rollback", RollbackVersionRequest{
		ContentPath: "docs/guide",
		VersionID:   v1.ID,
		Author:      alice,
	})
	require.Equal(t, 200, resp.StatusCode)

	var restored version.ContentVersion
	decodeInto(t, resp, &restored)
	assert.Equal(t, v1.Content, restored.Content)
	assert.Equal(t, []string{v2.ID}, restored.ParentIDs)
}

func TestGetVersion(t *testing.T) {
	initStore := newTestStore(t)
	alice := newTestAuthor()

	v1, err := initStore.History.CreateVersion("docs/guide", "A\nB\nC", alice, nil, "")
	require.NoError(t, err)

	resp := getJSON(t, initStore.C, "/api/versions/"+v1.ID+"?path=docs/guide")
	require.Equal(t, 200, resp.StatusCode)

	var fetched version.ContentVersion
	decodeInto(t, resp, &fetched)
	assert.Equal(t, v1.ID, fetched.ID)
	assert.Equal(t, v1.Content, fetched.Content)

	resp = getJSON(t, initStore.C, "/api/versions/"+v1.ID)
	assert.Equal(t, 400, resp.StatusCode)

	resp = getJSON(t, initStore.C, "/api/versions/v-ghost?path=docs/guide")
	assert.Equal(t, 404, resp.StatusCode)
}

func TestGetDiff(t *testing.T) {
	initStore := newTestStore(t)
	alice := newTestAuthor()

	v1, err := initStore.History.CreateVersion("docs/guide", "A\nB\nC", alice, nil, "")
	require.NoError(t, err)
	v2, err := initStore.History.CreateVersion("docs/guide", "A\nB2\nC", alice, nil, v1.ID)
	require.NoError(t, err)

	resp := getJSON(t, initStore.C, "/api/diff?path=docs/guide&from="+v1.ID+"&to="+v2.ID)
	require.Equal(t, 200, resp.StatusCode)

	var diffResult version.VersionDiff
	decodeInto(t, resp, &diffResult)
	assert.Equal(t, v1.ID, diffResult.FromVersionID)
	assert.Equal(t, v2.ID, diffResult.ToVersionID)
	assert.Equal(t, 1, diffResult.Stats.Modified)

	resp = getJSON(t, initStore.C, "/api/diff?path=docs/guide&from="+v1.ID)
	assert.Equal(t, 400, resp.StatusCode)

	resp = getJSON(t, initStore.C, "/api/diff?path=docs/guide&from=v-ghost&to="+v2.ID)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestGetAnalytics(t *testing.T) {
	initStore := newTestStore(t)
	alice := newTestAuthor()
	bob := newTestAuthor()

	v1, err := initStore.History.CreateVersion("docs/guide", "A\nB\nC", alice, nil, "")
	require.NoError(t, err)
	_, err = initStore.History.CreateVersion("docs/guide", "A\nB2\nC", bob, nil, v1.ID)
	require.NoError(t, err)

	resp := getJSON(t, initStore.C, "/api/analytics?path=docs/guide")
	require.Equal(t, 200, resp.StatusCode)

	var analytics version.VersionAnalytics
	decodeInto(t, resp, &analytics)
	assert.Equal(t, 2, analytics.VersionCount)
	assert.Equal(t, 1, analytics.AuthorCounts[alice.ID])
	assert.Equal(t, 1, analytics.AuthorCounts[bob.ID])

	resp = getJSON(t, initStore.C, "/api/analytics?path=docs/ghost")
	assert.Equal(t, 404, resp.StatusCode)
}
