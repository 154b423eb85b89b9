package history

import (
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vellumhq/vellum-go/lib/diff"
	"github.com/vellumhq/vellum-go/lib/exception"
	"github.com/vellumhq/vellum-go/lib/models/author"
	"github.com/vellumhq/vellum-go/lib/models/version"
	"github.com/vellumhq/vellum-go/lib/settings"
	"github.com/vellumhq/vellum-go/lib/store"
)

var contentPathRegex *regexp.Regexp

func init() {
	contentPathRegex, _ = regexp.Compile(`^[^\s]{1,512}$`)
}

// Manager owns the version graph of every content path. Correctness under
// concurrent commits rests on the store's head compare-and-swap; the per-path
// mutex only keeps writers in the same process from burning attempts against
// each other. Distinct content paths never contend.
type Manager struct {
	store  store.VersionStore
	logger *zap.SugaredLogger

	mu        sync.Mutex
	pathLocks map[string]*sync.Mutex
}

func NewManager(s store.VersionStore, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		store:     s,
		logger:    logger,
		pathLocks: make(map[string]*sync.Mutex),
	}
}

func (m *Manager) lockFor(contentPath string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.pathLocks[contentPath]
	if !ok {
		l = &sync.Mutex{}
		m.pathLocks[contentPath] = l
	}
	return l
}

func (m *Manager) IsValidContentPath(contentPath string) bool {
	return contentPathRegex.MatchString(contentPath)
}

func (m *Manager) validateWrite(contentPath string, content string, by author.VersionAuthor) error {
	if !m.IsValidContentPath(contentPath) {
		return exception.NewInvalidContentPathError(contentPath)
	}
	if content == "" {
		return exception.NewEmptyContentError(contentPath)
	}
	if limit := settings.Displayed.Versioning.MaxContentBytes; len(content) > limit {
		return exception.NewContentTooLargeError(contentPath, len(content), limit)
	}
	if !by.IsValid() {
		return exception.NewInvalidAuthorError("requires an id")
	}
	return nil
}

// CreateVersion commits a new version. expectedParentVersionID names the head
// the caller built on: it must equal the current head of some branch (the
// trunk wins when two branches share a head) or the call fails with a
// stale-parent error carrying the actual trunk head. An empty expectation is
// only valid for the very first version of a path, which bootstraps the trunk
// branch. When changes is empty the change set is derived by diffing the
// parent's content against the new content.
func (m *Manager) CreateVersion(contentPath string, content string, by author.VersionAuthor, changes []version.VersionChange, expectedParentVersionID string) (*version.ContentVersion, error) {
	if err := m.validateWrite(contentPath, content, by); err != nil {
		return nil, err
	}

	lock := m.lockFor(contentPath)
	lock.Lock()
	defer lock.Unlock()

	branches, err := m.store.GetBranches(contentPath)
	if err != nil {
		return nil, err
	}

	if len(branches) == 0 {
		if expectedParentVersionID != "" {
			return nil, exception.NewStaleParentVersionError(contentPath, expectedParentVersionID, "")
		}
		return m.createRoot(contentPath, content, by, changes)
	}

	target := routeByHead(branches, expectedParentVersionID)
	if target == nil {
		actual := ""
		for _, b := range branches {
			if b.IsTrunk() {
				actual = b.HeadVersionID
			}
		}
		return nil, exception.NewStaleParentVersionError(contentPath, expectedParentVersionID, actual)
	}

	return m.commit(contentPath, content, by, changes, target, expectedParentVersionID)
}

// CreateVersionOnBranch commits to a named branch. The expectation must match
// that branch's current head exactly.
func (m *Manager) CreateVersionOnBranch(contentPath string, branchName string, content string, by author.VersionAuthor, changes []version.VersionChange, expectedParentVersionID string) (*version.ContentVersion, error) {
	if err := m.validateWrite(contentPath, content, by); err != nil {
		return nil, err
	}

	lock := m.lockFor(contentPath)
	lock.Lock()
	defer lock.Unlock()

	branch, err := m.store.GetBranchByName(contentPath, branchName)
	if err != nil {
		return nil, err
	}
	if branch.HeadVersionID != expectedParentVersionID {
		return nil, exception.NewStaleParentVersionError(contentPath, expectedParentVersionID, branch.HeadVersionID)
	}
	return m.commit(contentPath, content, by, changes, branch, expectedParentVersionID)
}

// CreateMergeVersion commits a two-parent version onto a branch. The first
// parent must be that branch's current head; the swap fails stale when the
// head moved after the merge content was computed.
func (m *Manager) CreateMergeVersion(contentPath string, content string, by author.VersionAuthor, changes []version.VersionChange, parentIDs []string, branchID string) (*version.ContentVersion, error) {
	if err := m.validateWrite(contentPath, content, by); err != nil {
		return nil, err
	}
	if len(parentIDs) != 2 {
		return nil, exception.NewValidationError("parentIds", "must name exactly two versions")
	}

	lock := m.lockFor(contentPath)
	lock.Lock()
	defer lock.Unlock()

	branch, err := m.store.GetBranch(contentPath, branchID)
	if err != nil {
		return nil, err
	}

	v := m.newVersion(contentPath, content, by, changes, parentIDs, branch.ID)
	if err := m.saveWithRetry(v, parentIDs[0]); err != nil {
		return nil, err
	}
	m.logger.Infow("merge version created",
		"contentPath", contentPath, "versionId", v.ID, "branch", branch.Name, "parents", parentIDs)
	return v, nil
}

// PublishVersion marks a trunk version as the published one. Versions on
// other branches have to be merged into the trunk before publication.
func (m *Manager) PublishVersion(contentPath string, versionID string, publisher author.VersionAuthor) error {
	if !m.IsValidContentPath(contentPath) {
		return exception.NewInvalidContentPathError(contentPath)
	}
	if !publisher.IsValid() {
		return exception.NewInvalidAuthorError("requires an id")
	}

	lock := m.lockFor(contentPath)
	lock.Lock()
	defer lock.Unlock()

	v, err := m.store.GetVersion(contentPath, versionID)
	if err != nil {
		return err
	}
	trunk, err := m.store.GetBranchByName(contentPath, version.TrunkBranchName)
	if err != nil {
		return err
	}
	if v.BranchID != trunk.ID {
		branchName := v.BranchID
		if b, lookupErr := m.store.GetBranch(contentPath, v.BranchID); lookupErr == nil {
			branchName = b.Name
		}
		return exception.NewVersionNotOnTrunkError(versionID, branchName)
	}

	if err := m.withRetry("set published", func() error {
		return m.store.SetPublished(contentPath, versionID)
	}); err != nil {
		return err
	}
	m.logger.Infow("version published",
		"contentPath", contentPath, "versionId", versionID, "publisher", publisher.ID)
	return nil
}

// RollbackToVersion appends a new trunk version carrying the target version's
// content. History is never rewritten; the rollback itself becomes part of it.
func (m *Manager) RollbackToVersion(contentPath string, versionID string, by author.VersionAuthor) (*version.ContentVersion, error) {
	if !m.IsValidContentPath(contentPath) {
		return nil, exception.NewInvalidContentPathError(contentPath)
	}
	if !by.IsValid() {
		return nil, exception.NewInvalidAuthorError("requires an id")
	}

	lock := m.lockFor(contentPath)
	lock.Lock()
	defer lock.Unlock()

	target, err := m.store.GetVersion(contentPath, versionID)
	if err != nil {
		return nil, err
	}
	trunk, err := m.store.GetBranchByName(contentPath, version.TrunkBranchName)
	if err != nil {
		return nil, err
	}
	head, err := m.store.GetVersion(contentPath, trunk.HeadVersionID)
	if err != nil {
		return nil, err
	}

	changes := diff.Diff(head.Content, target.Content)
	v := m.newVersion(contentPath, target.Content, by, changes, []string{head.ID}, trunk.ID)
	if err := m.saveWithRetry(v, head.ID); err != nil {
		return nil, err
	}
	m.logger.Infow("rolled back",
		"contentPath", contentPath, "to", versionID, "versionId", v.ID, "author", by.ID)
	return v, nil
}

// routeByHead picks the branch whose head equals the caller's expectation.
// The trunk is checked first so a branch freshly cut at the trunk head does
// not capture commits aimed at the trunk; the rest are checked by name for a
// deterministic answer.
func routeByHead(branches []*version.Branch, headID string) *version.Branch {
	ordered := make([]*version.Branch, len(branches))
	copy(ordered, branches)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].IsTrunk() != ordered[j].IsTrunk() {
			return ordered[i].IsTrunk()
		}
		return ordered[i].Name < ordered[j].Name
	})
	for _, b := range ordered {
		if b.HeadVersionID == headID {
			return b
		}
	}
	return nil
}

func (m *Manager) createRoot(contentPath string, content string, by author.VersionAuthor, changes []version.VersionChange) (*version.ContentVersion, error) {
	trunk := &version.Branch{
		ID:          uuid.NewString(),
		Name:        version.TrunkBranchName,
		ContentPath: contentPath,
		CreatedBy:   by.ID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := m.withRetry("save branch", func() error {
		return m.store.SaveBranch(trunk)
	}); err != nil {
		return nil, err
	}
	return m.commit(contentPath, content, by, changes, trunk, "")
}

// commit builds and saves one version on target. parentID may be empty for a
// root commit on a branch whose head is still unset.
func (m *Manager) commit(contentPath string, content string, by author.VersionAuthor, changes []version.VersionChange, target *version.Branch, parentID string) (*version.ContentVersion, error) {
	var parentIDs []string
	if parentID != "" {
		parentIDs = []string{parentID}
	}

	if len(changes) == 0 {
		if parentID == "" {
			changes = diff.FullContentChanges(content)
		} else {
			parent, err := m.store.GetVersion(contentPath, parentID)
			if err != nil {
				return nil, err
			}
			changes = diff.Diff(parent.Content, content)
		}
	}

	v := m.newVersion(contentPath, content, by, changes, parentIDs, target.ID)
	if err := m.saveWithRetry(v, parentID); err != nil {
		return nil, err
	}
	m.logger.Infow("version created",
		"contentPath", contentPath, "versionId", v.ID, "branch", target.Name, "author", by.ID)
	return v, nil
}

func (m *Manager) newVersion(contentPath string, content string, by author.VersionAuthor, changes []version.VersionChange, parentIDs []string, branchID string) *version.ContentVersion {
	return &version.ContentVersion{
		ID:          uuid.NewString(),
		ContentPath: contentPath,
		ParentIDs:   parentIDs,
		BranchID:    branchID,
		Content:     content,
		Changes:     changes,
		Author:      by,
		CreatedAt:   time.Now().UTC(),
		Status:      version.StatusDraft,
	}
}

// withRetry runs one store write, retrying only transient storage failures a
// bounded number of times. Conflicts, validation failures and terminal
// storage errors surface on the first attempt.
func (m *Manager) withRetry(op string, fn func() error) error {
	attempts := settings.Displayed.Versioning.StorageRetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := settings.Displayed.Versioning.StorageRetryBackoff

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !exception.IsTransientStorage(err) {
			return err
		}
		if attempt < attempts {
			m.logger.Warnw("transient storage failure",
				"op", op, "attempt", attempt, "error", err)
			time.Sleep(backoff)
		}
	}
	return err
}

func (m *Manager) saveWithRetry(v *version.ContentVersion, expectedHeadID string) error {
	return m.withRetry("save version", func() error {
		return m.store.SaveVersion(v, expectedHeadID)
	})
}
