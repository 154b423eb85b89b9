package branch

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vellumhq/vellum-go/lib/diff"
	"github.com/vellumhq/vellum-go/lib/exception"
	"github.com/vellumhq/vellum-go/lib/history"
	"github.com/vellumhq/vellum-go/lib/models/author"
	"github.com/vellumhq/vellum-go/lib/models/version"
	"github.com/vellumhq/vellum-go/lib/store"
)

var branchNameRegex *regexp.Regexp

func init() {
	branchNameRegex, _ = regexp.Compile(`^[A-Za-z0-9][A-Za-z0-9._/-]{0,119}$`)
}

// Manager creates branches and performs textual three-way merges. Merge
// commits are written through the history manager so they share its
// compare-and-swap discipline.
type Manager struct {
	store   store.VersionStore
	history *history.Manager
	logger  *zap.SugaredLogger
}

func NewManager(s store.VersionStore, h *history.Manager, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		store:   s,
		history: h,
		logger:  logger,
	}
}

func (m *Manager) IsValidBranchName(name string) bool {
	return branchNameRegex.MatchString(name)
}

// CreateBranch cuts a new branch whose head starts at the base version, or at
// the current trunk head when no base is given. The base must already be
// committed and the name must be unused for the path.
func (m *Manager) CreateBranch(contentPath string, name string, description string, baseVersionID string, by author.VersionAuthor) (*version.Branch, error) {
	if !m.IsValidBranchName(name) {
		return nil, exception.NewValidationError("name", "must be a short slug without whitespace")
	}
	if !by.IsValid() {
		return nil, exception.NewInvalidAuthorError("requires an id")
	}

	if baseVersionID == "" {
		trunk, err := m.store.GetBranchByName(contentPath, version.TrunkBranchName)
		if err != nil {
			return nil, err
		}
		baseVersionID = trunk.HeadVersionID
	}
	base, err := m.store.GetVersion(contentPath, baseVersionID)
	if err != nil {
		return nil, err
	}

	branch := &version.Branch{
		ID:            uuid.NewString(),
		Name:          name,
		Description:   description,
		ContentPath:   contentPath,
		BaseVersionID: base.ID,
		HeadVersionID: base.ID,
		CreatedBy:     by.ID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := m.store.SaveBranch(branch); err != nil {
		return nil, err
	}
	m.logger.Infow("branch created",
		"contentPath", contentPath, "branch", name, "base", baseVersionID, "author", by.ID)
	return branch, nil
}

// GetBranch resolves a branch by name.
func (m *Manager) GetBranch(contentPath string, name string) (*version.Branch, error) {
	return m.store.GetBranchByName(contentPath, name)
}

// GetBranches lists every branch of a path.
func (m *Manager) GetBranches(contentPath string) ([]*version.Branch, error) {
	branches, err := m.store.GetBranches(contentPath)
	if err != nil {
		return nil, err
	}
	if len(branches) == 0 {
		return nil, exception.NewContentNotFoundError(contentPath)
	}
	return branches, nil
}

// MergeBranch merges the source branch into the target branch. Both sides are
// diffed against their nearest common ancestor; when no changed region of the
// ancestor is touched by both, the union of both change sets is applied to
// the ancestor and committed as a two-parent version advancing the target
// head. Any overlap aborts with a merge-conflict error listing the colliding
// pairs, and history is left untouched.
func (m *Manager) MergeBranch(contentPath string, sourceName string, targetName string, by author.VersionAuthor) (*version.ContentVersion, error) {
	if sourceName == version.TrunkBranchName {
		return nil, exception.NewCannotMergeTrunkError(contentPath)
	}
	if sourceName == targetName {
		return nil, exception.NewValidationError("sourceBranch", "cannot be merged into itself")
	}
	if !by.IsValid() {
		return nil, exception.NewInvalidAuthorError("requires an id")
	}

	source, err := m.store.GetBranchByName(contentPath, sourceName)
	if err != nil {
		return nil, err
	}
	target, err := m.store.GetBranchByName(contentPath, targetName)
	if err != nil {
		return nil, err
	}

	versions, err := m.store.GetVersions(contentPath)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*version.ContentVersion, len(versions))
	for _, v := range versions {
		byID[v.ID] = v
	}

	sourceHead, ok := byID[source.HeadVersionID]
	if !ok {
		return nil, exception.NewVersionNotFoundError(contentPath, source.HeadVersionID)
	}
	targetHead, ok := byID[target.HeadVersionID]
	if !ok {
		return nil, exception.NewVersionNotFoundError(contentPath, target.HeadVersionID)
	}

	ancestor := nearestCommonAncestor(byID, sourceHead.ID, targetHead.ID)
	if ancestor == nil {
		return nil, exception.NewValidationError("sourceBranch", "shares no history with the target branch")
	}
	if sourceHead.ID == ancestor.ID {
		m.logger.Infow("merge skipped, source contributes nothing new",
			"contentPath", contentPath, "source", source.Name, "target", target.Name)
		return targetHead, nil
	}

	sourceChanges := diff.Diff(ancestor.Content, sourceHead.Content)
	targetChanges := diff.Diff(ancestor.Content, targetHead.Content)

	conflicts := collideAll(sourceChanges, targetChanges)
	if len(conflicts) > 0 {
		return nil, exception.NewMergeConflictError(contentPath, source.Name, target.Name, conflicts)
	}

	combined := make([]version.VersionChange, 0, len(sourceChanges)+len(targetChanges))
	combined = append(combined, targetChanges...)
	combined = append(combined, sourceChanges...)
	mergedContent, err := diff.Apply(ancestor.Content, combined)
	if err != nil {
		return nil, err
	}

	merged, err := m.history.CreateMergeVersion(contentPath, mergedContent, by,
		diff.Diff(targetHead.Content, mergedContent),
		[]string{targetHead.ID, sourceHead.ID}, target.ID)
	if err != nil {
		return nil, err
	}
	m.logger.Infow("branches merged",
		"contentPath", contentPath, "source", source.Name, "target", target.Name, "versionId", merged.ID)
	return merged, nil
}

// collideAll pairs every source change with every target change touching the
// same region of the ancestor.
func collideAll(sourceChanges []version.VersionChange, targetChanges []version.VersionChange) []version.ChangeConflict {
	var conflicts []version.ChangeConflict
	for _, s := range sourceChanges {
		for _, t := range targetChanges {
			if version.ChangesCollide(s, t) {
				conflicts = append(conflicts, version.ChangeConflict{Source: s, Target: t})
			}
		}
	}
	return conflicts
}

// ancestorDepths walks parent links breadth first and records how many steps
// each reachable version is from start.
func ancestorDepths(byID map[string]*version.ContentVersion, startID string) map[string]int {
	depths := map[string]int{startID: 0}
	queue := []string{startID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		v, ok := byID[id]
		if !ok {
			continue
		}
		for _, parentID := range v.ParentIDs {
			if _, seen := depths[parentID]; !seen {
				depths[parentID] = depths[id] + 1
				queue = append(queue, parentID)
			}
		}
	}
	return depths
}

// nearestCommonAncestor returns the first version reachable from both heads,
// found by expanding b's ancestry breadth first against the full ancestry of
// a. Frontier order is the stored parent order, so the answer is
// deterministic for identical histories.
func nearestCommonAncestor(byID map[string]*version.ContentVersion, aID string, bID string) *version.ContentVersion {
	fromA := ancestorDepths(byID, aID)

	visited := map[string]bool{bID: true}
	queue := []string{bID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, shared := fromA[id]; shared {
			return byID[id]
		}
		v, ok := byID[id]
		if !ok {
			continue
		}
		for _, parentID := range v.ParentIDs {
			if !visited[parentID] {
				visited[parentID] = true
				queue = append(queue, parentID)
			}
		}
	}
	return nil
}
