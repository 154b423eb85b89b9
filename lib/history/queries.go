package history

import (
	"github.com/vellumhq/vellum-go/lib/models/version"
)

// GetVersion loads one committed version.
func (m *Manager) GetVersion(contentPath string, versionID string) (*version.ContentVersion, error) {
	return m.store.GetVersion(contentPath, versionID)
}

// DoesContentExist reports whether any version was ever committed for a path.
func (m *Manager) DoesContentExist(contentPath string) (bool, error) {
	return m.store.DoesContentExist(contentPath)
}

// GetVersionHistory returns the full graph view for a path: every version,
// every branch keyed by name, the trunk head and the published version. It
// reads only committed state, so it takes no lock.
func (m *Manager) GetVersionHistory(contentPath string) (*version.VersionHistory, error) {
	versions, err := m.store.GetVersions(contentPath)
	if err != nil {
		return nil, err
	}
	branches, err := m.store.GetBranches(contentPath)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*version.ContentVersion, len(versions))
	for _, v := range versions {
		byID[v.ID] = v
	}

	history := &version.VersionHistory{
		ContentPath: contentPath,
		Versions:    versions,
		Branches:    make(map[string]*version.Branch, len(branches)),
	}
	for _, b := range branches {
		history.Branches[b.Name] = b
		if b.IsTrunk() {
			history.LatestVersion = byID[b.HeadVersionID]
		}
	}

	publishedID, err := m.store.GetPublished(contentPath)
	if err != nil {
		return nil, err
	}
	if publishedID != "" {
		history.PublishedVersion = byID[publishedID]
	}
	return history, nil
}

// GetAnalytics aggregates contribution stats across a path's history.
func (m *Manager) GetAnalytics(contentPath string) (*version.VersionAnalytics, error) {
	versions, err := m.store.GetVersions(contentPath)
	if err != nil {
		return nil, err
	}
	branches, err := m.store.GetBranches(contentPath)
	if err != nil {
		return nil, err
	}

	publishedID, err := m.store.GetPublished(contentPath)
	if err != nil {
		return nil, err
	}

	analytics := &version.VersionAnalytics{
		ContentPath:        contentPath,
		VersionCount:       len(versions),
		BranchCount:        len(branches),
		AuthorCounts:       make(map[string]int),
		PublishedVersionID: publishedID,
	}
	for _, v := range versions {
		if v.IsMerge() {
			analytics.MergeCount++
		}
		analytics.AuthorCounts[v.Author.ID]++
		if v.CreatedAt.After(analytics.LastActivity) {
			analytics.LastActivity = v.CreatedAt
		}

		stats := version.ComputeStats(v.Changes)
		analytics.TotalAdded += stats.Added
		analytics.TotalRemoved += stats.Removed
		analytics.TotalModified += stats.Modified
	}
	return analytics, nil
}
