package store

import (
	"sync"

	"github.com/vellumhq/vellum-go/lib/exception"
	"github.com/vellumhq/vellum-go/lib/models/version"
)

// MemoryVersionStore keeps every record in process memory. It backs tests and
// single-node setups where durability does not matter.
type MemoryVersionStore struct {
	mu        sync.RWMutex
	versions  map[string]map[string]*version.ContentVersion
	order     map[string][]string
	branches  map[string]map[string]*version.Branch
	published map[string]string
}

func NewMemoryVersionStore() *MemoryVersionStore {
	return &MemoryVersionStore{
		versions:  make(map[string]map[string]*version.ContentVersion),
		order:     make(map[string][]string),
		branches:  make(map[string]map[string]*version.Branch),
		published: make(map[string]string),
	}
}

func (m *MemoryVersionStore) SaveVersion(v *version.ContentVersion, expectedHeadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	branches, ok := m.branches[v.ContentPath]
	if !ok {
		return exception.NewBranchNotFoundError(v.ContentPath, v.BranchID)
	}
	branch, ok := branches[v.BranchID]
	if !ok {
		return exception.NewBranchNotFoundError(v.ContentPath, v.BranchID)
	}

	if branch.HeadVersionID != expectedHeadID {
		return exception.NewStaleParentVersionError(v.ContentPath, expectedHeadID, branch.HeadVersionID)
	}

	if m.versions[v.ContentPath] == nil {
		m.versions[v.ContentPath] = make(map[string]*version.ContentVersion)
	}

	stored := *v
	m.versions[v.ContentPath][v.ID] = &stored
	m.order[v.ContentPath] = append(m.order[v.ContentPath], v.ID)
	branch.HeadVersionID = v.ID
	return nil
}

func (m *MemoryVersionStore) GetVersion(contentPath string, versionID string) (*version.ContentVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.versions[contentPath][versionID]
	if !ok {
		return nil, exception.NewVersionNotFoundError(contentPath, versionID)
	}
	found := *stored
	return &found, nil
}

func (m *MemoryVersionStore) GetVersions(contentPath string) ([]*version.ContentVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids, ok := m.order[contentPath]
	if !ok {
		return nil, exception.NewContentNotFoundError(contentPath)
	}

	versions := make([]*version.ContentVersion, 0, len(ids))
	for _, id := range ids {
		found := *m.versions[contentPath][id]
		versions = append(versions, &found)
	}
	return versions, nil
}

func (m *MemoryVersionStore) DoesContentExist(contentPath string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.order[contentPath]) > 0, nil
}

func (m *MemoryVersionStore) SaveBranch(b *version.Branch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	branches, ok := m.branches[b.ContentPath]
	if !ok {
		branches = make(map[string]*version.Branch)
		m.branches[b.ContentPath] = branches
	}

	for _, existing := range branches {
		if existing.Name == b.Name && existing.ID != b.ID {
			return exception.NewDuplicateBranchNameError(b.ContentPath, b.Name)
		}
	}

	stored := *b
	branches[b.ID] = &stored
	return nil
}

func (m *MemoryVersionStore) GetBranch(contentPath string, branchID string) (*version.Branch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.branches[contentPath][branchID]
	if !ok {
		return nil, exception.NewBranchNotFoundError(contentPath, branchID)
	}
	found := *stored
	return &found, nil
}

func (m *MemoryVersionStore) GetBranchByName(contentPath string, name string) (*version.Branch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, stored := range m.branches[contentPath] {
		if stored.Name == name {
			found := *stored
			return &found, nil
		}
	}
	return nil, exception.NewBranchNotFoundError(contentPath, name)
}

func (m *MemoryVersionStore) GetBranches(contentPath string) ([]*version.Branch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	branches := make([]*version.Branch, 0, len(m.branches[contentPath]))
	for _, stored := range m.branches[contentPath] {
		found := *stored
		branches = append(branches, &found)
	}
	return branches, nil
}

func (m *MemoryVersionStore) GetHead(contentPath string, branchID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.branches[contentPath][branchID]
	if !ok {
		return "", exception.NewBranchNotFoundError(contentPath, branchID)
	}
	return stored.HeadVersionID, nil
}

func (m *MemoryVersionStore) SetPublished(contentPath string, versionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.versions[contentPath][versionID]
	if !ok {
		return exception.NewVersionNotFoundError(contentPath, versionID)
	}

	if previousID, ok := m.published[contentPath]; ok {
		if previous, ok := m.versions[contentPath][previousID]; ok {
			previous.Status = version.StatusDraft
		}
	}

	target.Status = version.StatusPublished
	m.published[contentPath] = versionID
	return nil
}

func (m *MemoryVersionStore) GetPublished(contentPath string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.published[contentPath], nil
}

func (m *MemoryVersionStore) Ping() error {
	return nil
}

func (m *MemoryVersionStore) Close() error {
	return nil
}

var _ VersionStore = (*MemoryVersionStore)(nil)
