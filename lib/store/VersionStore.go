package store

import (
	"github.com/vellumhq/vellum-go/lib/models/version"
)

type VersionMethods interface {
	// SaveVersion appends one immutable version and advances its branch head
	// in a single atomic step. The head is only moved when it still equals
	// expectedHeadID (empty for the first version on a branch); otherwise the
	// version is not written and a stale-parent error is returned.
	SaveVersion(v *version.ContentVersion, expectedHeadID string) error
	GetVersion(contentPath string, versionID string) (*version.ContentVersion, error)
	GetVersions(contentPath string) ([]*version.ContentVersion, error)
	DoesContentExist(contentPath string) (bool, error)
}

type BranchMethods interface {
	SaveBranch(b *version.Branch) error
	GetBranch(contentPath string, branchID string) (*version.Branch, error)
	GetBranchByName(contentPath string, name string) (*version.Branch, error)
	GetBranches(contentPath string) ([]*version.Branch, error)
	GetHead(contentPath string, branchID string) (string, error)
}

type PublishMethods interface {
	// SetPublished repoints the published marker for a content path and flips
	// the affected versions' status in the same atomic step.
	SetPublished(contentPath string, versionID string) error
	GetPublished(contentPath string) (string, error)
}

// VersionStore is the durable source of truth for version graphs. Versions
// are write-once; branch heads and the published pointer are the only mutable
// records it holds.
type VersionStore interface {
	VersionMethods
	BranchMethods
	PublishMethods
	Ping() error
	Close() error
}
