package version

import (
	"encoding/json"
	"time"

	"github.com/vellumhq/vellum-go/lib/models/author"
)

type VersionStatus string

const (
	StatusDraft     VersionStatus = "draft"
	StatusPublished VersionStatus = "published"
)

// ContentVersion is an immutable snapshot of a piece of content. A version
// with one parent is a regular commit, two parents mark a merge, none mark
// the root of a history.
type ContentVersion struct {
	ID          string               `json:"id"`
	ContentPath string               `json:"contentPath"`
	ParentIDs   []string             `json:"parentIds"`
	BranchID    string               `json:"branchId"`
	Content     string               `json:"content"`
	Changes     []VersionChange      `json:"changes"`
	Author      author.VersionAuthor `json:"author"`
	CreatedAt   time.Time            `json:"createdAt"`
	Status      VersionStatus        `json:"status"`
}

func (v *ContentVersion) IsRoot() bool {
	return len(v.ParentIDs) == 0
}

func (v *ContentVersion) IsMerge() bool {
	return len(v.ParentIDs) > 1
}

func (v *ContentVersion) HasParent(id string) bool {
	for _, parentID := range v.ParentIDs {
		if parentID == id {
			return true
		}
	}
	return false
}

func (v *ContentVersion) UnmarshalJSON(data []byte) error {
	type alias ContentVersion
	aux := struct {
		Changes json.RawMessage `json:"changes"`
		*alias
	}{alias: (*alias)(v)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	changes, err := UnmarshalChanges(aux.Changes)
	if err != nil {
		return err
	}
	v.Changes = changes
	return nil
}
