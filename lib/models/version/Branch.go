package version

import "time"

// TrunkBranchName is the branch every content path starts on. Publishing is
// only allowed for versions committed to it.
const TrunkBranchName = "main"

type Branch struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	ContentPath   string    `json:"contentPath"`
	BaseVersionID string    `json:"baseVersionId"`
	HeadVersionID string    `json:"headVersionId"`
	CreatedBy     string    `json:"createdBy"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (b *Branch) IsTrunk() bool {
	return b.Name == TrunkBranchName
}
