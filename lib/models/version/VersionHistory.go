package version

import "time"

// VersionHistory is a point-in-time view of everything recorded for a
// content path.
type VersionHistory struct {
	ContentPath      string             `json:"contentPath"`
	Versions         []*ContentVersion  `json:"versions"`
	LatestVersion    *ContentVersion    `json:"latestVersion,omitempty"`
	PublishedVersion *ContentVersion    `json:"publishedVersion,omitempty"`
	Branches         map[string]*Branch `json:"branches"`
}

// VersionAnalytics summarizes contribution activity across a history.
type VersionAnalytics struct {
	ContentPath        string         `json:"contentPath"`
	VersionCount       int            `json:"versionCount"`
	BranchCount        int            `json:"branchCount"`
	MergeCount         int            `json:"mergeCount"`
	AuthorCounts       map[string]int `json:"authorCounts"`
	TotalAdded         int            `json:"totalAdded"`
	TotalRemoved       int            `json:"totalRemoved"`
	TotalModified      int            `json:"totalModified"`
	PublishedVersionID string         `json:"publishedVersionId,omitempty"`
	LastActivity       time.Time      `json:"lastActivity"`
}
