package version

// DiffStats aggregates a change list by kind, counting affected lines.
type DiffStats struct {
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Modified int `json:"modified"`
}

// VersionDiff describes how to get from one version's content to another's.
type VersionDiff struct {
	FromVersionID string          `json:"fromVersionId"`
	ToVersionID   string          `json:"toVersionId"`
	Changes       []VersionChange `json:"changes"`
	Stats         DiffStats       `json:"stats"`
}

// ComputeStats tallies line counts per change kind.
func ComputeStats(changes []VersionChange) DiffStats {
	var stats DiffStats
	for _, change := range changes {
		switch c := change.(type) {
		case Addition:
			stats.Added += c.Lines.Len()
		case Deletion:
			stats.Removed += c.Lines.Len()
		case Modification:
			stats.Modified += c.Lines.Len()
		}
	}
	return stats
}
