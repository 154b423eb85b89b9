package diff

import (
	"github.com/vellumhq/vellum-go/lib/models/version"
	"github.com/vellumhq/vellum-go/lib/store"
	"go.uber.org/zap"
)

// Engine resolves version ids against the store and diffs their contents.
type Engine struct {
	store  store.VersionStore
	logger *zap.SugaredLogger
}

func NewEngine(versionStore store.VersionStore, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		store:  versionStore,
		logger: logger,
	}
}

// GenerateDiff loads both versions and computes the change set from the first
// to the second. Both ids must belong to contentPath. The result is always
// recomputed, never cached or stored.
func (e *Engine) GenerateDiff(contentPath string, fromVersionID string, toVersionID string) (*version.VersionDiff, error) {
	from, err := e.store.GetVersion(contentPath, fromVersionID)
	if err != nil {
		return nil, err
	}
	to, err := e.store.GetVersion(contentPath, toVersionID)
	if err != nil {
		return nil, err
	}

	changes := Diff(from.Content, to.Content)
	e.logger.Debugw("generated diff",
		"contentPath", contentPath,
		"from", fromVersionID,
		"to", toVersionID,
		"changes", len(changes))

	return &version.VersionDiff{
		FromVersionID: fromVersionID,
		ToVersionID:   toVersionID,
		Changes:       changes,
		Stats:         version.ComputeStats(changes),
	}, nil
}
