package collab

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vellumhq/vellum-go/lib/diff"
	"github.com/vellumhq/vellum-go/lib/exception"
	"github.com/vellumhq/vellum-go/lib/history"
	"github.com/vellumhq/vellum-go/lib/models/author"
	"github.com/vellumhq/vellum-go/lib/models/version"
	"github.com/vellumhq/vellum-go/lib/settings"
	"github.com/vellumhq/vellum-go/lib/store"
)

// Coordinator owns every live collaboration session. A content path carries at
// most one open session at a time; all edits flow through the session's change
// log and reach storage only when the session ends.
type Coordinator struct {
	history *history.Manager
	store   store.VersionStore
	logger  *zap.SugaredLogger

	// mu guards the maps. When both are needed, mu is taken before any
	// session mutex.
	mu       sync.Mutex
	sessions map[string]*Session
	byPath   map[string]*Session

	reaperStop   chan struct{}
	reaperDone   chan struct{}
	shutdownOnce sync.Once
}

func NewCoordinator(historyManager *history.Manager, versionStore store.VersionStore, logger *zap.SugaredLogger) *Coordinator {
	c := &Coordinator{
		history:    historyManager,
		store:      versionStore,
		logger:     logger,
		sessions:   make(map[string]*Session),
		byPath:     make(map[string]*Session),
		reaperStop: make(chan struct{}),
		reaperDone: make(chan struct{}),
	}
	go c.reapIdleSessions()
	return c
}

// StartSession opens a session for a content path, pinned to the current head
// of the chosen branch. An empty branch name selects the trunk; a path with no
// history yet starts from empty content and creates the trunk on commit.
func (c *Coordinator) StartSession(contentPath string, branchName string, initiator author.VersionAuthor) (*SessionSnapshot, error) {
	if !c.history.IsValidContentPath(contentPath) {
		return nil, exception.NewInvalidContentPathError(contentPath)
	}
	if !initiator.IsValid() {
		return nil, exception.NewInvalidAuthorError("starting a session requires an author id")
	}

	if branchName == "" {
		branchName = version.TrunkBranchName
	}
	baseID, baseContent, err := c.resolveBase(contentPath, branchName)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing := c.byPath[contentPath]; existing != nil {
		existing.mu.Lock()
		state := existing.state
		existing.mu.Unlock()
		if state != StateClosed {
			return nil, exception.NewSessionAlreadyOpenError(contentPath, existing.ID)
		}
	}

	now := time.Now().UTC()
	s := &Session{
		ID:            uuid.NewString(),
		ContentPath:   contentPath,
		BranchName:    branchName,
		BaseVersionID: baseID,
		CreatedAt:     now,
		state:         StateOpen,
		participants:  map[string]author.VersionAuthor{initiator.ID: initiator},
		workingCopy:   baseContent,
		nextSeq:       1,
		lastActivity:  now,
		lastEditor:    initiator,
		subscribers:   make(map[int]subscriber),
	}
	c.sessions[s.ID] = s
	c.byPath[contentPath] = s

	c.logger.Infow("collaboration session started",
		"sessionId", s.ID,
		"contentPath", contentPath,
		"branch", branchName,
		"baseVersionId", baseID,
		"author", initiator.ID)
	return s.snapshot(), nil
}

// resolveBase finds the head the session will edit on top of. A trunk session
// on a path with no branches yet is allowed; the commit bootstraps the trunk.
func (c *Coordinator) resolveBase(contentPath string, branchName string) (string, string, error) {
	branches, err := c.store.GetBranches(contentPath)
	if err != nil {
		return "", "", err
	}
	if len(branches) == 0 {
		if branchName != version.TrunkBranchName {
			return "", "", exception.NewBranchNotFoundError(contentPath, branchName)
		}
		return "", "", nil
	}
	var base *version.Branch
	for _, b := range branches {
		if b.Name == branchName {
			base = b
			break
		}
	}
	if base == nil {
		return "", "", exception.NewBranchNotFoundError(contentPath, branchName)
	}
	if base.HeadVersionID == "" {
		return "", "", nil
	}
	head, err := c.store.GetVersion(contentPath, base.HeadVersionID)
	if err != nil {
		return "", "", err
	}
	return head.ID, head.Content, nil
}

// JoinSession adds a participant to an open session and announces them to the
// other subscribers.
func (c *Coordinator) JoinSession(sessionID string, participant author.VersionAuthor) (*SessionSnapshot, error) {
	if !participant.IsValid() {
		return nil, exception.NewInvalidAuthorError("joining a session requires an author id")
	}
	s, err := c.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return nil, exception.NewSessionClosedError(sessionID)
	}
	s.participants[participant.ID] = participant
	s.lastActivity = time.Now().UTC()
	s.broadcast(Frame{Kind: FrameJoin, SessionID: s.ID, AuthorID: participant.ID}, participant.ID)

	c.logger.Debugw("participant joined session",
		"sessionId", s.ID, "author", participant.ID, "participants", len(s.participants))
	return s.snapshot(), nil
}

// AppendChange validates a change against the session's working copy, assigns
// it the next sequence number and fans it out to every other subscriber.
func (c *Coordinator) AppendChange(sessionID string, authorID string, change version.VersionChange) (*RealTimeChange, error) {
	if change == nil {
		return nil, exception.NewValidationError("change", "must carry a change payload")
	}
	s, err := c.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return nil, exception.NewSessionClosedError(sessionID)
	}
	editor, ok := s.participants[authorID]
	if !ok {
		return nil, exception.NewParticipantNotInSessionError(sessionID, authorID)
	}

	next, err := diff.Apply(s.workingCopy, []version.VersionChange{change})
	if err != nil {
		return nil, err
	}

	rtc := RealTimeChange{
		SessionID:      s.ID,
		AuthorID:       authorID,
		SequenceNumber: s.nextSeq,
		Payload:        change,
		AppendedAt:     time.Now().UTC(),
	}
	s.nextSeq++
	s.changeLog = append(s.changeLog, rtc)
	s.workingCopy = next
	s.lastActivity = rtc.AppendedAt
	s.lastEditor = editor
	s.commitBlocked = false
	s.broadcast(Frame{Kind: FrameChange, SessionID: s.ID, AuthorID: authorID, Change: &rtc}, authorID)
	return &rtc, nil
}

// Subscribe hands back an ordered frame channel for a participant. The cancel
// function is idempotent and safe to call after the session has closed.
func (c *Coordinator) Subscribe(sessionID string, authorID string) (<-chan Frame, func(), error) {
	s, err := c.lookup(sessionID)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil, nil, exception.NewSessionClosedError(sessionID)
	}
	if _, ok := s.participants[authorID]; !ok {
		return nil, nil, exception.NewParticipantNotInSessionError(sessionID, authorID)
	}

	ch := make(chan Frame, settings.Displayed.Collab.BroadcastBuffer)
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = subscriber{authorID: authorID, ch: ch}
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.dropSubscriber(id)
	}
	return ch, cancel, nil
}

// LeaveSession removes a participant. When the last participant leaves, the
// accumulated changes are committed as one version; a session that saw no
// changes just closes.
func (c *Coordinator) LeaveSession(sessionID string, authorID string) (*version.ContentVersion, error) {
	s, err := c.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return nil, exception.NewSessionClosedError(sessionID)
	}
	leaver, ok := s.participants[authorID]
	if !ok {
		s.mu.Unlock()
		return nil, exception.NewParticipantNotInSessionError(sessionID, authorID)
	}
	delete(s.participants, authorID)
	for id, sub := range s.subscribers {
		if sub.authorID == authorID {
			s.dropSubscriber(id)
		}
	}
	s.lastActivity = time.Now().UTC()
	s.broadcast(Frame{Kind: FrameLeave, SessionID: s.ID, AuthorID: authorID}, authorID)
	remaining := len(s.participants)
	s.mu.Unlock()

	c.logger.Debugw("participant left session",
		"sessionId", s.ID, "author", authorID, "participants", remaining)
	if remaining > 0 {
		return nil, nil
	}
	return c.commit(s, leaver, &leaver)
}

// EndSession commits the session's change log on behalf of a participant
// without waiting for everyone to leave.
func (c *Coordinator) EndSession(sessionID string, by author.VersionAuthor) (*version.ContentVersion, error) {
	s, err := c.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return nil, exception.NewSessionClosedError(sessionID)
	}
	closer, ok := s.participants[by.ID]
	if !ok {
		s.mu.Unlock()
		return nil, exception.NewParticipantNotInSessionError(sessionID, by.ID)
	}
	s.mu.Unlock()
	return c.commit(s, closer, nil)
}

// AbortSession discards the change log and closes the session without writing
// a version. It is the escape hatch for a session whose commit keeps
// conflicting with versions created outside it.
func (c *Coordinator) AbortSession(sessionID string, by author.VersionAuthor) error {
	s, err := c.lookup(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return exception.NewSessionClosedError(sessionID)
	}
	if _, ok := s.participants[by.ID]; !ok {
		s.mu.Unlock()
		return exception.NewParticipantNotInSessionError(sessionID, by.ID)
	}
	discarded := len(s.changeLog)
	s.state = StateClosed
	s.changeLog = nil
	s.broadcast(Frame{Kind: FrameAborted, SessionID: s.ID, AuthorID: by.ID}, "")
	s.closeSubscribers()
	s.mu.Unlock()

	c.detach(s)
	c.logger.Infow("collaboration session aborted",
		"sessionId", s.ID, "contentPath", s.ContentPath, "author", by.ID, "discardedChanges", discarded)
	return nil
}

// GetSession returns a snapshot of one session.
func (c *Coordinator) GetSession(sessionID string) (*SessionSnapshot, error) {
	s, err := c.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return s.Snapshot(), nil
}

// ListSessions returns snapshots of every tracked session, oldest first.
func (c *Coordinator) ListSessions() []*SessionSnapshot {
	c.mu.Lock()
	live := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		live = append(live, s)
	}
	c.mu.Unlock()

	snapshots := make([]*SessionSnapshot, 0, len(live))
	for _, s := range live {
		snapshots = append(snapshots, s.Snapshot())
	}
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].CreatedAt.Equal(snapshots[j].CreatedAt) {
			return snapshots[i].ID < snapshots[j].ID
		}
		return snapshots[i].CreatedAt.Before(snapshots[j].CreatedAt)
	})
	return snapshots
}

// Shutdown stops the reaper and commits every open session so no accepted
// change is lost on process exit. Safe to call more than once.
func (c *Coordinator) Shutdown() {
	c.shutdownOnce.Do(c.shutdown)
}

func (c *Coordinator) shutdown() {
	close(c.reaperStop)
	<-c.reaperDone

	c.mu.Lock()
	live := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		live = append(live, s)
	}
	c.mu.Unlock()

	for _, s := range live {
		s.mu.Lock()
		open := s.state == StateOpen
		closer := s.lastEditor
		s.mu.Unlock()
		if !open {
			continue
		}
		if _, err := c.commit(s, closer, nil); err != nil {
			c.logger.Warnw("session flush on shutdown failed",
				"sessionId", s.ID, "contentPath", s.ContentPath, "error", err)
		}
	}
}

func (c *Coordinator) lookup(sessionID string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[sessionID]
	if !ok {
		return nil, exception.NewSessionNotFoundError(sessionID)
	}
	return s, nil
}

// detach drops the session from the maps once it is closed. The byPath slot is
// only cleared if it still points at this session; a newer session may already
// own the path.
func (c *Coordinator) detach(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, s.ID)
	if c.byPath[s.ContentPath] == s {
		delete(c.byPath, s.ContentPath)
	}
}

// commit flushes the session's changes as one version. Storage I/O happens
// outside the session lock; the Closing state keeps other callers out in the
// meantime. On a stale base the session reverts to Open with its log intact
// and restore, when set, is put back into the participant set.
func (c *Coordinator) commit(s *Session, closer author.VersionAuthor, restore *author.VersionAuthor) (*version.ContentVersion, error) {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return nil, exception.NewSessionClosedError(s.ID)
	}
	s.state = StateClosing
	changeCount := len(s.changeLog)
	content := s.workingCopy
	baseID := s.BaseVersionID
	if changeCount == 0 {
		s.state = StateClosed
		s.broadcast(Frame{Kind: FrameCommitted, SessionID: s.ID, Message: "session closed without changes"}, "")
		s.closeSubscribers()
		s.mu.Unlock()
		c.detach(s)
		c.logger.Infow("collaboration session closed without changes",
			"sessionId", s.ID, "contentPath", s.ContentPath)
		return nil, nil
	}
	s.mu.Unlock()

	// The change log entries each apply to the working copy of their moment,
	// not to the base content, so the stored version derives its changes from
	// a clean diff against the parent.
	var v *version.ContentVersion
	var err error
	if s.BranchName == version.TrunkBranchName {
		v, err = c.history.CreateVersion(s.ContentPath, content, closer, nil, baseID)
	} else {
		v, err = c.history.CreateVersionOnBranch(s.ContentPath, s.BranchName, content, closer, nil, baseID)
	}

	s.mu.Lock()
	if err != nil {
		s.state = StateOpen
		if restore != nil {
			s.participants[restore.ID] = *restore
		}
		var stale *exception.StaleParentVersionError
		if errors.As(err, &stale) {
			s.commitBlocked = true
			conflict := exception.NewSessionCommitConflictError(s.ID, baseID, stale.ActualHeadID)
			s.broadcast(Frame{Kind: FrameConflict, SessionID: s.ID, Message: conflict.Message}, "")
			s.mu.Unlock()
			c.logger.Warnw("session commit conflicted with outside version",
				"sessionId", s.ID, "contentPath", s.ContentPath,
				"baseVersionId", baseID, "headVersionId", stale.ActualHeadID)
			return nil, conflict
		}
		s.mu.Unlock()
		c.logger.Errorw("session commit failed",
			"sessionId", s.ID, "contentPath", s.ContentPath, "error", err)
		return nil, err
	}

	s.state = StateClosed
	s.broadcast(Frame{Kind: FrameCommitted, SessionID: s.ID, AuthorID: closer.ID, VersionID: v.ID}, "")
	s.closeSubscribers()
	s.mu.Unlock()

	c.detach(s)
	c.logger.Infow("collaboration session committed",
		"sessionId", s.ID, "contentPath", s.ContentPath,
		"versionId", v.ID, "changes", changeCount, "author", closer.ID)
	return v, nil
}

// reapIdleSessions commits sessions nobody has touched for the configured idle
// window. Sessions whose last commit attempt conflicted are skipped until a
// new change arrives.
func (c *Coordinator) reapIdleSessions() {
	defer close(c.reaperDone)
	ticker := time.NewTicker(settings.Displayed.Collab.SessionReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.reaperStop:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		live := make([]*Session, 0, len(c.sessions))
		for _, s := range c.sessions {
			live = append(live, s)
		}
		c.mu.Unlock()

		idleAfter := settings.Displayed.Collab.SessionIdleTimeout
		for _, s := range live {
			s.mu.Lock()
			idle := s.state == StateOpen && !s.commitBlocked &&
				time.Since(s.lastActivity) > idleAfter
			closer := s.lastEditor
			s.mu.Unlock()
			if !idle {
				continue
			}
			c.logger.Infow("reaping idle collaboration session",
				"sessionId", s.ID, "contentPath", s.ContentPath)
			if _, err := c.commit(s, closer, nil); err != nil {
				c.logger.Warnw("idle session flush failed",
					"sessionId", s.ID, "contentPath", s.ContentPath, "error", err)
			}
		}
	}
}
