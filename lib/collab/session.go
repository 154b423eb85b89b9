package collab

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/vellumhq/vellum-go/lib/models/author"
	"github.com/vellumhq/vellum-go/lib/models/version"
)

type SessionState string

const (
	StateOpen    SessionState = "open"
	StateClosing SessionState = "closing"
	StateClosed  SessionState = "closed"
)

// RealTimeChange is one entry in a session's ordered change log. Sequence
// numbers form a single logical clock per session; every participant observes
// the log in sequence order regardless of arrival timing.
type RealTimeChange struct {
	SessionID      string                `json:"sessionId"`
	AuthorID       string                `json:"authorId"`
	SequenceNumber int                   `json:"sequenceNumber"`
	Payload        version.VersionChange `json:"payload"`
	AppendedAt     time.Time             `json:"appendedAt"`
}

func (r *RealTimeChange) UnmarshalJSON(data []byte) error {
	type alias RealTimeChange
	aux := struct {
		*alias
		Payload json.RawMessage `json:"payload"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Payload) == 0 {
		return nil
	}
	payload, err := version.UnmarshalChange(aux.Payload)
	if err != nil {
		return err
	}
	r.Payload = payload
	return nil
}

type FrameKind string

const (
	FrameJoin      FrameKind = "join"
	FrameLeave     FrameKind = "leave"
	FrameChange    FrameKind = "change"
	FrameCommitted FrameKind = "committed"
	FrameConflict  FrameKind = "conflict"
	FrameAborted   FrameKind = "aborted"
)

// Frame is one ordered broadcast delivered to session subscribers.
type Frame struct {
	Kind      FrameKind       `json:"kind"`
	SessionID string          `json:"sessionId"`
	AuthorID  string          `json:"authorId,omitempty"`
	Change    *RealTimeChange `json:"change,omitempty"`
	VersionID string          `json:"versionId,omitempty"`
	Message   string          `json:"message,omitempty"`
}

type subscriber struct {
	authorID string
	ch       chan Frame
}

// Session is one bounded-lifetime collaboration context for a content path.
// All mutation happens under its own mutex; the coordinator is the only
// writer.
type Session struct {
	ID            string
	ContentPath   string
	BranchName    string
	BaseVersionID string
	CreatedAt     time.Time

	mu            sync.Mutex
	state         SessionState
	participants  map[string]author.VersionAuthor
	changeLog     []RealTimeChange
	workingCopy   string
	nextSeq       int
	lastActivity  time.Time
	lastEditor    author.VersionAuthor
	commitBlocked bool

	subscribers map[int]subscriber
	nextSubID   int
}

// SessionSnapshot is the read-only view handed to callers; live sessions keep
// mutating after the snapshot is taken.
type SessionSnapshot struct {
	ID            string       `json:"id"`
	ContentPath   string       `json:"contentPath"`
	BranchName    string       `json:"branchName"`
	BaseVersionID string       `json:"baseVersionId"`
	State         SessionState `json:"state"`
	Participants  []string     `json:"participants"`
	ChangeCount   int          `json:"changeCount"`
	WorkingCopy   string       `json:"workingCopy"`
	CreatedAt     time.Time    `json:"createdAt"`
	LastActivity  time.Time    `json:"lastActivity"`
}

// snapshot must be called with s.mu held.
func (s *Session) snapshot() *SessionSnapshot {
	participants := make([]string, 0, len(s.participants))
	for id := range s.participants {
		participants = append(participants, id)
	}
	sort.Strings(participants)
	return &SessionSnapshot{
		ID:            s.ID,
		ContentPath:   s.ContentPath,
		BranchName:    s.BranchName,
		BaseVersionID: s.BaseVersionID,
		State:         s.state,
		Participants:  participants,
		ChangeCount:   len(s.changeLog),
		WorkingCopy:   s.workingCopy,
		CreatedAt:     s.CreatedAt,
		LastActivity:  s.lastActivity,
	}
}

// Snapshot returns a consistent view of the session.
func (s *Session) Snapshot() *SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// broadcast must be called with s.mu held. Subscribers whose buffer is full
// are dropped on the spot; a consumer that cannot keep up would otherwise
// stall the whole session.
func (s *Session) broadcast(frame Frame, excludeAuthorID string) {
	for id, sub := range s.subscribers {
		if excludeAuthorID != "" && sub.authorID == excludeAuthorID {
			continue
		}
		select {
		case sub.ch <- frame:
		default:
			delete(s.subscribers, id)
			close(sub.ch)
		}
	}
}

// dropSubscriber must be called with s.mu held.
func (s *Session) dropSubscriber(id int) {
	sub, ok := s.subscribers[id]
	if !ok {
		return
	}
	delete(s.subscribers, id)
	close(sub.ch)
}

// closeSubscribers must be called with s.mu held.
func (s *Session) closeSubscribers() {
	for id := range s.subscribers {
		s.dropSubscriber(id)
	}
}
