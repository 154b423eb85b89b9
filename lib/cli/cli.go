package cli

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vellumhq/vellum-go/lib/collab"
	"github.com/vellumhq/vellum-go/lib/models/author"
	"github.com/vellumhq/vellum-go/lib/models/version"
	modelws "github.com/vellumhq/vellum-go/lib/models/ws"
	"github.com/vellumhq/vellum-go/lib/utils"
	"go.uber.org/zap"
)

// SessionClient speaks the same protocol as a collaborating editor: REST to
// open or join a session on a content path, then a websocket for the ordered
// change stream.
type SessionClient struct {
	host        string
	contentPath string
	sessionID   string
	authorID    string

	conn      *websocket.Conn
	connWrite sync.Mutex

	// stateLock guards the local view of the working copy. Line numbers for
	// outgoing appends are computed from it and updated optimistically, so a
	// client can keep appending without waiting for its own acks.
	stateLock sync.Mutex
	lineCount int
	emptyDoc  bool

	events    map[string][]func(interface{})
	closeChan chan struct{}
	closeOnce sync.Once
}

func NewSessionClient(host string, contentPath string, snapshot *collab.SessionSnapshot, authorID string, conn *websocket.Conn) *SessionClient {
	return &SessionClient{
		host:        host,
		contentPath: contentPath,
		sessionID:   snapshot.ID,
		authorID:    authorID,
		conn:        conn,
		events:      make(map[string][]func(interface{})),
		closeChan:   make(chan struct{}),
		lineCount:   utils.CountLines(snapshot.WorkingCopy, '\n') + 1,
		emptyDoc:    snapshot.WorkingCopy == "",
	}
}

func (s *SessionClient) On(event string, handler func(interface{})) {
	s.events[event] = append(s.events[event], handler)
}

func (s *SessionClient) emit(event string, data interface{}) {
	for _, handler := range s.events[event] {
		go handler(data)
	}
}

func (s *SessionClient) Close() {
	s.closeOnce.Do(func() {
		close(s.closeChan)
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.emit("disconnect", nil)
	})
}

// buildAppend constructs the change for one append and advances the local
// line count past it.
func (s *SessionClient) buildAppend(text string) version.VersionChange {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	var change version.VersionChange
	added := utils.CountLines(text, '\n') + 1
	if s.emptyDoc {
		change = version.Modification{
			Lines: version.LineRange{Start: 1, End: 1},
			Old:   "",
			New:   text,
		}
		s.lineCount = added
	} else {
		change = version.Addition{
			After:   s.lineCount,
			Lines:   version.LineRange{Start: s.lineCount + 1, End: s.lineCount + added},
			Content: text,
		}
		s.lineCount += added
	}
	s.emptyDoc = false
	return change
}

// Append sends one change that appends text below the current last line. On a
// path with no content yet the first append replaces the single empty line
// instead, since there is no line to insert after.
func (s *SessionClient) Append(text string) {
	if text == "" {
		fmt.Println("No text to append, no change generated.")
		return
	}
	text = strings.TrimSuffix(text, "\n")

	payload, err := json.Marshal(s.buildAppend(text))
	if err != nil {
		fmt.Printf("Error encoding change: %v\n", err)
		return
	}
	s.sendMessage(modelws.ClientMessage{Type: modelws.MessageAppendChange, Change: payload})
}

// End closes the session for everyone; the server commits the change log as a
// new version and answers with a committed frame.
func (s *SessionClient) End() {
	s.sendMessage(modelws.ClientMessage{Type: modelws.MessageEndSession})
}

// Abort closes the session and discards its change log.
func (s *SessionClient) Abort() {
	s.sendMessage(modelws.ClientMessage{Type: modelws.MessageAbortSession})
}

func (s *SessionClient) sendMessage(msg modelws.ClientMessage) {
	s.connWrite.Lock()
	defer s.connWrite.Unlock()
	if err := s.conn.WriteJSON(msg); err != nil {
		fmt.Printf("Error sending %s: %v\n", msg.Type, err)
	}
}

// track folds a change from another participant into the local line count so
// the next append still lands below the last line.
func (s *SessionClient) track(change version.VersionChange) {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	s.emptyDoc = false
	switch c := change.(type) {
	case version.Addition:
		s.lineCount += utils.CountLines(c.Content, '\n') + 1
	case version.Deletion:
		s.lineCount -= c.Lines.Len()
	case version.Modification:
		s.lineCount += utils.CountLines(c.New, '\n') + 1 - c.Lines.Len()
	}
}

func (s *SessionClient) readLoop(logger *zap.SugaredLogger) {
	defer func() {
		// Recover to avoid crashing the whole process on unexpected panics in the reader loop
		if r := recover(); r != nil {
			logger.Errorf("panic in recv goroutine: %v", r)
		}
		s.Close()
	}()

	for {
		select {
		case <-s.closeChan:
			return
		default:
			_, message, err := s.conn.ReadMessage()
			if err != nil {
				select {
				case <-s.closeChan:
				default:
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
						logger.Errorf("error: %v", err)
					}
				}
				return
			}
			message = bytes.TrimSpace(message)
			logger.Debugf("Received: %s", message)

			var probe struct {
				Kind string `json:"kind"`
				Type string `json:"type"`
			}
			if err := json.Unmarshal(message, &probe); err != nil {
				logger.Errorf("unreadable frame: %v", err)
				continue
			}

			if probe.Type == "ERROR" {
				var errMsg modelws.ErrorMessage
				if err := json.Unmarshal(message, &errMsg); err != nil {
					logger.Errorf("cannot decode error message: %v", err)
					continue
				}
				s.emit("error", errMsg)
				continue
			}

			var frame collab.Frame
			if err := json.Unmarshal(message, &frame); err != nil {
				logger.Errorf("cannot decode %q frame: %v", probe.Kind, err)
				continue
			}

			switch frame.Kind {
			case collab.FrameChange:
				if frame.Change == nil {
					continue
				}
				if frame.AuthorID == s.authorID {
					// Own change coming back with its sequence number.
					s.emit("ack", frame.Change)
					continue
				}
				s.track(frame.Change.Payload)
				s.emit("change", frame.Change)
			case collab.FrameJoin:
				s.emit("join", frame.AuthorID)
			case collab.FrameLeave:
				s.emit("leave", frame.AuthorID)
			case collab.FrameCommitted:
				s.emit("committed", frame.VersionID)
			case collab.FrameConflict:
				s.emit("conflict", frame.Message)
			case collab.FrameAborted:
				s.emit("aborted", frame.AuthorID)
				return
			}
		}
	}
}

type sessionTarget struct {
	Host string
	Path string
}

func Connect(host string, contentPath string, authorName string, logger *zap.SugaredLogger) *SessionClient {
	return connect(host, contentPath, authorName, logger)
}

func connect(host string, contentPath string, authorName string, logger *zap.SugaredLogger) *SessionClient {
	target := sessionTarget{Host: "http://127.0.0.1:8090", Path: contentPath}

	if host != "" {
		parsedURL, err := url.Parse(host)
		if err != nil {
			fmt.Println("Invalid host URL:", err)
			os.Exit(1)
		}
		target.Host = fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
		if target.Path == "" && len(parsedURL.Path) > 1 {
			target.Path = strings.TrimPrefix(parsedURL.Path, "/")
		}
	}
	if target.Path == "" {
		target.Path = "cli/" + utils.RandomString(10)
	}
	if authorName == "" {
		authorName = "cli"
	}

	sessionAuthor := author.VersionAuthor{ID: "a-" + utils.RandomString(12), Name: authorName}
	httpClient := &http.Client{Timeout: 10 * time.Second}
	snapshot := startOrJoinSession(httpClient, target, sessionAuthor)

	query := url.Values{}
	query.Set("sessionId", snapshot.ID)
	query.Set("authorId", sessionAuthor.ID)
	wsURL := fmt.Sprintf("%s/collab/ws?%s", strings.Replace(target.Host, "http", "ws", 1), query.Encode())
	logger.Debugf("Connecting to WebSocket at %s", wsURL)
	connection, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		fmt.Printf("WebSocket connection failed: %v\n", err)
		if resp != nil {
			fmt.Printf("Response Status: %s\n", resp.Status)
		}
		os.Exit(1)
	}

	client := NewSessionClient(target.Host, target.Path, snapshot, sessionAuthor.ID, connection)
	go client.readLoop(logger)

	return client
}

type startSessionBody struct {
	ContentPath string               `json:"contentPath"`
	Branch      string               `json:"branch,omitempty"`
	Author      author.VersionAuthor `json:"author"`
}

type joinSessionBody struct {
	Author author.VersionAuthor `json:"author"`
}

type sessionListBody struct {
	Sessions []*collab.SessionSnapshot `json:"sessions"`
}

// startOrJoinSession opens a session on the target path, falling back to
// joining when another client already holds one open.
func startOrJoinSession(httpClient *http.Client, target sessionTarget, sessionAuthor author.VersionAuthor) *collab.SessionSnapshot {
	body, status := postJSON(httpClient, target.Host+"/api/sessions", startSessionBody{
		ContentPath: target.Path,
		Author:      sessionAuthor,
	})
	if status == http.StatusOK {
		return decodeSnapshot(body)
	}
	if status != http.StatusConflict {
		fmt.Printf("Failed to open a session on %s, status %d: %s\n", target.Path, status, string(body))
		os.Exit(1)
	}

	resp, err := httpClient.Get(target.Host + "/api/sessions")
	if err != nil {
		fmt.Printf("Failed to list sessions: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	var list sessionListBody
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		fmt.Printf("Failed to decode session list: %v\n", err)
		os.Exit(1)
	}

	for _, open := range list.Sessions {
		if open.ContentPath != target.Path || open.State != collab.StateOpen {
			continue
		}
		body, status = postJSON(httpClient, fmt.Sprintf("%s/api/sessions/%s/join", target.Host, open.ID), joinSessionBody{
			Author: sessionAuthor,
		})
		if status != http.StatusOK {
			fmt.Printf("Failed to join session %s, status %d: %s\n", open.ID, status, string(body))
			os.Exit(1)
		}
		return decodeSnapshot(body)
	}

	fmt.Printf("No open session found on %s\n", target.Path)
	os.Exit(1)
	return nil
}

func postJSON(httpClient *http.Client, requestURL string, payload interface{}) ([]byte, int) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		fmt.Printf("Failed to encode request: %v\n", err)
		os.Exit(1)
	}
	resp, err := httpClient.Post(requestURL, "application/json", bytes.NewReader(encoded))
	if err != nil {
		fmt.Printf("Failed to reach %s: %v\n", requestURL, err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, _ := io.ReadAll(resp.Body)
	return body, resp.StatusCode
}

func decodeSnapshot(body []byte) *collab.SessionSnapshot {
	var snapshot collab.SessionSnapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		fmt.Printf("Failed to decode session snapshot: %v\n", err)
		os.Exit(1)
	}
	return &snapshot
}

func (s *SessionClient) OnAck(callback func(change *collab.RealTimeChange)) {
	s.On("ack", func(data interface{}) {
		if change, ok := data.(*collab.RealTimeChange); ok {
			callback(change)
		}
	})
}

func (s *SessionClient) OnChange(callback func(change *collab.RealTimeChange)) {
	s.On("change", func(data interface{}) {
		if change, ok := data.(*collab.RealTimeChange); ok {
			callback(change)
		}
	})
}

func (s *SessionClient) OnJoin(callback func(authorID string)) {
	s.On("join", func(data interface{}) {
		if authorID, ok := data.(string); ok {
			callback(authorID)
		}
	})
}

func (s *SessionClient) OnLeave(callback func(authorID string)) {
	s.On("leave", func(data interface{}) {
		if authorID, ok := data.(string); ok {
			callback(authorID)
		}
	})
}

func (s *SessionClient) OnCommitted(callback func(versionID string)) {
	s.On("committed", func(data interface{}) {
		if versionID, ok := data.(string); ok {
			callback(versionID)
		}
	})
}

func (s *SessionClient) OnConflict(callback func(message string)) {
	s.On("conflict", func(data interface{}) {
		if message, ok := data.(string); ok {
			callback(message)
		}
	})
}

func (s *SessionClient) OnError(callback func(msg modelws.ErrorMessage)) {
	s.On("error", func(data interface{}) {
		if msg, ok := data.(modelws.ErrorMessage); ok {
			callback(msg)
		}
	})
}

func (s *SessionClient) OnDisconnect(callback func(err interface{})) {
	s.On("disconnect", func(data interface{}) {
		callback(data)
	})
}

func RunFromCLI(logger *zap.SugaredLogger, args []string) {
	host, contentPath, appendStr, err := parseCLIArgs(args)
	if err != nil {
		return
	}

	if host == "" {
		fmt.Println("No host specified..")
		return
	}

	client := connect(host, contentPath, "cli", logger)

	if appendStr != "" {
		committed := make(chan string, 1)
		failed := make(chan modelws.ErrorMessage, 1)
		client.OnCommitted(func(versionID string) {
			select {
			case committed <- versionID:
			default:
			}
		})
		client.OnError(func(msg modelws.ErrorMessage) {
			select {
			case failed <- msg:
			default:
			}
		})

		client.Append(appendStr)
		client.End()

		select {
		case versionID := <-committed:
			fmt.Printf("Appended %q to %s as version %s\n", appendStr, client.contentPath, versionID)
		case msg := <-failed:
			fmt.Printf("Server rejected the change: %s (%s)\n", msg.Message, msg.Code)
		case <-time.After(10 * time.Second):
			fmt.Println("Append timeout")
		}
		client.Close()
	} else {
		fmt.Printf("Watching session %s for %s at %s\n", client.sessionID, client.contentPath, client.host)
		client.OnChange(func(change *collab.RealTimeChange) {
			fmt.Printf("#%d %s: %s\n", change.SequenceNumber, change.AuthorID, describeChange(change.Payload))
		})
		client.OnJoin(func(authorID string) {
			fmt.Printf("%s joined\n", authorID)
		})
		client.OnLeave(func(authorID string) {
			fmt.Printf("%s left\n", authorID)
		})
		client.OnCommitted(func(versionID string) {
			fmt.Printf("Session committed as version %s\n", versionID)
		})
		client.OnConflict(func(message string) {
			fmt.Printf("Commit conflict: %s\n", message)
		})

		done := make(chan struct{})
		var once sync.Once
		client.OnDisconnect(func(_ interface{}) {
			once.Do(func() {
				close(done)
			})
		})
		<-done
	}

	logger.Infof("Stopping CLI")
}

func describeChange(change version.VersionChange) string {
	switch c := change.(type) {
	case version.Addition:
		return fmt.Sprintf("+%d line(s) after line %d", utils.CountLines(c.Content, '\n')+1, c.After)
	case version.Deletion:
		return fmt.Sprintf("-%d line(s) at line %d", c.Lines.Len(), c.Lines.Start)
	case version.Modification:
		return fmt.Sprintf("~ lines %d-%d", c.Lines.Start, c.Lines.End)
	}
	return string(change.Kind())
}

func parseCLIArgs(args []string) (string, string, string, error) {
	fs := flag.NewFlagSet("cli", flag.ContinueOnError)
	host := fs.String("host", "", "The host of the vellum server (e.g. http://127.0.0.1:8090)")
	contentPath := fs.String("path", "", "Content path to open a session on")
	fs.StringVar(contentPath, "p", "", "Content path to open a session on (shorthand)")
	appendStr := fs.String("append", "", "Append a line to the content and commit")
	fs.StringVar(appendStr, "a", "", "Append a line to the content and commit (shorthand)")

	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		*host = args[0]
		args = args[1:]
	}

	err := fs.Parse(args)
	return *host, *contentPath, *appendStr, err
}
