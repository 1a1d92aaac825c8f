// Package session keeps per-user conversation state: uploaded files,
// the built index with its model handle, and a bounded question/answer
// history.
package session

import (
	"medichat/llm"
	"medichat/vectorstore"
)

const (
	StateUploading = "UPLOADING"
	StateReady     = "READY"

	// DefaultHistoryLimit caps the retained question/answer pairs.
	DefaultHistoryLimit = 3
)

// QA is one answered question.
type QA struct {
	Question string
	Answer   string
}

// Session is one user's accumulated state. Index and Model are set
// together by Ready and never one without the other.
type Session struct {
	UserID  int64
	State   string
	Files   []string
	Index   *vectorstore.Index
	Model   llm.Client
	History []QA

	historyLimit int
}

func newSession(userID int64, historyLimit int) *Session {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Session{
		UserID:       userID,
		State:        StateUploading,
		historyLimit: historyLimit,
	}
}

// AddFile records an uploaded file reference. Uploads accumulate until
// the next processing run.
func (s *Session) AddFile(path string) {
	s.Files = append(s.Files, path)
}

// Ready installs a freshly built index and model handle and resets the
// history. Uploaded file references are preserved.
func (s *Session) Ready(index *vectorstore.Index, model llm.Client) {
	s.Index = index
	s.Model = model
	s.History = nil
	s.State = StateReady
}

// IsReady reports whether the session has been processed.
func (s *Session) IsReady() bool {
	return s.Index != nil && s.Model != nil
}

// AppendHistory records a question/answer pair, evicting the oldest
// pair once the cap is reached.
func (s *Session) AppendHistory(question, answer string) {
	s.History = append(s.History, QA{Question: question, Answer: answer})
	if len(s.History) > s.historyLimit {
		s.History = s.History[len(s.History)-s.historyLimit:]
	}
}
