package bot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"medichat/chat"
)

type stubService struct {
	mu        sync.Mutex
	uploads   []string
	processed []int64
	questions []string

	processErr error
	answer     string
	askErr     error
	summary    string
	sumErr     error
}

func (s *stubService) RecordUpload(_ context.Context, _ int64, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, path)
	return nil
}

func (s *stubService) Process(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed = append(s.processed, userID)
	return s.processErr
}

func (s *stubService) Ask(_ context.Context, _ int64, question string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = append(s.questions, question)
	return s.answer, s.askErr
}

func (s *stubService) Summarize(context.Context, int64) (string, error) {
	return s.summary, s.sumErr
}

// fakeTelegram captures sendMessage texts and serves file downloads.
type fakeTelegram struct {
	mu       sync.Mutex
	messages []string
	fileData []byte
}

func (f *fakeTelegram) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var payload struct {
				Text string `json:"text"`
			}
			_ = json.NewDecoder(r.Body).Decode(&payload)
			f.mu.Lock()
			f.messages = append(f.messages, payload.Text)
			f.mu.Unlock()
			io.WriteString(w, `{"ok":true,"result":{}}`)
		case strings.HasSuffix(r.URL.Path, "/sendChatAction"):
			io.WriteString(w, `{"ok":true,"result":true}`)
		case strings.HasSuffix(r.URL.Path, "/getFile"):
			io.WriteString(w, `{"ok":true,"result":{"file_path":"documents/upload.pdf"}}`)
		case strings.Contains(r.URL.Path, "/file/"):
			w.Write(f.fileData)
		default:
			io.WriteString(w, `{"ok":true,"result":[]}`)
		}
	})
}

func (f *fakeTelegram) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func newTestConnector(t *testing.T, service Service, fake *fakeTelegram) *Connector {
	t.Helper()

	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	conn, err := New(service, Config{
		Token:     "test-token",
		APIURL:    server.URL,
		UploadDir: t.TempDir(),
	}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new connector: %v", err)
	}
	return conn
}

func textUpdate(userID int64, text string) update {
	return update{
		UpdateID: 1,
		Message: &message{
			From: &user{ID: userID},
			Chat: chatRef{ID: userID},
			Text: text,
		},
	}
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(&stubService{}, Config{}, nil); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestStartCommandSendsGreeting(t *testing.T) {
	fake := &fakeTelegram{}
	conn := newTestConnector(t, &stubService{}, fake)

	conn.handleUpdate(context.Background(), textUpdate(1, "/start"))

	sent := fake.sent()
	if len(sent) != 1 || !strings.Contains(sent[0], "MediChat") {
		t.Fatalf("expected greeting, got %v", sent)
	}
}

func TestProcessCommandMapsPipelineError(t *testing.T) {
	fake := &fakeTelegram{}
	service := &stubService{processErr: chat.ErrNoDocuments}
	conn := newTestConnector(t, service, fake)

	conn.handleUpdate(context.Background(), textUpdate(7, "/process"))

	if len(service.processed) != 1 || service.processed[0] != 7 {
		t.Fatalf("expected process for user 7, got %v", service.processed)
	}
	sent := fake.sent()
	if len(sent) != 2 {
		t.Fatalf("expected progress + error replies, got %v", sent)
	}
	if !strings.Contains(sent[1], "upload at least one PDF") {
		t.Fatalf("unexpected error reply: %q", sent[1])
	}
}

func TestQuestionGoesToAnswerEngine(t *testing.T) {
	fake := &fakeTelegram{}
	service := &stubService{answer: "Your results look fine."}
	conn := newTestConnector(t, service, fake)

	conn.handleUpdate(context.Background(), textUpdate(3, "Is everything ok?"))

	if len(service.questions) != 1 || service.questions[0] != "Is everything ok?" {
		t.Fatalf("question not forwarded: %v", service.questions)
	}
	sent := fake.sent()
	if len(sent) != 1 || sent[0] != "Your results look fine." {
		t.Fatalf("answer not sent back: %v", sent)
	}
}

func TestQuestionBeforeProcessing(t *testing.T) {
	fake := &fakeTelegram{}
	service := &stubService{askErr: chat.ErrSessionNotReady}
	conn := newTestConnector(t, service, fake)

	conn.handleUpdate(context.Background(), textUpdate(3, "anything?"))

	sent := fake.sent()
	if len(sent) != 1 || !strings.Contains(sent[0], "/process") {
		t.Fatalf("expected process-first hint, got %v", sent)
	}
}

func TestNonPDFUploadRejected(t *testing.T) {
	fake := &fakeTelegram{}
	service := &stubService{}
	conn := newTestConnector(t, service, fake)

	conn.handleUpdate(context.Background(), update{
		UpdateID: 1,
		Message: &message{
			From:     &user{ID: 5},
			Chat:     chatRef{ID: 5},
			Document: &document{FileID: "f1", FileName: "notes.txt", MimeType: "text/plain"},
		},
	})

	if len(service.uploads) != 0 {
		t.Fatalf("non-pdf upload must not be recorded: %v", service.uploads)
	}
	sent := fake.sent()
	if len(sent) != 1 || sent[0] != notPDFReply {
		t.Fatalf("expected pdf rejection, got %v", sent)
	}
}

func TestPDFUploadDownloadedAndRecorded(t *testing.T) {
	fake := &fakeTelegram{fileData: []byte("%PDF-1.4 fake")}
	service := &stubService{}
	conn := newTestConnector(t, service, fake)

	conn.handleUpdate(context.Background(), update{
		UpdateID: 1,
		Message: &message{
			From:     &user{ID: 5},
			Chat:     chatRef{ID: 5},
			Document: &document{FileID: "f1", FileName: "report.pdf", MimeType: "application/pdf"},
		},
	})

	if len(service.uploads) != 1 {
		t.Fatalf("expected one recorded upload, got %v", service.uploads)
	}

	data, err := os.ReadFile(service.uploads[0])
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != "%PDF-1.4 fake" {
		t.Fatalf("downloaded content mismatch: %q", data)
	}

	sent := fake.sent()
	if len(sent) != 1 || !strings.Contains(sent[0], "report.pdf") {
		t.Fatalf("expected receipt confirmation, got %v", sent)
	}
}

func TestReplyForErrorNeverLeaksCause(t *testing.T) {
	cause := errors.New("connection refused to 10.0.0.1:11434")
	cases := []error{
		chat.ErrNoDocuments,
		chat.ErrNoExtractableContent,
		chat.ErrSessionNotReady,
		chat.ErrNothingToSummarize,
		errors.Join(chat.ErrAnswerGeneration, cause),
		errors.Join(chat.ErrSummaryGeneration, cause),
		errors.Join(chat.ErrIndexBuild, cause),
	}
	for _, err := range cases {
		reply := replyForError(err)
		if reply == "" {
			t.Fatalf("empty reply for %v", err)
		}
		if strings.Contains(reply, "10.0.0.1") {
			t.Fatalf("reply leaks provider detail: %q", reply)
		}
	}
}
