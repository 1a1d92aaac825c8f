// Package bot connects the document-chat pipeline to Telegram. It long
// polls for updates and handles each one in its own goroutine, so a
// slow provider call for one user never blocks the others.
package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"medichat/chat"
)

// Service is the pipeline surface the connector drives.
type Service interface {
	RecordUpload(ctx context.Context, userID int64, path string) error
	Process(ctx context.Context, userID int64) error
	Ask(ctx context.Context, userID int64, question string) (string, error)
	Summarize(ctx context.Context, userID int64) (string, error)
}

const (
	defaultAPIURL      = "https://api.telegram.org"
	defaultPollTimeout = 30 * time.Second
	errorRetryDelay    = 5 * time.Second

	greeting = "Hi! I'm MediChat Bot.\n\n" +
		"Please upload one or more medical PDF reports.\n" +
		"Once done, type /process to process all your documents."
	uploadReceived  = "Received: %s\nYou can upload more PDFs, or type /process to process all documents."
	notPDFReply     = "Please upload a valid PDF file."
	processingReply = "Processing your medical documents..."
	processedReply  = "Documents processed successfully! You can now ask your questions."
	unknownCommand  = "Unknown command. Upload PDFs, then use /process, or /summarize."
)

type Config struct {
	Token       string
	APIURL      string
	PollTimeout time.Duration
	UploadDir   string
}

type Connector struct {
	service     Service
	client      *http.Client
	apiBase     string
	fileBase    string
	pollTimeout time.Duration
	uploadDir   string
	logger      *log.Logger
}

func New(service Service, cfg Config, logger *log.Logger) (*Connector, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram connector: bot token is required")
	}
	if service == nil {
		return nil, fmt.Errorf("telegram connector: service is required")
	}
	if logger == nil {
		logger = log.Default()
	}

	apiURL := strings.TrimSuffix(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}

	uploadDir := cfg.UploadDir
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}

	return &Connector{
		service: service,
		client: &http.Client{
			// Long polls hold the connection open for pollTimeout.
			Timeout: pollTimeout + 15*time.Second,
		},
		apiBase:     apiURL + "/bot" + cfg.Token,
		fileBase:    apiURL + "/file/bot" + cfg.Token,
		pollTimeout: pollTimeout,
		uploadDir:   uploadDir,
		logger:      logger,
	}, nil
}

// Telegram wire types, reduced to the fields the connector reads.

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message"`
}

type message struct {
	MessageID int64     `json:"message_id"`
	From      *user     `json:"from"`
	Chat      chatRef   `json:"chat"`
	Text      string    `json:"text"`
	Document  *document `json:"document"`
}

type user struct {
	ID int64 `json:"id"`
}

type chatRef struct {
	ID int64 `json:"id"`
}

type document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// Start long polls for updates until the context is cancelled.
func (c *Connector) Start(ctx context.Context) error {
	c.logger.Printf("telegram connector started, poll timeout %v", c.pollTimeout)

	var offset int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := c.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Printf("poll updates: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(errorRetryDelay):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			go c.handleUpdate(ctx, u)
		}
	}
}

func (c *Connector) getUpdates(ctx context.Context, offset int64) ([]update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         int(c.pollTimeout.Seconds()),
		"allowed_updates": []string{"message"},
	}

	var updates []update
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *Connector) handleUpdate(ctx context.Context, u update) {
	msg := u.Message
	if msg == nil {
		return
	}

	userID := msg.Chat.ID
	if msg.From != nil {
		userID = msg.From.ID
	}
	chatID := msg.Chat.ID

	switch {
	case msg.Document != nil:
		c.handleDocument(ctx, userID, chatID, msg.Document)
	case strings.HasPrefix(msg.Text, "/"):
		c.handleCommand(ctx, userID, chatID, msg.Text)
	case strings.TrimSpace(msg.Text) != "":
		c.handleQuestion(ctx, userID, chatID, msg.Text)
	}
}

func (c *Connector) handleCommand(ctx context.Context, userID, chatID int64, text string) {
	command := strings.Fields(text)[0]
	// Commands in groups arrive as /process@BotName.
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}

	switch command {
	case "/start":
		c.reply(ctx, chatID, greeting)
	case "/process":
		c.reply(ctx, chatID, processingReply)
		if err := c.service.Process(ctx, userID); err != nil {
			c.logger.Printf("user %d: process: %v", userID, err)
			c.reply(ctx, chatID, replyForError(err))
			return
		}
		c.reply(ctx, chatID, processedReply)
	case "/summarize":
		summary, err := c.service.Summarize(ctx, userID)
		if err != nil {
			c.logger.Printf("user %d: summarize: %v", userID, err)
			c.reply(ctx, chatID, replyForError(err))
			return
		}
		c.reply(ctx, chatID, "Summary:\n"+summary)
	default:
		c.reply(ctx, chatID, unknownCommand)
	}
}

func (c *Connector) handleQuestion(ctx context.Context, userID, chatID int64, text string) {
	c.sendTyping(ctx, chatID)

	answer, err := c.service.Ask(ctx, userID, strings.TrimSpace(text))
	if err != nil {
		c.logger.Printf("user %d: ask: %v", userID, err)
		c.reply(ctx, chatID, replyForError(err))
		return
	}
	c.reply(ctx, chatID, answer)
}

func (c *Connector) handleDocument(ctx context.Context, userID, chatID int64, doc *document) {
	if !isPDF(doc) {
		c.reply(ctx, chatID, notPDFReply)
		return
	}

	path, err := c.downloadDocument(ctx, userID, doc)
	if err != nil {
		c.logger.Printf("user %d: download %s: %v", userID, doc.FileName, err)
		c.reply(ctx, chatID, "Sorry, the upload could not be saved. Please try again.")
		return
	}

	if err := c.service.RecordUpload(ctx, userID, path); err != nil {
		c.logger.Printf("user %d: record upload: %v", userID, err)
		c.reply(ctx, chatID, "Sorry, the upload could not be saved. Please try again.")
		return
	}

	c.reply(ctx, chatID, fmt.Sprintf(uploadReceived, doc.FileName))
}

func isPDF(doc *document) bool {
	if strings.EqualFold(doc.MimeType, "application/pdf") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(doc.FileName), ".pdf")
}

func (c *Connector) downloadDocument(ctx context.Context, userID int64, doc *document) (string, error) {
	var file struct {
		FilePath string `json:"file_path"`
	}
	if err := c.call(ctx, "getFile", map[string]any{"file_id": doc.FileID}, &file); err != nil {
		return "", fmt.Errorf("resolve file: %w", err)
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("empty file path for %s", doc.FileID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.fileBase+"/"+file.FilePath, nil)
	if err != nil {
		return "", fmt.Errorf("create download request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download file: status %s", resp.Status)
	}

	dir := filepath.Join(c.uploadDir, fmt.Sprintf("user_%d", userID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	name := filepath.Base(doc.FileName)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = doc.FileID + ".pdf"
	}
	path := filepath.Join(dir, name)

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("write upload file: %w", err)
	}
	return path, nil
}

func (c *Connector) reply(ctx context.Context, chatID int64, text string) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if err := c.call(ctx, "sendMessage", payload, nil); err != nil {
		c.logger.Printf("send message to chat %d: %v", chatID, err)
	}
}

// sendTyping is best effort; failures only get logged.
func (c *Connector) sendTyping(ctx context.Context, chatID int64) {
	payload := map[string]any{
		"chat_id": chatID,
		"action":  "typing",
	}
	if err := c.call(ctx, "sendChatAction", payload, nil); err != nil {
		c.logger.Printf("send typing to chat %d: %v", chatID, err)
	}
}

func (c *Connector) call(ctx context.Context, method string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !parsed.OK {
		return fmt.Errorf("%s failed: %s", method, parsed.Description)
	}

	if result != nil {
		if err := json.Unmarshal(parsed.Result, result); err != nil {
			return fmt.Errorf("unmarshal %s result: %w", method, err)
		}
	}
	return nil
}

// replyForError maps pipeline failures to short user-facing replies.
// Raw provider errors never reach the user.
func replyForError(err error) string {
	switch {
	case errors.Is(err, chat.ErrNoDocuments):
		return "Please upload at least one PDF first."
	case errors.Is(err, chat.ErrNoExtractableContent):
		return "Could not extract text from the uploaded PDFs."
	case errors.Is(err, chat.ErrSessionNotReady):
		return "Please upload and process your documents first using /process."
	case errors.Is(err, chat.ErrNothingToSummarize):
		return "No documents found to summarize."
	case errors.Is(err, chat.ErrSummaryGeneration):
		return "Failed to generate a summary."
	case errors.Is(err, chat.ErrAnswerGeneration):
		return "Sorry, something went wrong while generating your answer."
	default:
		return "Sorry, something went wrong. Please try again."
	}
}
