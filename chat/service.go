// Package chat implements the user-facing pipeline operations: document
// processing, retrieval-grounded answering, and summarization.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"medichat/embeddings"
	"medichat/ingestion"
	"medichat/llm"
	"medichat/session"
	"medichat/vectorstore"
)

// Failure kinds, matched with errors.Is at the transport boundary and
// mapped to short user-facing replies there.
var (
	ErrNoDocuments          = errors.New("no documents uploaded")
	ErrNoExtractableContent = errors.New("no extractable content in uploaded documents")
	ErrIndexBuild           = errors.New("index build failed")
	ErrSessionNotReady      = errors.New("documents not processed yet")
	ErrAnswerGeneration     = errors.New("answer generation failed")
	ErrSummaryGeneration    = errors.New("summary generation failed")
	ErrNothingToSummarize   = errors.New("nothing to summarize")
)

// NoRelevantInformation is the fixed reply for questions the index has
// no matches for. It is a normal answer, not an error.
const NoRelevantInformation = "No relevant information found in your documents."

const (
	defaultRetrievalLimit = 4
	defaultRequestTimeout = 60 * time.Second

	documentSummaryQuery = "overall key insights, findings and recommendations"
)

// Extractor turns a stored file into plain text.
type Extractor func(path string) (string, error)

// ModelFactory creates a fresh language model handle for a session.
type ModelFactory func() (llm.Client, error)

// StoreFactory creates the vector store backing one user's index.
type StoreFactory func(userID int64) vectorstore.Store

type Config struct {
	Splitter       ingestion.Splitter
	RetrievalLimit int
	RequestTimeout time.Duration

	// Extract overrides PDF extraction; nil means ingestion.ExtractFile.
	Extract Extractor
}

type Service struct {
	sessions  *session.Store
	embedder  embeddings.Embedder
	newModel  ModelFactory
	newStore  StoreFactory
	extract   Extractor
	splitter  ingestion.Splitter
	retrieval int
	timeout   time.Duration
	logger    *log.Logger
}

func NewService(sessions *session.Store, embedder embeddings.Embedder, newModel ModelFactory, newStore StoreFactory, cfg Config, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}

	extract := cfg.Extract
	if extract == nil {
		extract = ingestion.ExtractFile
	}

	retrieval := cfg.RetrievalLimit
	if retrieval <= 0 {
		retrieval = defaultRetrievalLimit
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &Service{
		sessions:  sessions,
		embedder:  embedder,
		newModel:  newModel,
		newStore:  newStore,
		extract:   extract,
		splitter:  cfg.Splitter,
		retrieval: retrieval,
		timeout:   timeout,
		logger:    logger,
	}
}

// RecordUpload appends a file reference to the user's session, creating
// the session on first upload.
func (s *Service) RecordUpload(_ context.Context, userID int64, path string) error {
	s.sessions.RecordUpload(userID, path)
	return nil
}

// Process extracts, chunks and indexes every uploaded file from scratch
// and installs a fresh model handle. Files that yield no text are
// skipped; the call fails only when nothing at all is extractable.
func (s *Service) Process(ctx context.Context, userID int64) error {
	return s.sessions.Do(userID, func(sess *session.Session) error {
		if len(sess.Files) == 0 {
			return ErrNoDocuments
		}

		docs := make([]ingestion.Document, 0, len(sess.Files))
		for _, path := range sess.Files {
			text, err := s.extract(path)
			if err != nil {
				s.logger.Printf("user %d: extract %s: %v", userID, path, err)
				continue
			}
			if strings.TrimSpace(text) == "" {
				s.logger.Printf("user %d: no text in %s", userID, path)
				continue
			}
			docs = append(docs, ingestion.Document{Name: filepath.Base(path), Text: text})
		}
		if len(docs) == 0 {
			return ErrNoExtractableContent
		}

		tagged := s.splitter.SplitTagged(docs)
		chunks := make([]vectorstore.Chunk, len(tagged))
		for i, chunk := range tagged {
			chunks[i] = vectorstore.Chunk{Source: chunk.Source, Content: chunk.Text}
		}

		// The model handle comes first: once Build resets the backing
		// store, no later failure may leave the session on its old index.
		model, err := s.newModel()
		if err != nil {
			return fmt.Errorf("%w: create model handle: %w", ErrIndexBuild, err)
		}

		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		index, err := vectorstore.Build(opCtx, s.embedder, s.newStore(userID), chunks)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrIndexBuild, err)
		}

		sess.Ready(index, model)
		s.logger.Printf("user %d: processed %d documents into %d chunks", userID, len(docs), index.Size())
		return nil
	})
}

// Ask answers a question from the session's indexed documents and
// records the exchange in the bounded history.
func (s *Service) Ask(ctx context.Context, userID int64, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("question cannot be empty")
	}

	var answer string
	err := s.sessions.Do(userID, func(sess *session.Session) error {
		if !sess.IsReady() {
			return ErrSessionNotReady
		}

		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		matches, err := sess.Index.Search(opCtx, question, s.retrieval)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrAnswerGeneration, err)
		}
		if len(matches) == 0 {
			answer = NoRelevantInformation
			return nil
		}

		reply, err := sess.Model.Generate(opCtx, []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt()},
			{Role: llm.RoleUser, Content: formatUserPrompt(question, contextText(matches))},
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrAnswerGeneration, err)
		}

		answer = strings.TrimSpace(reply)
		sess.AppendHistory(question, answer)
		return nil
	})
	return answer, err
}

// Summarize condenses the recent conversation, or, when no questions
// were asked yet, the indexed documents themselves.
func (s *Service) Summarize(ctx context.Context, userID int64) (string, error) {
	var summary string
	err := s.sessions.Do(userID, func(sess *session.Session) error {
		if sess.Model == nil {
			return ErrSessionNotReady
		}

		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		var prompt string
		if len(sess.History) > 0 {
			prompt = conversationSummaryPrompt(sess.History)
		} else {
			if sess.Index == nil {
				return ErrNothingToSummarize
			}
			matches, err := sess.Index.Search(opCtx, documentSummaryQuery, s.retrieval)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrSummaryGeneration, err)
			}
			if len(matches) == 0 {
				return ErrNothingToSummarize
			}
			prompt = documentSummaryPrompt(matches)
		}

		reply, err := llm.Complete(opCtx, sess.Model, prompt)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSummaryGeneration, err)
		}

		summary = strings.TrimSpace(reply)
		return nil
	})
	return summary, err
}

func contextText(matches []vectorstore.Match) string {
	parts := make([]string, len(matches))
	for i, match := range matches {
		parts[i] = match.Content
	}
	return strings.Join(parts, "\n\n")
}

func systemPrompt() string {
	return "You are MediChat, an assistant for medical document analysis. " +
		"Answer the question using only the supplied context. " +
		"If the answer is not available in the context, say so clearly."
}

func formatUserPrompt(question, context string) string {
	var sb strings.Builder
	sb.WriteString("Context:\n")
	sb.WriteString(context)
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}

func conversationSummaryPrompt(history []session.QA) string {
	var sb strings.Builder
	sb.WriteString("Summarize the recent medical chat conversation below into concise key points:\n\n")
	for i, qa := range history {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("Q: ")
		sb.WriteString(qa.Question)
		sb.WriteString("\nA: ")
		sb.WriteString(qa.Answer)
	}
	return sb.String()
}

func documentSummaryPrompt(matches []vectorstore.Match) string {
	var sb strings.Builder
	sb.WriteString("Summarize the overall key insights from the medical document excerpts below:\n\n")
	sb.WriteString(contextText(matches))
	return sb.String()
}
