package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/suPer8Hu/learning-buddy/internal/ai"
	"github.com/suPer8Hu/learning-buddy/internal/logger"
	"github.com/suPer8Hu/learning-buddy/internal/memory"
	"github.com/suPer8Hu/learning-buddy/internal/metrics"
	"github.com/suPer8Hu/learning-buddy/internal/video"
)

var (
	ErrSessionNotFound = errors.New("chat session not found")
	ErrAIUnavailable   = errors.New("ai provider unavailable")
)

// FallbackReply is stored and returned when the provider call fails.
const FallbackReply = "I'm having trouble connecting right now. Please try again in a moment."

const surroundingWindowSeconds = 60

const persona = "You are the AI Learning Buddy, a friendly coach helping K-12 teachers learn to use AI in their teaching. " +
	"Give practical, classroom-ready answers in plain language and keep replies short unless asked for detail."

// VideoContext is the position in a training video the teacher is watching.
type VideoContext struct {
	VideoID   string `json:"video_id"`
	Timestamp int    `json:"timestamp"`
}

// Reply is a stored assistant message. Reason is set when Degraded.
type Reply struct {
	Content   string           `json:"reply"`
	MessageID uint64           `json:"assistant_message_id"`
	Degraded  bool             `json:"degraded"`
	Concepts  []memory.Concept `json:"concepts,omitempty"`
	Reason    error            `json:"-"`
}

type MemoryContext interface {
	BuildMemoryContext(ctx context.Context, userID uint64, topic string) string
}

type ChunkLocator interface {
	FindChunk(ctx context.Context, videoID string, t int) (*video.ContentChunk, error)
	FindSurrounding(ctx context.Context, videoID string, low, high int) ([]video.ContentChunk, error)
}

type ConversationUpdater interface {
	Update(ctx context.Context, userID uint64, userText, assistantText string) ([]memory.Concept, error)
}

// Deps are the optional collaborators of the chat service. Nil members are
// skipped when building the prompt.
type Deps struct {
	Memory  MemoryContext
	Videos  ChunkLocator
	Updater ConversationUpdater
	Log     *logger.Logger
}

type Service struct {
	repo              *Repo
	registry          *ai.Registry
	contextWindowSize int
	deps              Deps
	log               *logger.Logger
}

func NewService(repo *Repo, registry *ai.Registry, contextWindowSize int, deps Deps) *Service {
	if contextWindowSize <= 0 || contextWindowSize > 100 {
		contextWindowSize = 20
	}
	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{repo: repo, registry: registry, contextWindowSize: contextWindowSize, deps: deps, log: log}
}

const (
	defaultProvider = "ollama"
	defaultModel    = "llama3:latest"
)

func (s *Service) CreateSession(ctx context.Context, userID uint64, provider, model string) (*Session, error) {
	if provider == "" {
		provider = defaultProvider
	}
	if model == "" {
		model = defaultModel
	}

	sid, err := NewSessionID()
	if err != nil {
		return nil, err
	}

	session := &Session{
		SessionID: sid,
		UserID:    userID,
		Provider:  provider,
		Model:     model,
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) providerForSession(ctx context.Context, sess *Session) (ai.Provider, error) {
	p := sess.Provider
	m := sess.Model
	if p == "" {
		p = defaultProvider
	}
	if m == "" {
		m = defaultModel
	}
	return s.registry.Get(ctx, p, m)
}

// ownedSession hides other users' sessions behind ErrSessionNotFound.
func (s *Service) ownedSession(ctx context.Context, userID uint64, sessionID string) (*Session, error) {
	sess, err := s.repo.GetSessionBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Service) ValidateSessionOwner(ctx context.Context, userID uint64, sessionID string) error {
	_, err := s.ownedSession(ctx, userID, sessionID)
	return err
}

// SendMessage stores the user message, asks the session's provider for a
// reply and stores that too. A provider failure yields a degraded reply.
func (s *Service) SendMessage(ctx context.Context, userID uint64, sessionID, content string, vc *VideoContext) (*Reply, error) {
	sess, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	provider, err := s.providerForSession(ctx, sess)
	if err != nil {
		return nil, err
	}

	userMsg := &Message{
		SessionID: sessionID,
		UserID:    userID,
		Role:      ai.RoleUser,
		Content:   content,
	}
	if err := s.repo.InsertMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	return s.complete(ctx, sess, provider, userID, content, vc)
}

// GenerateAssistantReplyAndInsert answers the latest history of a session;
// the async job path stores the user message up front.
func (s *Service) GenerateAssistantReplyAndInsert(ctx context.Context, userID uint64, sessionID string, vc *VideoContext) (*Reply, error) {
	sess, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	provider, err := s.providerForSession(ctx, sess)
	if err != nil {
		return nil, err
	}
	return s.complete(ctx, sess, provider, userID, "", vc)
}

func (s *Service) complete(ctx context.Context, sess *Session, provider ai.Provider, userID uint64, userText string, vc *VideoContext) (*Reply, error) {
	msgs, lastUser, err := s.providerMessages(ctx, userID, sess.SessionID, vc)
	if err != nil {
		return nil, err
	}
	if userText == "" {
		userText = lastUser
	}

	done := metrics.TimeLLM(sess.Provider)
	text, callErr := provider.Chat(ctx, msgs)
	done(callErr == nil)

	reply := &Reply{Content: text}
	if callErr != nil {
		reply = s.degradedReply(sess, callErr)
	}

	assistantMsg := &Message{
		SessionID: sess.SessionID,
		UserID:    userID,
		Role:      ai.RoleAssistant,
		Content:   reply.Content,
		Degraded:  reply.Degraded,
	}
	if err := s.repo.InsertMessage(ctx, assistantMsg); err != nil {
		return nil, err
	}
	reply.MessageID = assistantMsg.ID

	if !reply.Degraded {
		reply.Concepts = s.updateMemory(ctx, userID, userText, reply.Content)
	}
	return reply, nil
}

func (s *Service) degradedReply(sess *Session, cause error) *Reply {
	s.log.Warn("ai provider call failed", "provider", sess.Provider, "model", sess.Model, "session_id", sess.SessionID, "error", cause)
	return &Reply{
		Content:  FallbackReply,
		Degraded: true,
		Reason:   fmt.Errorf("%w: %v", ErrAIUnavailable, cause),
	}
}

func (s *Service) updateMemory(ctx context.Context, userID uint64, userText, assistantText string) []memory.Concept {
	if s.deps.Updater == nil || strings.TrimSpace(userText) == "" {
		return nil
	}
	concepts, err := s.deps.Updater.Update(ctx, userID, userText, assistantText)
	if err != nil {
		s.log.Warn("memory update failed", "user_id", userID, "error", err)
	}
	return concepts
}

// providerMessages returns the system prompt followed by the recent history
// (oldest first), plus the newest user message text.
func (s *Service) providerMessages(ctx context.Context, userID uint64, sessionID string, vc *VideoContext) ([]ai.Message, string, error) {
	recentDesc, err := s.repo.ListRecentMessagesDesc(ctx, userID, sessionID, s.contextWindowSize)
	if err != nil {
		return nil, "", err
	}

	msgs := make([]ai.Message, 0, len(recentDesc)+1)
	msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: s.systemPrompt(ctx, userID, vc)})

	lastUser := ""
	for i := len(recentDesc) - 1; i >= 0; i-- {
		m := recentDesc[i]
		msgs = append(msgs, ai.Message{Role: m.Role, Content: m.Content})
		if m.Role == ai.RoleUser {
			lastUser = m.Content
		}
	}
	return msgs, lastUser, nil
}

func (s *Service) systemPrompt(ctx context.Context, userID uint64, vc *VideoContext) string {
	parts := []string{persona}
	if s.deps.Memory != nil {
		parts = append(parts, s.deps.Memory.BuildMemoryContext(ctx, userID, ""))
	}
	if v := s.videoSection(ctx, vc); v != "" {
		parts = append(parts, v)
	}
	return strings.Join(parts, "\n\n")
}

func (s *Service) videoSection(ctx context.Context, vc *VideoContext) string {
	if vc == nil || s.deps.Videos == nil || vc.VideoID == "" {
		return ""
	}
	current, err := s.deps.Videos.FindChunk(ctx, vc.VideoID, vc.Timestamp)
	if err != nil {
		s.log.Warn("chunk lookup failed", "video_id", vc.VideoID, "t", vc.Timestamp, "error", err)
		return ""
	}
	around, err := s.deps.Videos.FindSurrounding(ctx, vc.VideoID, vc.Timestamp-surroundingWindowSeconds, vc.Timestamp+surroundingWindowSeconds)
	if err != nil {
		s.log.Warn("surrounding chunk lookup failed", "video_id", vc.VideoID, "t", vc.Timestamp, "error", err)
		around = nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The teacher is watching a training video at %s.", clock(vc.Timestamp))
	if current != nil {
		fmt.Fprintf(&b, "\nOn screen now (%s, %s-%s):\n%s", current.Topic, clock(current.StartTime), clock(current.EndTime), current.Content)
	}
	var nearby []string
	for _, c := range around {
		if current != nil && c.ID == current.ID {
			continue
		}
		nearby = append(nearby, fmt.Sprintf("%s (%s)", c.Topic, clock(c.StartTime)))
	}
	if len(nearby) > 0 {
		b.WriteString("\nNearby sections: " + strings.Join(nearby, ", "))
	}
	return b.String()
}

func clock(sec int) string {
	if sec < 0 {
		sec = 0
	}
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}

func (s *Service) ListMessages(ctx context.Context, userID uint64, sessionID string, limit int, beforeID uint64) ([]Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListMessages(ctx, userID, sessionID, limit, beforeID)
}

// SendMessageStream stores the user message immediately, streams assistant chunks,
// and finally stores the assistant message after streaming completes. A
// provider that fails before producing output streams FallbackReply instead.
func (s *Service) SendMessageStream(ctx context.Context, userID uint64, sessionID, content string, vc *VideoContext) (chunks <-chan string, done <-chan struct{}, assistantMsgID <-chan uint64, errs <-chan error) {
	outChunks := make(chan string, 16)
	outDone := make(chan struct{})
	outMsgID := make(chan uint64, 1)
	outErrs := make(chan error, 1)

	emit := func(c string) bool {
		select {
		case outChunks <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(outChunks)
		defer close(outDone)
		defer close(outMsgID)
		defer close(outErrs)

		sess, err := s.ownedSession(ctx, userID, sessionID)
		if err != nil {
			outErrs <- err
			return
		}
		provider, err := s.providerForSession(ctx, sess)
		if err != nil {
			outErrs <- err
			return
		}

		userMsg := &Message{
			SessionID: sessionID,
			UserID:    userID,
			Role:      ai.RoleUser,
			Content:   content,
		}
		if err := s.repo.InsertMessage(ctx, userMsg); err != nil {
			outErrs <- err
			return
		}

		providerMsgs, _, err := s.providerMessages(ctx, userID, sessionID, vc)
		if err != nil {
			outErrs <- err
			return
		}

		var b strings.Builder
		timer := metrics.TimeLLM(sess.Provider)
		var callErr error
		if sp, ok := provider.(ai.StreamProvider); ok {
			pChunks, pErrs := sp.StreamChat(ctx, providerMsgs)
			for c := range pChunks {
				b.WriteString(c)
				if !emit(c) {
					outErrs <- ctx.Err()
					return
				}
			}
			callErr = <-pErrs
		} else {
			var text string
			text, callErr = provider.Chat(ctx, providerMsgs)
			if callErr == nil {
				b.WriteString(text)
				emit(text)
			}
		}
		timer(callErr == nil)

		degraded := false
		if callErr != nil {
			if b.Len() > 0 {
				outErrs <- fmt.Errorf("%w: %v", ErrAIUnavailable, callErr)
				return
			}
			r := s.degradedReply(sess, callErr)
			b.WriteString(r.Content)
			emit(r.Content)
			degraded = true
		}

		reply := b.String()
		assistantMsg := &Message{
			SessionID: sessionID,
			UserID:    userID,
			Role:      ai.RoleAssistant,
			Content:   reply,
			Degraded:  degraded,
		}
		if err := s.repo.InsertMessage(ctx, assistantMsg); err != nil {
			outErrs <- err
			return
		}
		if !degraded {
			s.updateMemory(ctx, userID, content, reply)
		}

		outMsgID <- assistantMsg.ID
	}()

	return outChunks, outDone, outMsgID, outErrs
}

func (s *Service) InsertUserMessage(ctx context.Context, userID uint64, sessionID string, content string) error {
	if err := s.ValidateSessionOwner(ctx, userID, sessionID); err != nil {
		return err
	}
	return s.repo.InsertMessage(ctx, &Message{
		SessionID: sessionID,
		UserID:    userID,
		Role:      ai.RoleUser,
		Content:   content,
	})
}

func (s *Service) CreateJob(ctx context.Context, job *Job) error {
	return s.repo.CreateJob(ctx, job)
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.GetJobByID(ctx, jobID)
}

func (s *Service) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	return s.repo.CreateJobOrGetExisting(ctx, job)
}

func (s *Service) InsertUserMessageOrGetExisting(ctx context.Context, userID uint64, sessionID string, content string, key *string) (*Message, bool, error) {
	if err := s.ValidateSessionOwner(ctx, userID, sessionID); err != nil {
		return nil, false, err
	}
	return s.repo.InsertUserMessageOrGetExisting(ctx, userID, sessionID, content, key)
}

// RunJob executes a queued job and records its outcome on the job row.
func (s *Service) RunJob(ctx context.Context, jobID string) (*Reply, error) {
	_ = s.repo.UpdateJobStatusRunning(ctx, jobID)

	j, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	reply, err := s.GenerateAssistantReplyAndInsert(ctx, j.UserID, j.SessionID, j.VideoContext())
	if err != nil {
		_ = s.repo.MarkJobFailed(ctx, jobID, err.Error())
		return nil, err
	}
	if err := s.repo.MarkJobSucceeded(ctx, jobID, reply.MessageID); err != nil {
		return nil, err
	}
	return reply, nil
}
