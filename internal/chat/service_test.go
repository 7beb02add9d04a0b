package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/learning-buddy/internal/ai"
	"github.com/suPer8Hu/learning-buddy/internal/db"
	"github.com/suPer8Hu/learning-buddy/internal/memory"
	"github.com/suPer8Hu/learning-buddy/internal/video"
	"gorm.io/gorm"
)

type recordingProvider struct {
	last  []ai.Message
	reply string
	err   error
}

func (p *recordingProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	_ = ctx
	// copy to avoid mutations
	p.last = append([]ai.Message(nil), messages...)
	if p.err != nil {
		return "", p.err
	}
	if p.reply == "" {
		return "ok", nil
	}
	return p.reply, nil
}

type streamingProvider struct {
	recordingProvider
	parts []string
	err   error
}

func (p *streamingProvider) StreamChat(ctx context.Context, messages []ai.Message) (<-chan string, <-chan error) {
	p.last = append([]ai.Message(nil), messages...)
	chunks := make(chan string, len(p.parts))
	errs := make(chan error, 1)
	for _, part := range p.parts {
		chunks <- part
	}
	if p.err != nil {
		errs <- p.err
	}
	close(errs)
	close(chunks)
	return chunks, errs
}

type fakeMemory struct{ text string }

func (f fakeMemory) BuildMemoryContext(context.Context, uint64, string) string { return f.text }

type fakeLocator struct {
	current *video.ContentChunk
	around  []video.ContentChunk
	low     int
	high    int
}

func (f *fakeLocator) FindChunk(context.Context, string, int) (*video.ContentChunk, error) {
	return f.current, nil
}

func (f *fakeLocator) FindSurrounding(_ context.Context, _ string, low, high int) ([]video.ContentChunk, error) {
	f.low, f.high = low, high
	return f.around, nil
}

type recordingUpdater struct {
	userTexts []string
}

func (u *recordingUpdater) Update(_ context.Context, _ uint64, userText, _ string) ([]memory.Concept, error) {
	u.userTexts = append(u.userTexts, userText)
	return []memory.Concept{{Name: "prompt engineering"}}, nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb, Models()...))
	return gdb
}

func fakeRegistry(p ai.Provider) *ai.Registry {
	reg := ai.NewRegistry()
	reg.Register("fake", func(ctx context.Context, model string) (ai.Provider, error) {
		return p, nil
	})
	return reg
}

func newSession(t *testing.T, repo *Repo, sid string, userID uint64) *Session {
	t.Helper()
	sess := &Session{SessionID: sid, UserID: userID, Provider: "fake", Model: "default"}
	require.NoError(t, repo.CreateSession(context.Background(), sess))
	return sess
}

func storedMessages(t *testing.T, gdb *gorm.DB, sessionID string) []Message {
	t.Helper()
	var msgs []Message
	require.NoError(t, gdb.Where("session_id = ?", sessionID).Order("id ASC").Find(&msgs).Error)
	return msgs
}

func TestSendMessage_WritesUserAndAssistant(t *testing.T) {
	gdb := openTestDB(t)
	repo := NewRepo(gdb)
	prov := &recordingProvider{}
	svc := NewService(repo, fakeRegistry(prov), 20, Deps{})
	sess := newSession(t, repo, "01TESTSESSIONID00000000000", 1)

	reply, err := svc.SendMessage(context.Background(), 1, sess.SessionID, "Hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", reply.Content)
	assert.False(t, reply.Degraded)
	assert.NotZero(t, reply.MessageID)

	msgs := storedMessages(t, gdb, sess.SessionID)
	require.Len(t, msgs, 2)
	assert.Equal(t, ai.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Equal(t, ai.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "ok", msgs[1].Content)

	require.NotEmpty(t, prov.last)
	assert.Equal(t, ai.RoleSystem, prov.last[0].Role)
	assert.Contains(t, prov.last[0].Content, "AI Learning Buddy")
}

func TestSendMessage_UsesContextWindow(t *testing.T) {
	gdb := openTestDB(t)
	repo := NewRepo(gdb)
	prov := &recordingProvider{}
	window := 3
	svc := NewService(repo, fakeRegistry(prov), window, Deps{})
	sess := newSession(t, repo, "01TESTSESSIONID00000000001", 2)

	for i := 0; i < 5; i++ {
		role := ai.RoleUser
		if i%2 == 1 {
			role = ai.RoleAssistant
		}
		require.NoError(t, repo.InsertMessage(context.Background(), &Message{
			SessionID: sess.SessionID,
			UserID:    2,
			Role:      role,
			Content:   "seed",
		}))
	}

	_, err := svc.SendMessage(context.Background(), 2, sess.SessionID, "new", nil)
	require.NoError(t, err)

	// system prompt + window
	require.Len(t, prov.last, window+1)
	last := prov.last[len(prov.last)-1]
	assert.Equal(t, ai.RoleUser, last.Role)
	assert.Equal(t, "new", last.Content)
}

func TestSendMessage_SessionOwnership(t *testing.T) {
	gdb := openTestDB(t)
	repo := NewRepo(gdb)
	svc := NewService(repo, fakeRegistry(&recordingProvider{}), 20, Deps{})
	sess := newSession(t, repo, "01TESTSESSIONID00000000002", 1)

	_, err := svc.SendMessage(context.Background(), 99, sess.SessionID, "hi", nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.SendMessage(context.Background(), 1, "missing", "hi", nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.Empty(t, storedMessages(t, gdb, sess.SessionID))
}

func TestSendMessage_ProviderFailureDegrades(t *testing.T) {
	gdb := openTestDB(t)
	repo := NewRepo(gdb)
	upd := &recordingUpdater{}
	svc := NewService(repo, fakeRegistry(&recordingProvider{err: errors.New("connection refused")}), 20, Deps{Updater: upd})
	sess := newSession(t, repo, "01TESTSESSIONID00000000003", 1)

	reply, err := svc.SendMessage(context.Background(), 1, sess.SessionID, "hi", nil)
	require.NoError(t, err)
	assert.True(t, reply.Degraded)
	assert.Equal(t, FallbackReply, reply.Content)
	assert.ErrorIs(t, reply.Reason, ErrAIUnavailable)
	assert.Empty(t, upd.userTexts)

	msgs := storedMessages(t, gdb, sess.SessionID)
	require.Len(t, msgs, 2)
	assert.Equal(t, FallbackReply, msgs[1].Content)
	assert.True(t, msgs[1].Degraded)
}

func TestSendMessage_PromptCarriesMemoryAndVideo(t *testing.T) {
	gdb := openTestDB(t)
	repo := NewRepo(gdb)
	prov := &recordingProvider{}
	loc := &fakeLocator{
		current: &video.ContentChunk{ID: "c2", StartTime: 180, EndTime: 240, Topic: "AI Ethics and Safety", Content: "Think about privacy first."},
		around: []video.ContentChunk{
			{ID: "c1", StartTime: 120, Topic: "Practical Prompt Examples"},
			{ID: "c2", StartTime: 180, Topic: "AI Ethics and Safety"},
		},
	}
	upd := &recordingUpdater{}
	svc := NewService(repo, fakeRegistry(prov), 20, Deps{
		Memory:  fakeMemory{text: memory.ContextHeader + "\nConcepts discussed:\n- rubrics (concept):"},
		Videos:  loc,
		Updater: upd,
	})
	sess := newSession(t, repo, "01TESTSESSIONID00000000004", 1)

	reply, err := svc.SendMessage(context.Background(), 1, sess.SessionID, "what should I watch for?", &VideoContext{VideoID: "vid", Timestamp: 217})
	require.NoError(t, err)

	system := prov.last[0].Content
	assert.Contains(t, system, "- rubrics (concept):")
	assert.Contains(t, system, "at 3:37")
	assert.Contains(t, system, "On screen now (AI Ethics and Safety, 3:00-4:00):\nThink about privacy first.")
	assert.Contains(t, system, "Nearby sections: Practical Prompt Examples (2:00)")
	assert.NotContains(t, system, "AI Ethics and Safety (3:00)")
	assert.Equal(t, 157, loc.low)
	assert.Equal(t, 277, loc.high)

	assert.Equal(t, []string{"what should I watch for?"}, upd.userTexts)
	require.Len(t, reply.Concepts, 1)
}

func TestSendMessageStream(t *testing.T) {
	gdb := openTestDB(t)
	repo := NewRepo(gdb)
	prov := &streamingProvider{parts: []string{"Hel", "lo"}}
	svc := NewService(repo, fakeRegistry(prov), 20, Deps{})
	sess := newSession(t, repo, "01TESTSESSIONID00000000005", 1)

	chunks, done, msgID, errs := svc.SendMessageStream(context.Background(), 1, sess.SessionID, "hi", nil)
	text, err := drain(chunks, errs)
	require.NoError(t, err)
	<-done
	assert.Equal(t, "Hello", text)
	assert.NotZero(t, <-msgID)

	msgs := storedMessages(t, gdb, sess.SessionID)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello", msgs[1].Content)
}

func TestSendMessageStream_FailureBeforeOutputDegrades(t *testing.T) {
	gdb := openTestDB(t)
	repo := NewRepo(gdb)
	prov := &streamingProvider{err: errors.New("503")}
	svc := NewService(repo, fakeRegistry(prov), 20, Deps{})
	sess := newSession(t, repo, "01TESTSESSIONID00000000006", 1)

	chunks, _, _, errs := svc.SendMessageStream(context.Background(), 1, sess.SessionID, "hi", nil)
	text, err := drain(chunks, errs)
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, text)

	msgs := storedMessages(t, gdb, sess.SessionID)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].Degraded)
}

func TestSendMessageStream_FailureMidStream(t *testing.T) {
	gdb := openTestDB(t)
	repo := NewRepo(gdb)
	prov := &streamingProvider{parts: []string{"partial"}, err: errors.New("reset")}
	svc := NewService(repo, fakeRegistry(prov), 20, Deps{})
	sess := newSession(t, repo, "01TESTSESSIONID00000000007", 1)

	chunks, _, _, errs := svc.SendMessageStream(context.Background(), 1, sess.SessionID, "hi", nil)
	_, err := drain(chunks, errs)
	assert.ErrorIs(t, err, ErrAIUnavailable)
	assert.Len(t, storedMessages(t, gdb, sess.SessionID), 1)
}

func TestRunJob(t *testing.T) {
	gdb := openTestDB(t)
	repo := NewRepo(gdb)
	upd := &recordingUpdater{}
	loc := &fakeLocator{}
	svc := NewService(repo, fakeRegistry(&recordingProvider{reply: "done"}), 20, Deps{Updater: upd, Videos: loc})
	sess := newSession(t, repo, "01TESTSESSIONID00000000008", 4)
	ctx := context.Background()

	require.NoError(t, svc.InsertUserMessage(ctx, 4, sess.SessionID, "queued question"))
	ts := 90
	jobID, err := NewJobID()
	require.NoError(t, err)
	require.NoError(t, svc.CreateJob(ctx, &Job{ID: jobID, UserID: 4, SessionID: sess.SessionID, Prompt: "queued question", Status: JobQueued, VideoID: "vid", Timestamp: &ts}))

	reply, err := svc.RunJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "done", reply.Content)
	assert.Equal(t, []string{"queued question"}, upd.userTexts)
	assert.Equal(t, 30, loc.low)

	j, err := svc.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, j.Status)
	require.NotNil(t, j.ResultMessageID)
	assert.Equal(t, reply.MessageID, *j.ResultMessageID)
}

func TestInsertUserMessageOrGetExisting(t *testing.T) {
	gdb := openTestDB(t)
	repo := NewRepo(gdb)
	svc := NewService(repo, fakeRegistry(&recordingProvider{}), 20, Deps{})
	sess := newSession(t, repo, "01TESTSESSIONID00000000009", 1)
	ctx := context.Background()
	key := "k-1"

	first, created, err := svc.InsertUserMessageOrGetExisting(ctx, 1, sess.SessionID, "hello", &key)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := svc.InsertUserMessageOrGetExisting(ctx, 1, sess.SessionID, "hello", &key)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	_, created, err = svc.InsertUserMessageOrGetExisting(ctx, 1, sess.SessionID, "hello", nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, storedMessages(t, gdb, sess.SessionID), 2)

	_, _, err = svc.InsertUserMessageOrGetExisting(ctx, 2, sess.SessionID, "hello", &key)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCreateJobOrGetExisting(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()
	key := "job-key"

	j1 := &Job{ID: "01JOB000000000000000000001", UserID: 1, SessionID: "s", Prompt: "p", Status: JobQueued, IdempotencyKey: &key}
	got, created, err := repo.CreateJobOrGetExisting(ctx, j1)
	require.NoError(t, err)
	assert.True(t, created)

	j2 := &Job{ID: "01JOB000000000000000000002", UserID: 1, SessionID: "s", Prompt: "p", Status: JobQueued, IdempotencyKey: &key}
	got2, created, err := repo.CreateJobOrGetExisting(ctx, j2)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, got.ID, got2.ID)
}

// drain collects a stream into one string, reading the error after the
// chunk channel closes.
func drain(chunks <-chan string, errs <-chan error) (string, error) {
	var out []byte
	for c := range chunks {
		out = append(out, c...)
	}
	return string(out), <-errs
}
