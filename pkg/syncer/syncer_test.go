package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/pkg/auth"
	"chatsync/pkg/localstate"
	"chatsync/pkg/models"
	"chatsync/pkg/remote"
	"chatsync/pkg/storage"
	"chatsync/pkg/timeutil"
)

// fakeRemote is an in-memory Remote that records operation order and can
// hold Put calls open to exercise the in-flight guard.
type fakeRemote struct {
	mu      sync.Mutex
	objects map[string][]byte
	ops     []string

	putGate  chan struct{} // when set, Put blocks until the gate closes
	putErr   error
	fetchErr error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{objects: make(map[string][]byte)}
}

func (f *fakeRemote) Fetch(_ context.Context, _, path string) ([]byte, error) {
	f.mu.Lock()
	f.ops = append(f.ops, "fetch:"+path)
	b, ok := f.objects[path]
	err := f.fetchErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", remote.ErrNotFound, path)
	}
	return append([]byte(nil), b...), nil
}

func (f *fakeRemote) Put(_ context.Context, _, path string, body []byte) error {
	f.mu.Lock()
	gate := f.putGate
	err := f.putErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.ops = append(f.ops, "put:"+path)
	f.objects[path] = append([]byte(nil), body...)
	f.mu.Unlock()
	return nil
}

func (f *fakeRemote) Delete(_ context.Context, _, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "delete:"+path)
	if _, ok := f.objects[path]; !ok {
		return fmt.Errorf("%w: %s", remote.ErrNotFound, path)
	}
	delete(f.objects, path)
	return nil
}

func (f *fakeRemote) putCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, op := range f.ops {
		if strings.HasPrefix(op, "put:"+prefix) {
			n++
		}
	}
	return n
}

func (f *fakeRemote) index(t *testing.T) *models.Index {
	t.Helper()
	f.mu.Lock()
	b, ok := f.objects["index.json"]
	f.mu.Unlock()
	require.True(t, ok, "no index uploaded")
	idx, err := models.DecodeIndex(b)
	require.NoError(t, err)
	return idx
}

type fixedTitle struct{ title string }

func (g fixedTitle) Title(context.Context, []models.Message) (string, error) {
	return g.title, nil
}
func (g fixedTitle) Summary(context.Context, []models.Message) (string, error) {
	return "a short recap", nil
}
func (g fixedTitle) NextQuestions(context.Context, []models.Message) ([]string, error) {
	return []string{"What next?"}, nil
}

func freeze(t *testing.T, ms int64) {
	t.Helper()
	timeutil.SetNow(func() time.Time { return time.UnixMilli(ms) })
	t.Cleanup(func() { timeutil.SetNow(nil) })
}

func newHarness(t *testing.T) (*Orchestrator, *localstate.State, *fakeRemote) {
	t.Helper()
	st, err := localstate.Load(storage.NewMemory())
	require.NoError(t, err)
	fr := newFakeRemote()
	o := New(st, fr, auth.Static{Token: "tok"}, nil, nil)
	return o, st, fr
}

func msg(ts int64, text string) models.Message {
	return models.Message{
		Role:      models.RoleUser,
		Timestamp: ts,
		Parts:     []models.Part{{UUID: fmt.Sprintf("u-%d", ts), Text: text, Timestamp: ts}},
	}
}

func TestSyncMintsIDAndUpdatesIndex(t *testing.T) {
	freeze(t, 1000)
	o, st, fr := newHarness(t)
	ctx := context.Background()

	require.NoError(t, st.SetMessages([]models.Message{msg(100, "a"), msg(200, "b")}))
	require.NoError(t, o.Sync(ctx))

	id := st.ActiveID()
	require.NotEmpty(t, id, "sync should mint an id")

	// conversation upload precedes the index update
	fr.mu.Lock()
	var convAt, idxAt int
	for i, op := range fr.ops {
		if op == "put:conversations/"+id+".json" {
			convAt = i
		}
		if op == "put:index.json" {
			idxAt = i
		}
	}
	fr.mu.Unlock()
	assert.Less(t, convAt, idxAt, "conversation must be uploaded before the index")

	idx := fr.index(t)
	require.Len(t, idx.Conversations, 1)
	e := idx.Conversations[0]
	assert.Equal(t, id, e.ID)
	assert.True(t, e.AutoTitle)
	assert.Equal(t, int64(200), e.UpdatedAt, "updatedAt is content-derived, not wall clock")

	// uploaded document decodes back to the same messages
	doc, err := models.DecodeConversationDoc(fr.objects["conversations/"+id+".json"])
	require.NoError(t, err)
	assert.Len(t, doc.Conversation, 2)
	assert.Equal(t, id, doc.ID)
}

func TestSyncUnchangedSkipsUpload(t *testing.T) {
	freeze(t, 1000)
	o, st, fr := newHarness(t)
	ctx := context.Background()

	require.NoError(t, st.SetMessages([]models.Message{msg(100, "a")}))
	require.NoError(t, o.Sync(ctx))
	require.NoError(t, o.Sync(ctx))

	assert.Equal(t, 1, fr.putCount("conversations/"), "second sync with unchanged content must not upload")
}

func TestSyncMutualExclusion(t *testing.T) {
	freeze(t, 1000)
	o, st, fr := newHarness(t)
	ctx := context.Background()

	require.NoError(t, st.SetMessages([]models.Message{msg(100, "a")}))

	gate := make(chan struct{})
	fr.mu.Lock()
	fr.putGate = gate
	fr.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- o.Sync(ctx) }()

	// wait until the first sync is holding the in-flight flag
	require.Eventually(t, func() bool { return o.State() == Syncing },
		time.Second, time.Millisecond)

	// second call coalesces into the in-flight upload
	require.NoError(t, o.Sync(ctx))

	fr.mu.Lock()
	fr.putGate = nil
	fr.mu.Unlock()
	close(gate)
	require.NoError(t, <-done)

	assert.Equal(t, 1, fr.putCount("conversations/"), "overlapping syncs must produce one upload sequence")
}

func TestSyncDefersWithoutToken(t *testing.T) {
	freeze(t, 1000)
	st, err := localstate.Load(storage.NewMemory())
	require.NoError(t, err)
	fr := newFakeRemote()
	o := New(st, fr, auth.Static{}, nil, nil)

	require.NoError(t, st.SetMessages([]models.Message{msg(100, "a")}))
	require.NoError(t, o.Sync(context.Background()), "missing auth defers silently")
	assert.Equal(t, 0, fr.putCount(""), "no uploads without a token")
	assert.False(t, o.Available())
}

func TestSyncEmptyUnboundIsNoop(t *testing.T) {
	o, _, fr := newHarness(t)
	require.NoError(t, o.Sync(context.Background()))
	assert.Equal(t, 0, fr.putCount(""))
}

func TestSyncFailureLeavesLocalIntact(t *testing.T) {
	freeze(t, 1000)
	o, st, fr := newHarness(t)
	ctx := context.Background()

	require.NoError(t, st.SetMessages([]models.Message{msg(100, "a")}))
	fr.mu.Lock()
	fr.putErr = fmt.Errorf("%w: boom", remote.ErrTransient)
	fr.mu.Unlock()

	err := o.Sync(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrTransient)
	assert.Len(t, st.Messages(), 1, "local state is never rolled back on remote failure")
	assert.ErrorIs(t, o.LastError(), remote.ErrTransient)

	// recovery: clearing the fault and re-triggering succeeds
	fr.mu.Lock()
	fr.putErr = nil
	fr.mu.Unlock()
	require.NoError(t, o.Sync(ctx))
	assert.Equal(t, 1, fr.putCount("conversations/"))
}

func seedRemoteConversation(t *testing.T, fr *fakeRemote, id, name string, msgs []models.Message) {
	t.Helper()
	doc := &models.ConversationDoc{Version: models.DocVersion, Conversation: msgs, ID: id}
	b, err := doc.Encode()
	require.NoError(t, err)
	fr.mu.Lock()
	fr.objects["conversations/"+id+".json"] = b

	var idx *models.Index
	if raw, ok := fr.objects["index.json"]; ok {
		idx, err = models.DecodeIndex(raw)
		require.NoError(t, err)
	} else {
		idx = models.NewIndex()
	}
	idx.Upsert(models.IndexEntry{
		ID: id, Name: name, AutoTitle: true,
		UpdatedAt: models.ContentUpdatedAt(msgs), Size: len(b),
	})
	ib, err := idx.Encode()
	require.NoError(t, err)
	fr.objects["index.json"] = ib
	fr.mu.Unlock()
}

func TestLoadInitialMergesAndFlagsFollowUp(t *testing.T) {
	freeze(t, 1000)
	o, st, fr := newHarness(t)
	ctx := context.Background()

	seedRemoteConversation(t, fr, "conv-1", "Trip planning",
		[]models.Message{msg(100, "hello"), msg(300, "remote only")})
	require.NoError(t, st.SetMessages([]models.Message{msg(100, "hello"), msg(200, "local only")}))
	require.NoError(t, st.SetActiveID("conv-1"))

	require.NoError(t, o.LoadInitial(ctx))

	got := st.Messages()
	require.Len(t, got, 3)
	assert.Equal(t, int64(100), got[0].Timestamp)
	assert.Equal(t, int64(200), got[1].Timestamp)
	assert.Equal(t, int64(300), got[2].Timestamp)
	assert.True(t, o.NeedsSync(), "merge diverged from remote; follow-up push expected")
	assert.Equal(t, "Trip planning", st.Title())
	assert.Equal(t, Synced, o.State())

	// once-per-process guard
	require.NoError(t, st.SetMessages(nil))
	require.NoError(t, o.LoadInitial(ctx))
	assert.Empty(t, st.Messages(), "second LoadInitial must be a no-op")
}

func TestLoadInitialCleanWhenIdentical(t *testing.T) {
	freeze(t, 1000)
	o, st, fr := newHarness(t)
	ctx := context.Background()

	msgs := []models.Message{msg(100, "hello")}
	seedRemoteConversation(t, fr, "conv-1", "Chat", msgs)
	require.NoError(t, st.SetMessages(msgs))
	require.NoError(t, st.SetActiveID("conv-1"))

	require.NoError(t, o.LoadInitial(ctx))
	assert.False(t, o.NeedsSync())

	// and a follow-up sync short-circuits on the recorded snapshot
	require.NoError(t, o.Sync(ctx))
	assert.Equal(t, 0, fr.putCount("conversations/"))
}

func TestLoadInitialPreservesUnlistedID(t *testing.T) {
	freeze(t, 1000)
	o, st, fr := newHarness(t)
	ctx := context.Background()

	seedRemoteConversation(t, fr, "other", "Other", []models.Message{msg(50, "x")})
	require.NoError(t, st.SetMessages([]models.Message{msg(100, "mine")}))
	require.NoError(t, st.SetActiveID("conv-gone"))

	require.NoError(t, o.LoadInitial(ctx))
	assert.Equal(t, "conv-gone", st.ActiveID(), "unlisted id must be preserved for retry, not wiped")
	assert.True(t, o.NeedsSync())
}

func TestLoadInitialDefersWithoutToken(t *testing.T) {
	st, err := localstate.Load(storage.NewMemory())
	require.NoError(t, err)
	fr := newFakeRemote()
	o := New(st, fr, auth.Static{}, nil, nil)

	require.NoError(t, o.LoadInitial(context.Background()))
	assert.Equal(t, Idle, o.State(), "deferred load returns to idle and stays retryable")
}

func TestLoadInitialMalformedRemoteKeepsLocal(t *testing.T) {
	freeze(t, 1000)
	o, st, fr := newHarness(t)
	ctx := context.Background()

	seedRemoteConversation(t, fr, "conv-1", "Chat", []models.Message{msg(100, "x")})
	fr.mu.Lock()
	fr.objects["conversations/conv-1.json"] = []byte("{not json")
	fr.mu.Unlock()
	require.NoError(t, st.SetMessages([]models.Message{msg(100, "x"), msg(200, "y")}))
	require.NoError(t, st.SetActiveID("conv-1"))

	require.NoError(t, o.LoadInitial(ctx))
	assert.Len(t, st.Messages(), 2, "local side kept wholesale on corrupt remote")
	assert.True(t, o.NeedsSync())
}

func TestResetMintsFreshID(t *testing.T) {
	freeze(t, 1000)
	o, st, _ := newHarness(t)
	ctx := context.Background()

	require.NoError(t, st.SetMessages([]models.Message{msg(100, "a")}))
	require.NoError(t, o.Sync(ctx))
	first := st.ActiveID()
	require.NotEmpty(t, first)

	require.NoError(t, o.ResetCurrent(ctx))
	assert.Empty(t, st.ActiveID())
	assert.Empty(t, st.Title())
	assert.Empty(t, st.Messages())

	require.NoError(t, st.SetMessages([]models.Message{msg(500, "fresh")}))
	require.NoError(t, o.Sync(ctx))
	second := st.ActiveID()
	require.NotEmpty(t, second)
	assert.NotEqual(t, first, second, "reset must force a brand-new id")
}

func TestSwitchReplacesWholesale(t *testing.T) {
	freeze(t, 1000)
	o, st, fr := newHarness(t)
	ctx := context.Background()

	seedRemoteConversation(t, fr, "conv-b", "Second",
		[]models.Message{msg(700, "their message")})
	require.NoError(t, st.SetMessages([]models.Message{msg(100, "mine")}))
	require.NoError(t, st.SetActiveID("conv-a"))

	require.NoError(t, o.SwitchConversation(ctx, "conv-b"))
	got := st.Messages()
	require.Len(t, got, 1, "switch replaces, never merges")
	assert.Equal(t, int64(700), got[0].Timestamp)
	assert.Equal(t, "conv-b", st.ActiveID())
	assert.Equal(t, "Second", st.Title())

	// the old conversation was saved best-effort before the switch
	assert.Equal(t, 1, fr.putCount("conversations/conv-a.json"))
}

func TestDeleteActiveSwitchesToMostRecent(t *testing.T) {
	freeze(t, 1000)
	o, st, fr := newHarness(t)
	ctx := context.Background()

	seedRemoteConversation(t, fr, "conv-old", "Old", []models.Message{msg(100, "old")})
	seedRemoteConversation(t, fr, "conv-new", "New", []models.Message{msg(900, "new")})
	seedRemoteConversation(t, fr, "conv-act", "Active", []models.Message{msg(500, "act")})
	require.NoError(t, st.SetMessages([]models.Message{msg(500, "act")}))
	require.NoError(t, st.SetActiveID("conv-act"))

	require.NoError(t, o.DeleteConversation(ctx, "conv-act"))
	assert.Equal(t, "conv-new", st.ActiveID(), "auto-switch targets the most recently updated survivor")

	idx := fr.index(t)
	assert.Nil(t, idx.Find("conv-act"))
}

func TestDeleteLastConversationClears(t *testing.T) {
	freeze(t, 1000)
	o, st, fr := newHarness(t)
	ctx := context.Background()

	seedRemoteConversation(t, fr, "only", "Only", []models.Message{msg(100, "x")})
	require.NoError(t, st.SetMessages([]models.Message{msg(100, "x")}))
	require.NoError(t, st.SetActiveID("only"))

	require.NoError(t, o.DeleteConversation(ctx, "only"))
	assert.Empty(t, st.ActiveID())
	assert.Empty(t, st.Messages())
}

func TestRenameClearsAutoTitle(t *testing.T) {
	freeze(t, 1000)
	o, st, fr := newHarness(t)
	ctx := context.Background()

	seedRemoteConversation(t, fr, "conv-1", "Auto name", []models.Message{msg(100, "x")})
	require.NoError(t, st.SetMessages([]models.Message{msg(100, "x")}))
	require.NoError(t, st.SetActiveID("conv-1"))

	require.NoError(t, o.RenameConversation(ctx, "conv-1", "My project"))
	e := fr.index(t).Find("conv-1")
	require.NotNil(t, e)
	assert.Equal(t, "My project", e.Name)
	assert.False(t, e.AutoTitle)
	assert.Equal(t, "My project", st.Title())
}

func TestGenerateTitleRespectsAutoTitleFlag(t *testing.T) {
	freeze(t, 1000)
	st, err := localstate.Load(storage.NewMemory())
	require.NoError(t, err)
	fr := newFakeRemote()
	o := New(st, fr, auth.Static{Token: "tok"}, fixedTitle{"Generated title"}, nil)
	ctx := context.Background()

	seedRemoteConversation(t, fr, "conv-1", "Untitled", []models.Message{msg(100, "x")})
	require.NoError(t, st.SetMessages([]models.Message{msg(100, "x")}))
	require.NoError(t, st.SetActiveID("conv-1"))

	require.NoError(t, o.GenerateTitle(ctx))
	assert.Equal(t, "Generated title", fr.index(t).Find("conv-1").Name)
	assert.Equal(t, "Generated title", st.Title())

	// user rename clears autoTitle; generation becomes a no-op
	require.NoError(t, o.RenameConversation(ctx, "conv-1", "Chosen"))
	require.NoError(t, o.GenerateTitle(ctx))
	assert.Equal(t, "Chosen", fr.index(t).Find("conv-1").Name)
}

func TestCreateConversationRegistersEmpty(t *testing.T) {
	freeze(t, 1000)
	o, st, fr := newHarness(t)
	ctx := context.Background()

	id, err := o.CreateConversation(ctx, "Fresh start")
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, id, st.ActiveID())
	assert.Equal(t, "Fresh start", st.Title())
	assert.Empty(t, st.Messages())

	e := fr.index(t).Find(id)
	require.NotNil(t, e)
	assert.True(t, e.AutoTitle)

	var doc models.ConversationDoc
	require.NoError(t, json.Unmarshal(fr.objects["conversations/"+id+".json"], &doc))
	assert.Empty(t, doc.Conversation)
}

func TestSuggestRecordsSummary(t *testing.T) {
	freeze(t, 1000)
	st, err := localstate.Load(storage.NewMemory())
	require.NoError(t, err)
	o := New(st, newFakeRemote(), auth.Static{Token: "tok"}, fixedTitle{"t"}, nil)
	ctx := context.Background()

	// nothing to summarize yet
	summary, questions, err := o.Suggest(ctx)
	require.NoError(t, err)
	assert.Empty(t, summary)
	assert.Empty(t, questions)

	require.NoError(t, st.SetMessages([]models.Message{msg(100, "hello")}))
	summary, questions, err = o.Suggest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a short recap", summary)
	assert.Equal(t, []string{"What next?"}, questions)

	// the summary rides along on the uploaded document
	doc := st.Doc()
	require.Len(t, doc.Summaries, 1)
	assert.Contains(t, string(doc.Summaries[0]), "a short recap")
}

func TestSuggestUnconfiguredGenerator(t *testing.T) {
	freeze(t, 1000)
	o, st, _ := newHarness(t)
	require.NoError(t, st.SetMessages([]models.Message{msg(100, "hello")}))

	_, _, err := o.Suggest(context.Background())
	require.Error(t, err)
	assert.Empty(t, st.Doc().Summaries)
}
