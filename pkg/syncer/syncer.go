// Package syncer coordinates reconciliation between the local
// conversation and its remote copy. It owns the sync lifecycle flags
// (in-flight, last-synced snapshot, reset-pending); nothing outside this
// package mutates them.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"chatsync/pkg/auth"
	"chatsync/pkg/llm"
	"chatsync/pkg/localstate"
	"chatsync/pkg/logger"
	"chatsync/pkg/merge"
	"chatsync/pkg/metrics"
	"chatsync/pkg/models"
	"chatsync/pkg/remote"
	"chatsync/pkg/timeutil"
)

// State is the sync lifecycle position. Error transitions return to
// Idle with the error retained; they never panic the caller.
type State int

const (
	Idle State = iota
	Checking
	Loading
	Synced
	Syncing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Checking:
		return "checking"
	case Loading:
		return "loading"
	case Synced:
		return "synced"
	case Syncing:
		return "syncing"
	}
	return "unknown"
}

// Remote is the object-store surface the orchestrator consumes.
// *remote.Client implements it; tests substitute a fake.
type Remote interface {
	Fetch(ctx context.Context, token, path string) ([]byte, error)
	Put(ctx context.Context, token, path string, body []byte) error
	Delete(ctx context.Context, token, path string) error
}

const (
	indexPath    = "index.json"
	defaultTitle = "New conversation"
)

func convPath(id string) string { return "conversations/" + id + ".json" }

// Orchestrator drives when the remote store is read and written. All
// exported methods are safe for concurrent use; remote I/O runs outside
// the lock and overlapping Sync calls coalesce into one upload.
type Orchestrator struct {
	local  *localstate.State
	store  Remote
	tokens auth.TokenProvider
	gen    llm.Generator

	mu           sync.Mutex
	state        State
	available    bool
	loaded       bool   // LoadInitial ran to completion this process
	inFlight     bool   // one upload sequence at a time
	resetPending bool   // next sync must mint a fresh id
	needsSync    bool   // initial merge diverged from remote; push wanted
	lastSynced   []byte // snapshot of the last successful upload
	lastErr      error

	limiter *rate.Limiter
}

// New wires the orchestrator. throttle caps sync frequency; pass nil to
// allow every trigger through.
func New(local *localstate.State, store Remote, tokens auth.TokenProvider, gen llm.Generator, throttle *rate.Limiter) *Orchestrator {
	if gen == nil {
		gen = llm.Noop{}
	}
	return &Orchestrator{
		local:   local,
		store:   store,
		tokens:  tokens,
		gen:     gen,
		limiter: throttle,
	}
}

// State returns the current lifecycle position.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Available reports the last observed token availability. The UI gates
// all sync controls on this.
func (o *Orchestrator) Available() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.available
}

// NeedsSync reports whether the initial reconciliation produced a result
// that still has to be pushed upstream.
func (o *Orchestrator) NeedsSync() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.needsSync
}

// LastError returns the error retained from the most recent failed
// operation, if any.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

func (o *Orchestrator) setErr(err error) {
	o.mu.Lock()
	o.lastErr = err
	o.mu.Unlock()
}

// CheckAvailability asks the auth collaborator whether a token can be
// produced and records the answer.
func (o *Orchestrator) CheckAvailability() bool {
	o.mu.Lock()
	if o.state == Idle {
		o.state = Checking
	}
	o.mu.Unlock()

	ok := o.tokens.IsAvailable()

	o.mu.Lock()
	o.available = ok
	if o.state == Checking {
		o.state = Idle
	}
	o.mu.Unlock()
	logger.Debug("availability_checked", "available", ok)
	return ok
}

// LoadInitial performs the one-time reconciliation between the local
// replica and the remote copy it was last bound to. It runs at most once
// per process; later calls are no-ops. While it runs, Sync is blocked.
func (o *Orchestrator) LoadInitial(ctx context.Context) error {
	o.mu.Lock()
	if o.loaded || o.state == Loading {
		o.mu.Unlock()
		return nil
	}
	o.state = Loading
	o.mu.Unlock()

	err := o.loadInitial(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	if err == nil {
		o.loaded = true
		o.state = Synced
		o.lastErr = nil
		return nil
	}
	o.state = Idle
	if errors.Is(err, auth.ErrNoToken) || errors.Is(err, remote.ErrUnauthorized) {
		// not signed in yet; stay un-loaded so the next call retries
		logger.Debug("initial_load_deferred")
		return nil
	}
	o.lastErr = err
	return err
}

func (o *Orchestrator) loadInitial(ctx context.Context) error {
	token, err := o.tokens.GetAccessToken()
	if err != nil {
		return err
	}

	idx, err := o.fetchIndex(ctx, token)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			// nothing remote yet; local state stands alone
			logger.Info("initial_load_no_remote_index")
			return nil
		}
		return err
	}

	id := o.local.ActiveID()
	if id == "" {
		return nil
	}
	entry := idx.Find(id)
	if entry == nil {
		// id not listed remotely: keep the local binding so a later
		// sync can recreate the record instead of orphaning the data
		logger.Warn("initial_load_id_missing_from_index", "id", id)
		o.mu.Lock()
		o.needsSync = true
		o.mu.Unlock()
		return nil
	}

	raw, err := o.store.Fetch(ctx, token, convPath(id))
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			logger.Warn("initial_load_conversation_missing", "id", id)
			o.mu.Lock()
			o.needsSync = true
			o.mu.Unlock()
			return nil
		}
		return err
	}

	localMsgs := o.local.Messages()
	var remoteMsgs []models.Message
	doc, derr := models.DecodeConversationDoc(raw)
	if derr != nil {
		// corrupt remote copy: local is the fresher intact side, push it
		logger.Error("initial_load_malformed_remote", "id", id, "error", derr)
		metrics.MergeFallbacks.Inc()
		o.mu.Lock()
		o.needsSync = true
		o.mu.Unlock()
		return nil
	}
	remoteMsgs = doc.Conversation

	merged, stats := merge.Merge(localMsgs, remoteMsgs)
	o.recordMergeStats(stats)
	if err := o.local.SetMessages(merged); err != nil {
		return fmt.Errorf("persist merged conversation: %w", err)
	}
	if entry.Name != "" {
		if err := o.local.SetTitle(entry.Name); err != nil {
			return err
		}
	}

	// the remote side already holds exactly this content only when the
	// merge changed nothing relative to it
	mergedBytes, _ := o.local.Snapshot()
	remoteBytes := mustMarshal(remoteMsgs)
	o.mu.Lock()
	if bytes.Equal(mergedBytes, remoteBytes) {
		o.lastSynced = mergedBytes
	} else {
		o.needsSync = true
	}
	o.mu.Unlock()
	logger.Info("initial_load_done", "id", id,
		"messages", len(merged), "follow_up", !bytes.Equal(mergedBytes, remoteBytes))
	return nil
}

func (o *Orchestrator) recordMergeStats(stats merge.Stats) {
	metrics.Merges.Inc()
	metrics.ConflictsResolved.Add(float64(stats.ConflictsResolved))
	metrics.DroppedUntimestamped.Add(float64(stats.DroppedUntimestamped))
	if stats.Fallback {
		metrics.MergeFallbacks.Inc()
	}
	if stats.DroppedUntimestamped > 0 {
		logger.Warn("merge_untimestamped_dropped", "count", stats.DroppedUntimestamped)
	}
}

// Sync pushes the local conversation to the remote store. Explicit and
// caller-triggered: overlapping calls coalesce into the in-flight upload
// and unchanged content short-circuits without a round-trip. Remote
// failure never rolls local state back.
func (o *Orchestrator) Sync(ctx context.Context) error {
	o.mu.Lock()
	if o.inFlight || o.state == Loading {
		o.mu.Unlock()
		logger.Debug("sync_coalesced")
		return nil
	}
	snap, err := o.local.Snapshot()
	if err != nil {
		o.mu.Unlock()
		return fmt.Errorf("snapshot conversation: %w", err)
	}
	if o.lastSynced != nil && bytes.Equal(snap, o.lastSynced) {
		o.mu.Unlock()
		logger.Debug("sync_unchanged_skip")
		return nil
	}
	if o.local.Empty() && o.local.ActiveID() == "" {
		// an id is minted lazily on the first sync that has content
		o.mu.Unlock()
		return nil
	}
	if o.limiter != nil && !o.limiter.Allow() {
		o.mu.Unlock()
		logger.Debug("sync_throttled")
		return nil
	}
	o.inFlight = true
	prevState := o.state
	o.state = Syncing
	o.mu.Unlock()

	err = o.syncOnce(ctx, snap)

	o.mu.Lock()
	o.inFlight = false
	switch {
	case err == nil:
		o.state = Synced
		o.needsSync = false
		o.lastErr = nil
		metrics.SyncAttempts.WithLabelValues("ok").Inc()
	case errors.Is(err, auth.ErrNoToken) || errors.Is(err, remote.ErrUnauthorized):
		o.state = prevState
		o.available = false
		metrics.SyncAttempts.WithLabelValues("deferred").Inc()
		logger.Debug("sync_deferred_no_auth")
		err = nil
	default:
		o.state = Idle
		o.lastErr = err
		metrics.SyncAttempts.WithLabelValues("error").Inc()
		recordRemoteError(err)
	}
	o.mu.Unlock()
	return err
}

func (o *Orchestrator) syncOnce(ctx context.Context, snap []byte) error {
	token, err := o.tokens.GetAccessToken()
	if err != nil {
		return err
	}

	o.mu.Lock()
	mintNew := o.resetPending
	o.mu.Unlock()

	id := o.local.ActiveID()
	if id == "" || mintNew {
		id = uuid.NewString()
		logger.Info("conversation_id_minted", "id", id, "reset", mintNew)
	}

	doc := o.local.Doc()
	doc.ID = id
	now := timeutil.NowMs()
	doc.Metadata.LastSyncedAt = now
	if doc.Metadata.CreatedAt == 0 {
		doc.Metadata.CreatedAt = firstTimestamp(doc.Conversation, now)
	}
	body, err := doc.Encode()
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}

	// conversation upload happens-before the index update, so a reader
	// never sees an index entry pointing at unwritten content
	if err := o.store.Put(ctx, token, convPath(id), body); err != nil {
		return fmt.Errorf("upload conversation: %w", err)
	}
	metrics.UploadBytes.Add(float64(len(body)))

	idx, err := o.fetchIndex(ctx, token)
	if err != nil {
		if !errors.Is(err, remote.ErrNotFound) {
			return err
		}
		idx = models.NewIndex()
	}
	o.upsertIndexEntry(idx, id, len(body))
	if err := o.putIndex(ctx, token, idx); err != nil {
		return err
	}

	if err := o.local.SetActiveID(id); err != nil {
		return err
	}
	o.mu.Lock()
	o.lastSynced = snap
	if mintNew {
		o.resetPending = false
	}
	o.mu.Unlock()
	logger.Info("sync_done", "id", id, "bytes", len(body))
	return nil
}

// upsertIndexEntry refreshes the listing for id. updatedAt is derived
// from the conversation content, never from the clock, so device clock
// skew cannot corrupt recency ordering.
func (o *Orchestrator) upsertIndexEntry(idx *models.Index, id string, size int) {
	entry := idx.Find(id)
	name := o.local.Title()
	if name == "" {
		name = defaultTitle
	}
	updated := models.ContentUpdatedAt(o.local.Messages())
	if entry == nil {
		idx.Upsert(models.IndexEntry{
			ID:        id,
			Name:      name,
			AutoTitle: true,
			CreatedAt: timeutil.NowMs(),
			UpdatedAt: updated,
			Size:      size,
		})
		return
	}
	e := *entry
	e.Name = name
	e.UpdatedAt = updated
	e.Size = size
	idx.Upsert(e)
}

// SwitchConversation saves the active conversation best-effort, then
// replaces local state wholesale with the fetched target. No merge:
// switching identity is a context change, not a divergence.
func (o *Orchestrator) SwitchConversation(ctx context.Context, id string) error {
	if id == o.local.ActiveID() {
		return nil
	}
	if err := o.Sync(ctx); err != nil {
		// the switch proceeds anyway; the old conversation keeps its
		// remote copy from the last successful sync
		logger.Warn("switch_save_failed", "error", err)
	}

	token, err := o.tokens.GetAccessToken()
	if err != nil {
		return err
	}
	raw, err := o.store.Fetch(ctx, token, convPath(id))
	if err != nil {
		o.setErr(err)
		return fmt.Errorf("fetch conversation %s: %w", id, err)
	}
	doc, err := models.DecodeConversationDoc(raw)
	if err != nil {
		o.setErr(err)
		return fmt.Errorf("decode conversation %s: %w", id, err)
	}
	doc.ID = id

	title := defaultTitle
	if idx, ierr := o.fetchIndex(ctx, token); ierr == nil {
		if e := idx.Find(id); e != nil {
			title = e.Name
		}
	}
	if err := o.local.ReplaceFromDoc(doc, title); err != nil {
		return err
	}
	snap, _ := o.local.Snapshot()
	o.mu.Lock()
	o.lastSynced = snap
	o.needsSync = false
	o.resetPending = false
	o.state = Synced
	o.mu.Unlock()
	return nil
}

// CreateConversation saves the current conversation best-effort, then
// starts an empty one under a fresh id and registers it in the index.
func (o *Orchestrator) CreateConversation(ctx context.Context, name string) (string, error) {
	if err := o.Sync(ctx); err != nil {
		logger.Warn("create_save_failed", "error", err)
	}
	token, err := o.tokens.GetAccessToken()
	if err != nil {
		return "", err
	}
	if name == "" {
		name = defaultTitle
	}

	id := uuid.NewString()
	doc := &models.ConversationDoc{
		Version:      models.DocVersion,
		Conversation: []models.Message{},
		ID:           id,
		Metadata:     models.DocMetadata{CreatedAt: timeutil.NowMs()},
	}
	body, err := doc.Encode()
	if err != nil {
		return "", err
	}
	if err := o.store.Put(ctx, token, convPath(id), body); err != nil {
		o.setErr(err)
		return "", fmt.Errorf("upload new conversation: %w", err)
	}

	idx, err := o.fetchIndex(ctx, token)
	if err != nil {
		if !errors.Is(err, remote.ErrNotFound) {
			o.setErr(err)
			return "", err
		}
		idx = models.NewIndex()
	}
	idx.Upsert(models.IndexEntry{
		ID:        id,
		Name:      name,
		AutoTitle: true,
		CreatedAt: timeutil.NowMs(),
		Size:      len(body),
	})
	if err := o.putIndex(ctx, token, idx); err != nil {
		return "", err
	}

	if err := o.local.ClearActive(); err != nil {
		return "", err
	}
	if err := o.local.SetActiveID(id); err != nil {
		return "", err
	}
	if err := o.local.SetTitle(name); err != nil {
		return "", err
	}
	snap, _ := o.local.Snapshot()
	o.mu.Lock()
	o.lastSynced = snap
	o.resetPending = false
	o.mu.Unlock()
	logger.Info("conversation_created", "id", id, "name", name)
	return id, nil
}

// DeleteConversation removes a conversation document and its index
// entry. Deleting the active conversation switches to the most recently
// updated remaining one, or clears local state when none remain.
func (o *Orchestrator) DeleteConversation(ctx context.Context, id string) error {
	token, err := o.tokens.GetAccessToken()
	if err != nil {
		return err
	}
	if err := o.store.Delete(ctx, token, convPath(id)); err != nil && !errors.Is(err, remote.ErrNotFound) {
		o.setErr(err)
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}

	idx, err := o.fetchIndex(ctx, token)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			idx = models.NewIndex()
		} else {
			o.setErr(err)
			return err
		}
	}
	idx.Remove(id)
	if err := o.putIndex(ctx, token, idx); err != nil {
		return err
	}
	logger.Info("conversation_deleted", "id", id)

	if id != o.local.ActiveID() {
		return nil
	}
	// the deleted content must not be re-uploaded by the switch's
	// best-effort save; mark it as already synced
	if snap, serr := o.local.Snapshot(); serr == nil {
		o.mu.Lock()
		o.lastSynced = snap
		o.mu.Unlock()
	}
	if next := idx.MostRecent(id); next != nil {
		return o.SwitchConversation(ctx, next.ID)
	}
	if err := o.local.ClearActive(); err != nil {
		return err
	}
	snap, _ := o.local.Snapshot()
	o.mu.Lock()
	o.lastSynced = snap
	o.mu.Unlock()
	return nil
}

// RenameConversation sets a user-chosen name and clears autoTitle so
// title generation stops overwriting it.
func (o *Orchestrator) RenameConversation(ctx context.Context, id, name string) error {
	token, err := o.tokens.GetAccessToken()
	if err != nil {
		return err
	}
	idx, err := o.fetchIndex(ctx, token)
	if err != nil {
		o.setErr(err)
		return err
	}
	entry := idx.Find(id)
	if entry == nil {
		return fmt.Errorf("conversation %s: %w", id, remote.ErrNotFound)
	}
	e := *entry
	e.Name = name
	e.AutoTitle = false
	idx.Upsert(e)
	if err := o.putIndex(ctx, token, idx); err != nil {
		return err
	}
	if id == o.local.ActiveID() {
		if err := o.local.SetTitle(name); err != nil {
			return err
		}
	}
	logger.Info("conversation_renamed", "id", id)
	return nil
}

// GenerateTitle asks the LLM collaborator for a title and applies it,
// but only while the index entry still carries autoTitle. A rename turns
// this into a permanent no-op for that conversation.
func (o *Orchestrator) GenerateTitle(ctx context.Context) error {
	id := o.local.ActiveID()
	if id == "" || o.local.Empty() {
		return nil
	}
	token, err := o.tokens.GetAccessToken()
	if err != nil {
		return err
	}
	idx, err := o.fetchIndex(ctx, token)
	if err != nil {
		o.setErr(err)
		return err
	}
	entry := idx.Find(id)
	if entry == nil || !entry.AutoTitle {
		return nil
	}

	title, err := o.gen.Title(ctx, o.local.Visible())
	if err != nil || title == "" {
		logger.Warn("title_generation_failed", "id", id, "error", err)
		return nil
	}
	e := *entry
	e.Name = title
	idx.Upsert(e)
	if err := o.putIndex(ctx, token, idx); err != nil {
		return err
	}
	if err := o.local.SetTitle(title); err != nil {
		return err
	}
	logger.Info("title_generated", "id", id)
	return nil
}

// Suggest asks the LLM collaborator for a recap of the active
// conversation and follow-up questions. The summary is recorded on the
// document and rides along on the next upload; question generation
// failing after a good summary degrades to an empty question list.
func (o *Orchestrator) Suggest(ctx context.Context) (string, []string, error) {
	if o.local.Empty() {
		return "", nil, nil
	}
	visible := o.local.Visible()
	summary, err := o.gen.Summary(ctx, visible)
	if err != nil {
		return "", nil, err
	}
	if summary != "" {
		entry, merr := json.Marshal(struct {
			Summary   string `json:"summary"`
			CreatedAt int64  `json:"createdAt"`
		}{summary, timeutil.NowMs()})
		if merr == nil {
			o.local.AddSummary(entry)
		}
	}
	questions, err := o.gen.NextQuestions(ctx, visible)
	if err != nil {
		logger.Warn("next_questions_failed", "error", err)
		questions = nil
	}
	logger.Info("suggestions_generated", "questions", len(questions))
	return summary, questions, nil
}

// ResetCurrent abandons the active conversation: the next Sync mints a
// brand-new id even if a stale binding lingers. A non-empty conversation
// is saved to the remote store in the background first.
func (o *Orchestrator) ResetCurrent(ctx context.Context) error {
	if !o.local.Empty() && o.local.ActiveID() != "" {
		o.saveInBackground(ctx, o.local.ActiveID())
	}
	if err := o.local.ClearActive(); err != nil {
		return err
	}
	snap, _ := o.local.Snapshot()
	o.mu.Lock()
	o.resetPending = true
	o.lastSynced = snap
	o.needsSync = false
	o.mu.Unlock()
	logger.Info("conversation_reset")
	return nil
}

// saveInBackground uploads a final copy of an abandoned conversation
// without blocking the reset. Failures are logged only; the data still
// exists locally until the reset clears it, and remotely from the last
// completed sync.
func (o *Orchestrator) saveInBackground(ctx context.Context, id string) {
	doc := o.local.Doc()
	doc.ID = id
	title := o.local.Title()
	go func() {
		token, err := o.tokens.GetAccessToken()
		if err != nil {
			return
		}
		body, err := doc.Encode()
		if err != nil {
			logger.Warn("background_save_encode_failed", "id", id, "error", err)
			return
		}
		if err := o.store.Put(ctx, token, convPath(id), body); err != nil {
			logger.Warn("background_save_failed", "id", id, "error", err)
			return
		}
		idx, err := o.fetchIndex(ctx, token)
		if err != nil {
			return
		}
		if entry := idx.Find(id); entry != nil {
			e := *entry
			e.UpdatedAt = models.ContentUpdatedAt(doc.Conversation)
			e.Size = len(body)
			if title != "" {
				e.Name = title
			}
			idx.Upsert(e)
			if err := o.putIndex(ctx, token, idx); err != nil {
				logger.Warn("background_save_index_failed", "id", id, "error", err)
			}
		}
		logger.Info("background_save_done", "id", id)
	}()
}

// ImportConversation replaces the local working set with an uploaded
// document (legacy or versioned shape, already normalized by decode) and
// severs the old remote binding so the next sync mints a fresh id.
func (o *Orchestrator) ImportConversation(doc *models.ConversationDoc, title string) error {
	if err := o.local.ClearActive(); err != nil {
		return err
	}
	if err := o.local.SetMessages(doc.Conversation); err != nil {
		return err
	}
	if title != "" {
		if err := o.local.SetTitle(title); err != nil {
			return err
		}
	}
	o.mu.Lock()
	o.resetPending = true
	o.lastSynced = nil
	o.needsSync = false
	o.mu.Unlock()
	logger.Info("conversation_imported", "messages", len(doc.Conversation))
	return nil
}

// ListConversations returns the remote index entries sorted by recency.
func (o *Orchestrator) ListConversations(ctx context.Context) ([]models.IndexEntry, error) {
	token, err := o.tokens.GetAccessToken()
	if err != nil {
		return nil, err
	}
	idx, err := o.fetchIndex(ctx, token)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return []models.IndexEntry{}, nil
		}
		return nil, err
	}
	idx.SortByRecency()
	return idx.Conversations, nil
}

func (o *Orchestrator) fetchIndex(ctx context.Context, token string) (*models.Index, error) {
	raw, err := o.store.Fetch(ctx, token, indexPath)
	if err != nil {
		return nil, err
	}
	idx, err := models.DecodeIndex(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: index: %v", remote.ErrMalformed, err)
	}
	return idx, nil
}

func (o *Orchestrator) putIndex(ctx context.Context, token string, idx *models.Index) error {
	body, err := idx.Encode()
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := o.store.Put(ctx, token, indexPath, body); err != nil {
		o.setErr(err)
		return fmt.Errorf("upload index: %w", err)
	}
	return nil
}

func firstTimestamp(msgs []models.Message, fallback int64) int64 {
	for _, m := range msgs {
		if m.Timestamp > 0 {
			return m.Timestamp
		}
	}
	return fallback
}

func mustMarshal(msgs []models.Message) []byte {
	b, err := json.Marshal(msgs)
	if err != nil {
		return nil
	}
	return b
}

func recordRemoteError(err error) {
	switch {
	case errors.Is(err, remote.ErrUnauthorized):
		metrics.RemoteErrors.WithLabelValues("unauthorized").Inc()
	case errors.Is(err, remote.ErrNotFound):
		metrics.RemoteErrors.WithLabelValues("not_found").Inc()
	case errors.Is(err, remote.ErrConflict):
		metrics.RemoteErrors.WithLabelValues("conflict").Inc()
	case errors.Is(err, remote.ErrMalformed):
		metrics.RemoteErrors.WithLabelValues("malformed").Inc()
	default:
		metrics.RemoteErrors.WithLabelValues("transient").Inc()
	}
}
