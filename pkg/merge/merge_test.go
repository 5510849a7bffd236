package merge

import (
	"encoding/json"
	"reflect"
	"sort"
	"testing"

	"chatsync/pkg/models"
)

func msg(ts, lu int64, deleted bool, parts ...models.Part) models.Message {
	return models.Message{Role: models.RoleUser, Parts: parts, Timestamp: ts, LastUpdate: lu, Deleted: deleted}
}

func textPart(uuid string, ts int64, text string) models.Part {
	return models.Part{UUID: uuid, Text: text, Timestamp: ts}
}

func timestamps(msgs []models.Message) []int64 {
	out := make([]int64, 0, len(msgs))
	for i := range msgs {
		out = append(out, msgs[i].Timestamp)
	}
	return out
}

// merge(X, X) must return X (uuid back-fill is stable once uuids exist).
func TestMergeIdempotent(t *testing.T) {
	x := []models.Message{
		msg(100, 0, false, textPart("a", 100, "hello")),
		msg(200, 250, false, textPart("b", 200, "edited")),
		msg(300, 310, true, textPart("c", 300, "gone")),
	}
	got, st := Merge(x, x)
	if st.Fallback {
		t.Fatalf("unexpected fallback")
	}
	if !reflect.DeepEqual(got, x) {
		t.Fatalf("merge(X,X) != X:\n got %+v\nwant %+v", got, x)
	}
	// repeated merge is stable too
	again, _ := Merge(got, got)
	if !reflect.DeepEqual(again, got) {
		t.Fatalf("merge not stable across repeated runs")
	}
}

// merge(A,B) and merge(B,A) must keep the same set of surviving messages.
func TestMergeCommutativeUpToTieBreak(t *testing.T) {
	a := []models.Message{
		msg(100, 0, false, textPart("p1", 100, "one")),
		msg(200, 250, true, textPart("p2", 200, "two")),
	}
	b := []models.Message{
		msg(100, 150, false, textPart("p1", 100, "one refined")),
		msg(300, 0, false, textPart("p3", 300, "three")),
	}
	ab, _ := Merge(a, b)
	ba, _ := Merge(b, a)

	tsAB := timestamps(ab)
	tsBA := timestamps(ba)
	sort.Slice(tsAB, func(i, j int) bool { return tsAB[i] < tsAB[j] })
	sort.Slice(tsBA, func(i, j int) bool { return tsBA[i] < tsBA[j] })
	if !reflect.DeepEqual(tsAB, tsBA) {
		t.Fatalf("surviving timestamp sets differ: %v vs %v", tsAB, tsBA)
	}
	// content with a strictly later lastUpdate wins regardless of order
	for _, m := range [][]models.Message{ab, ba} {
		for i := range m {
			if m[i].Timestamp == 100 && m[i].Parts[0].Text != "one refined" {
				t.Fatalf("later edit lost: %+v", m[i])
			}
		}
	}
}

// Scenario: local has t=100,200; remote has t=100,300.
func TestMergeUnionOrdering(t *testing.T) {
	local := []models.Message{
		msg(100, 0, false, textPart("a", 100, "same")),
		msg(200, 0, false, textPart("b", 200, "local only")),
	}
	remote := []models.Message{
		msg(100, 0, false, textPart("a", 100, "same")),
		msg(300, 0, false, textPart("c", 300, "remote only")),
	}
	got, _ := Merge(local, remote)
	want := []int64{100, 200, 300}
	if !reflect.DeepEqual(timestamps(got), want) {
		t.Fatalf("order mismatch: got %v want %v", timestamps(got), want)
	}
}

// A one-sided delete loses: the replica that still holds the live copy
// never saw the deletion, and undelete is not supported.
func TestMergeTombstoneNonDeletedWins(t *testing.T) {
	local := []models.Message{msg(200, 250, true, textPart("x", 200, "bye"))}
	remote := []models.Message{msg(200, 0, false, textPart("x", 200, "bye"))}
	got, _ := Merge(local, remote)
	if len(got) != 1 || got[0].Deleted {
		t.Fatalf("expected live message to win: %+v", got)
	}
	vis := Visible(got)
	if len(vis) != 1 {
		t.Fatalf("expected message visible, got %d", len(vis))
	}
}

// Both sides deleted: the later tombstone survives in the working set and
// the message is absent from the visible snapshot.
func TestMergeBothDeletedKeepsLaterTombstone(t *testing.T) {
	local := []models.Message{msg(200, 250, true)}
	remote := []models.Message{msg(200, 260, true)}
	got, _ := Merge(local, remote)
	if len(got) != 1 || !got[0].Deleted || got[0].LastUpdate != 260 {
		t.Fatalf("expected remote tombstone retained: %+v", got)
	}
	if vis := Visible(got); len(vis) != 0 {
		t.Fatalf("tombstone leaked into visible output: %+v", vis)
	}
}

// Two parts with identical timestamp/kind/content but different uuid
// provenance must merge into exactly one part, keeping the real uuid.
func TestMergeNoDuplicationUnderUUIDDrift(t *testing.T) {
	local := []models.Message{msg(100, 0, false, models.Part{Text: "Hello", Timestamp: 100})}
	remote := []models.Message{msg(100, 0, false, models.Part{UUID: "abc", Text: "Hello", Timestamp: 100})}
	got, _ := Merge(local, remote)
	if len(got) != 1 {
		t.Fatalf("expected one message, got %d", len(got))
	}
	if len(got[0].Parts) != 1 {
		t.Fatalf("expected one part, got %d: %+v", len(got[0].Parts), got[0].Parts)
	}
	p := got[0].Parts[0]
	if p.Text != "Hello" || p.UUID != "abc" {
		t.Fatalf("wrong surviving part: %+v", p)
	}
}

// Every part in merge output must carry a uuid, generated when absent.
func TestMergeBackfillsPartUUIDs(t *testing.T) {
	local := []models.Message{msg(100, 0, false, models.Part{Text: "legacy", Timestamp: 100})}
	got, _ := Merge(local, nil)
	if got[0].Parts[0].UUID == "" {
		t.Fatalf("part left without uuid")
	}
}

// Part merge keeps the later edit and unions unmatched parts by timestamp.
func TestMergePartsLastWriterWins(t *testing.T) {
	local := []models.Message{msg(100, 120, false,
		models.Part{UUID: "p1", Text: "draft", Timestamp: 100, LastUpdate: 120},
		models.Part{UUID: "p2", Text: "local extra", Timestamp: 110},
	)}
	remote := []models.Message{msg(100, 140, false,
		models.Part{UUID: "p1", Text: "final", Timestamp: 100, LastUpdate: 140},
		models.Part{UUID: "p3", Text: "remote extra", Timestamp: 105},
	)}
	got, st := Merge(local, remote)
	if len(got) != 1 {
		t.Fatalf("expected one message, got %d", len(got))
	}
	m := got[0]
	if m.LastUpdate != 140 {
		t.Fatalf("lastUpdate should be max, got %d", m.LastUpdate)
	}
	if len(m.Parts) != 3 {
		t.Fatalf("expected 3 parts, got %d: %+v", len(m.Parts), m.Parts)
	}
	// ascending by part timestamp
	if m.Parts[0].UUID != "p1" || m.Parts[1].UUID != "p3" || m.Parts[2].UUID != "p2" {
		t.Fatalf("wrong part order: %+v", m.Parts)
	}
	if m.Parts[0].Text != "final" {
		t.Fatalf("stale edit survived: %+v", m.Parts[0])
	}
	if st.ConflictsResolved != 1 {
		t.Fatalf("expected one resolved conflict, got %d", st.ConflictsResolved)
	}
}

// Untimestamped messages cannot be matched and are excluded, counted.
func TestMergeDropsUntimestamped(t *testing.T) {
	local := []models.Message{
		{Role: models.RoleUser, Parts: []models.Part{{Text: "no ts"}}},
		msg(100, 0, false, textPart("a", 100, "ok")),
	}
	got, st := Merge(local, nil)
	if len(got) != 1 || got[0].Timestamp != 100 {
		t.Fatalf("unexpected output: %+v", got)
	}
	if st.DroppedUntimestamped != 1 {
		t.Fatalf("expected 1 dropped, got %d", st.DroppedUntimestamped)
	}
}

// Structurally invalid input falls back to the fresher side wholesale.
func TestMergeMalformedFallback(t *testing.T) {
	var junk []models.Message
	if err := json.Unmarshal([]byte(`[{}]`), &junk); err != nil {
		t.Fatalf("setup: %v", err)
	}
	remote := []models.Message{msg(500, 0, false, textPart("a", 500, "fresh"))}
	got, st := Merge(junk, remote)
	if !st.Fallback {
		t.Fatalf("expected fallback")
	}
	if len(got) != 1 || got[0].Timestamp != 500 {
		t.Fatalf("fallback should keep fresher side: %+v", got)
	}
}

// Content-derived recency ignores tombstoned entries and wall clocks.
func TestContentUpdatedAt(t *testing.T) {
	msgs := []models.Message{
		msg(100, 150, false, models.Part{UUID: "a", Text: "x", Timestamp: 100, LastUpdate: 175}),
		msg(200, 900, true), // deleted: must not contribute
	}
	if got := models.ContentUpdatedAt(msgs); got != 175 {
		t.Fatalf("ContentUpdatedAt = %d, want 175", got)
	}
}
