// Package merge reconciles two divergent copies of a conversation log.
//
// The engine is pure: no I/O, no clock, and divergence is never an error.
// Conflict resolution is last-writer-wins on lastUpdate (falling back to
// the creation timestamp), applied uniformly at message and part
// granularity. This deliberately trades the guarantees of a CRDT for
// simplicity: a concurrent edit whose lastUpdate is earlier than the
// conflicting edit is dropped. The Stats return value makes that loss
// observable to callers.
package merge

import (
	"sort"

	"github.com/google/uuid"

	"chatsync/pkg/models"
)

// Stats reports what a merge did, so callers can log and meter without
// the engine doing I/O itself.
type Stats struct {
	// DroppedUntimestamped counts messages excluded because they carry no
	// creation timestamp and therefore cannot be matched across replicas.
	DroppedUntimestamped int
	// ConflictsResolved counts matched pairs where both sides had diverged
	// and one side's content was discarded by last-writer-wins.
	ConflictsResolved int
	// Fallback is true when one input was structurally invalid and the
	// engine returned the fresher side wholesale instead of merging.
	Fallback bool
}

// Merge reconciles local and remote into one working conversation.
//
// The result retains surviving tombstones so that a future merge against
// a replica that has not seen a deletion can still honor it; use Visible
// to obtain the point-in-time snapshot shown to users.
func Merge(local, remote []models.Message) ([]models.Message, Stats) {
	var st Stats

	if malformed(local) || malformed(remote) {
		st.Fallback = true
		if models.ContentUpdatedAt(local) >= models.ContentUpdatedAt(remote) {
			return cloneMessages(local), st
		}
		return cloneMessages(remote), st
	}

	li, lorder := indexByTimestamp(local, &st)
	ri, _ := indexByTimestamp(remote, &st)

	// Union of timestamps defines the merged order: ascending, with
	// local-only timestamps contributing in their local order.
	seen := make(map[int64]struct{}, len(li)+len(ri))
	union := make([]int64, 0, len(li)+len(ri))
	for _, ts := range lorder {
		union = append(union, ts)
		seen[ts] = struct{}{}
	}
	for ts := range ri {
		if _, ok := seen[ts]; !ok {
			union = append(union, ts)
		}
	}
	sort.Slice(union, func(i, j int) bool { return union[i] < union[j] })

	out := make([]models.Message, 0, len(union))
	for _, ts := range union {
		lm, lok := li[ts]
		rm, rok := ri[ts]
		switch {
		case lok && !rok:
			out = append(out, cloneMessage(lm))
		case !lok && rok:
			out = append(out, cloneMessage(rm))
		default:
			out = append(out, mergeMessage(lm, rm, &st))
		}
	}
	return out, st
}

// Visible filters a working conversation down to the snapshot users see:
// tombstoned messages and parts are removed, order is preserved.
func Visible(msgs []models.Message) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for i := range msgs {
		if msgs[i].Deleted {
			continue
		}
		m := cloneMessage(&msgs[i])
		parts := m.Parts[:0]
		for j := range m.Parts {
			if m.Parts[j].Deleted {
				continue
			}
			parts = append(parts, m.Parts[j])
		}
		m.Parts = parts
		out = append(out, m)
	}
	return out
}

// mergeMessage reconciles two copies of the message at one timestamp.
func mergeMessage(lm, rm *models.Message, st *Stats) models.Message {
	// Tombstone rules: a one-sided delete loses to a live copy (undelete
	// is unsupported; the live side simply never saw the delete yet). Two
	// tombstones keep the later one.
	switch {
	case lm.Deleted && !rm.Deleted:
		return cloneMessage(rm)
	case !lm.Deleted && rm.Deleted:
		return cloneMessage(lm)
	case lm.Deleted && rm.Deleted:
		if rm.EffectiveUpdate() > lm.EffectiveUpdate() {
			return cloneMessage(rm)
		}
		return cloneMessage(lm)
	}

	// Both live: the side with the later lastUpdate supplies the base
	// fields, parts merge recursively, lastUpdate becomes the max.
	base, other := lm, rm
	if rm.EffectiveUpdate() > lm.EffectiveUpdate() {
		base, other = rm, lm
	}
	out := cloneMessage(base)
	out.Parts = mergeParts(base.Parts, other.Parts, st)
	if other.LastUpdate > out.LastUpdate {
		out.LastUpdate = other.LastUpdate
	}
	return out
}

// mergeParts reconciles the part lists of one matched message pair.
// Matching is by uuid first, then by content fingerprint for legacy parts
// (or parts whose uuids were generated independently on two devices).
// Every surviving part leaves with a uuid so the next merge can use the
// stronger key.
func mergeParts(base, other []models.Part, st *Stats) []models.Part {
	type slot struct {
		part    models.Part
		matched bool
	}
	out := make([]slot, len(base))
	for i := range base {
		out[i] = slot{part: clonePart(&base[i])}
	}

	byUUID := make(map[string]int, len(base))
	byFP := make(map[string]int, len(base))
	for i := range out {
		if u := out[i].part.UUID; u != "" {
			byUUID[u] = i
		}
		fp := Fingerprint(&out[i].part)
		if _, dup := byFP[fp]; !dup {
			byFP[fp] = i
		}
	}

	for i := range other {
		op := &other[i]
		idx := -1
		if op.UUID != "" {
			if j, ok := byUUID[op.UUID]; ok {
				idx = j
			}
		}
		if idx < 0 {
			if j, ok := byFP[Fingerprint(op)]; ok && !out[j].matched {
				idx = j
			}
		}
		if idx < 0 {
			out = append(out, slot{part: clonePart(op), matched: true})
			continue
		}
		out[idx].matched = true
		out[idx].part = resolvePart(&out[idx].part, op, st)
	}

	parts := make([]models.Part, 0, len(out))
	for i := range out {
		p := out[i].part
		if p.UUID == "" {
			p.UUID = uuid.NewString()
		}
		parts = append(parts, p)
	}
	sort.SliceStable(parts, func(i, j int) bool { return parts[i].Timestamp < parts[j].Timestamp })
	return parts
}

// resolvePart picks the winner of a matched part pair and settles its uuid.
func resolvePart(a, b *models.Part, st *Stats) models.Part {
	var win, lose *models.Part
	switch {
	case a.Deleted && !b.Deleted:
		win, lose = b, a
	case !a.Deleted && b.Deleted:
		win, lose = a, b
	case b.EffectiveUpdate() > a.EffectiveUpdate():
		win, lose = b, a
	default:
		win, lose = a, b
	}
	if !a.Deleted && !b.Deleted && differentContent(a, b) {
		st.ConflictsResolved++
	}
	out := clonePart(win)
	if out.UUID == "" {
		out.UUID = lose.UUID
	}
	if out.LastUpdate < lose.LastUpdate {
		out.LastUpdate = lose.LastUpdate
	}
	return out
}

func differentContent(a, b *models.Part) bool {
	return a.Kind() != b.Kind() || a.Content() != b.Content()
}

// indexByTimestamp maps messages by their creation timestamp, dropping
// untimestamped entries (they cannot participate in matching) and keeping
// input order for deterministic union ordering.
func indexByTimestamp(msgs []models.Message, st *Stats) (map[int64]*models.Message, []int64) {
	idx := make(map[int64]*models.Message, len(msgs))
	order := make([]int64, 0, len(msgs))
	for i := range msgs {
		m := &msgs[i]
		if m.Timestamp == 0 {
			st.DroppedUntimestamped++
			continue
		}
		if _, dup := idx[m.Timestamp]; dup {
			// Same-replica timestamp collision: keep the later copy.
			if m.EffectiveUpdate() >= idx[m.Timestamp].EffectiveUpdate() {
				idx[m.Timestamp] = m
			}
			continue
		}
		idx[m.Timestamp] = m
		order = append(order, m.Timestamp)
	}
	return idx, order
}

// malformed reports whether a conversation is structurally unusable for
// per-message merging: an entry that decoded to nothing at all (no role,
// no parts, no timestamp) signals corrupt input rather than divergence.
func malformed(msgs []models.Message) bool {
	for i := range msgs {
		m := &msgs[i]
		if m.Role == "" && len(m.Parts) == 0 && m.Timestamp == 0 && !m.Deleted {
			return true
		}
	}
	return false
}

func cloneMessages(msgs []models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	for i := range msgs {
		out[i] = cloneMessage(&msgs[i])
	}
	return out
}

func cloneMessage(m *models.Message) models.Message {
	cp := *m
	cp.Parts = make([]models.Part, len(m.Parts))
	for i := range m.Parts {
		cp.Parts[i] = clonePart(&m.Parts[i])
	}
	return cp
}

func clonePart(p *models.Part) models.Part {
	cp := *p
	if p.ExecutableCode != nil {
		v := *p.ExecutableCode
		cp.ExecutableCode = &v
	}
	if p.CodeExecutionResult != nil {
		v := *p.CodeExecutionResult
		cp.CodeExecutionResult = &v
	}
	if p.InlineData != nil {
		v := *p.InlineData
		cp.InlineData = &v
	}
	if p.FunctionResponse != nil {
		v := *p.FunctionResponse
		cp.FunctionResponse = &v
	}
	return cp
}
