package models

// Role is the author role of a message.
type Role string

const (
	RoleUser     Role = "user"
	RoleModel    Role = "model"
	RoleFunction Role = "function"
)

// Part is one content unit inside a message. Exactly one of the content
// variants (Text, ExecutableCode, CodeExecutionResult, InlineData,
// FunctionResponse) is populated. UUID may be absent on legacy data; the
// merge engine back-fills it so later merges can match on the stronger key.
type Part struct {
	UUID string `json:"uuid,omitempty"`

	Text                string               `json:"text,omitempty"`
	ExecutableCode      *ExecutableCode      `json:"executableCode,omitempty"`
	CodeExecutionResult *CodeExecutionResult `json:"codeExecutionResult,omitempty"`
	InlineData          *InlineData          `json:"inlineData,omitempty"`
	FunctionResponse    *FunctionResponse    `json:"functionResponse,omitempty"`

	Thought bool `json:"thought,omitempty"`
	Hide    bool `json:"hide,omitempty"`

	// Timestamp is assigned once at creation (epoch ms) and never changes.
	Timestamp  int64 `json:"timestamp,omitempty"`
	LastUpdate int64 `json:"lastUpdate,omitempty"`
	Deleted    bool  `json:"deleted,omitempty"`
}

// ExecutableCode is model-emitted code intended for execution.
type ExecutableCode struct {
	Language string `json:"language,omitempty"`
	Code     string `json:"code"`
}

// CodeExecutionResult carries the outcome of executing a code part.
type CodeExecutionResult struct {
	Outcome string `json:"outcome,omitempty"`
	Output  string `json:"output,omitempty"`
}

// InlineData is base64-encoded binary content (images, audio).
type InlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data"`
}

// FunctionResponse is the result of a tool call fed back to the model.
type FunctionResponse struct {
	Name     string `json:"name"`
	Response any    `json:"response,omitempty"`
}

// Kind returns a coarse type tag for the populated content variant. It is
// one ingredient of the content fingerprint used to match legacy parts
// that lack uuids.
func (p *Part) Kind() string {
	switch {
	case p.ExecutableCode != nil:
		return "executableCode"
	case p.CodeExecutionResult != nil:
		return "codeExecutionResult"
	case p.InlineData != nil:
		return "inlineData"
	case p.FunctionResponse != nil:
		return "functionResponse"
	default:
		return "text"
	}
}

// Content returns the primary textual content of the part.
func (p *Part) Content() string {
	switch {
	case p.ExecutableCode != nil:
		return p.ExecutableCode.Code
	case p.CodeExecutionResult != nil:
		return p.CodeExecutionResult.Output
	case p.InlineData != nil:
		return p.InlineData.Data
	case p.FunctionResponse != nil:
		return p.FunctionResponse.Name
	default:
		return p.Text
	}
}

// EffectiveUpdate returns the recency value used for last-writer-wins:
// lastUpdate when present, otherwise the creation timestamp.
func (p *Part) EffectiveUpdate() int64 {
	if p.LastUpdate > 0 {
		return p.LastUpdate
	}
	return p.Timestamp
}

// Message is one entry in a conversation. Timestamp is the primary join
// key across replicas: assigned once at creation, never mutated. Deletion
// is tombstoning; entries are never physically removed by edit paths so a
// later merge can reconcile the delete against a replica that has not
// seen it yet.
type Message struct {
	Role       Role   `json:"role"`
	Parts      []Part `json:"parts"`
	Timestamp  int64  `json:"timestamp,omitempty"`
	LastUpdate int64  `json:"lastUpdate,omitempty"`
	Deleted    bool   `json:"deleted,omitempty"`
}

// EffectiveUpdate returns lastUpdate, falling back to the creation
// timestamp when unset.
func (m *Message) EffectiveUpdate() int64 {
	if m.LastUpdate > 0 {
		return m.LastUpdate
	}
	return m.Timestamp
}

// ContentUpdatedAt returns the max of all timestamp/lastUpdate values
// across the non-deleted messages and parts in msgs. Index entries derive
// updatedAt from this, never from the wall clock of a sync, so clock skew
// cannot corrupt recency ordering.
func ContentUpdatedAt(msgs []Message) int64 {
	var max int64
	for i := range msgs {
		m := &msgs[i]
		if m.Deleted {
			continue
		}
		if m.Timestamp > max {
			max = m.Timestamp
		}
		if m.LastUpdate > max {
			max = m.LastUpdate
		}
		for j := range m.Parts {
			p := &m.Parts[j]
			if p.Deleted {
				continue
			}
			if p.Timestamp > max {
				max = p.Timestamp
			}
			if p.LastUpdate > max {
				max = p.LastUpdate
			}
		}
	}
	return max
}
