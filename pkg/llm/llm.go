// Package llm derives conversation metadata (titles, summaries,
// follow-up questions) from message content. Generation is best-effort:
// sync never blocks on it and every caller must tolerate an error by
// keeping the old value.
package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"chatsync/pkg/logger"
	"chatsync/pkg/models"
)

// Generator produces display metadata for a conversation.
type Generator interface {
	// Title returns a short human title for the conversation.
	Title(ctx context.Context, msgs []models.Message) (string, error)
	// Summary returns a one-paragraph recap.
	Summary(ctx context.Context, msgs []models.Message) (string, error)
	// NextQuestions returns a few follow-up questions the user could ask.
	NextQuestions(ctx context.Context, msgs []models.Message) ([]string, error)
}

// OpenAI implements Generator over the chat completions API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI builds a generator. model defaults to gpt-4o-mini.
func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}
}

const titlePrompt = "Write a title of at most six words for this conversation. " +
	"Reply with the title only, no quotes."

const summaryPrompt = "Summarize this conversation in one short paragraph. " +
	"Reply with the summary only."

func (g *OpenAI) Title(ctx context.Context, msgs []models.Message) (string, error) {
	out, err := g.complete(ctx, titlePrompt, msgs, 24)
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(out), `"`), nil
}

func (g *OpenAI) Summary(ctx context.Context, msgs []models.Message) (string, error) {
	return g.complete(ctx, summaryPrompt, msgs, 256)
}

const nextQuestionsPrompt = "Suggest three short follow-up questions the user " +
	"could ask next in this conversation. Reply with one question per line, " +
	"no numbering or bullets."

func (g *OpenAI) NextQuestions(ctx context.Context, msgs []models.Message) ([]string, error) {
	out, err := g.complete(ctx, nextQuestionsPrompt, msgs, 128)
	if err != nil {
		return nil, err
	}
	var questions []string
	for _, line := range strings.Split(out, "\n") {
		q := strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if q == "" {
			continue
		}
		questions = append(questions, q)
		if len(questions) == 3 {
			break
		}
	}
	return questions, nil
}

func (g *OpenAI) complete(ctx context.Context, instruction string, msgs []models.Message, maxTokens int) (string, error) {
	transcript := Transcript(msgs, 4000)
	if transcript == "" {
		return "", fmt.Errorf("llm: empty conversation")
	}
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     g.model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instruction},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
	})
	if err != nil {
		logger.Warn("llm_completion_failed", "error", err)
		return "", fmt.Errorf("llm completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Transcript flattens visible message text into a prompt body, capped at
// maxLen bytes. Thought parts and tombstones are skipped.
func Transcript(msgs []models.Message, maxLen int) string {
	var b strings.Builder
	for _, m := range msgs {
		if m.Deleted {
			continue
		}
		for _, p := range m.Parts {
			if p.Deleted || p.Thought || p.Text == "" {
				continue
			}
			line := fmt.Sprintf("%s: %s\n", m.Role, p.Text)
			if b.Len()+len(line) > maxLen {
				return b.String()
			}
			b.WriteString(line)
		}
	}
	return b.String()
}

// Noop is the generator used when no API key is configured.
type Noop struct{}

func (Noop) Title(context.Context, []models.Message) (string, error) {
	return "", fmt.Errorf("llm: not configured")
}

func (Noop) Summary(context.Context, []models.Message) (string, error) {
	return "", fmt.Errorf("llm: not configured")
}

func (Noop) NextQuestions(context.Context, []models.Message) ([]string, error) {
	return nil, fmt.Errorf("llm: not configured")
}
