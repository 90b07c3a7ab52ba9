package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"chipchip/internal/models"

	"github.com/sashabaranov/go-openai"
)

const defaultSystemPrompt = "You are the ChipChip data assistant. Answer questions about orders, products, " +
	"group leaders and customers clearly and concisely."

// OpenAIConfig configures an OpenAI compatible backend
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// Stateless sends only the current question instead of the session history
	Stateless bool
	MaxTokens int
	Timeout   time.Duration
	// Transcripts seeds a session's history the first time it is asked about
	Transcripts Transcripts
}

// Transcripts looks up stored sessions
type Transcripts interface {
	Get(id string) (models.Session, bool)
}

// OpenAI answers questions with a chat completion API. In stateful mode it
// keeps each session's conversation in memory and replays it on every call.
// Sessions it has not seen yet start from their stored transcript.
type OpenAI struct {
	client      *openai.Client
	model       string
	stateless   bool
	maxTokens   int
	transcripts Transcripts

	mu      sync.Mutex
	history map[string][]openai.ChatCompletionMessage
}

var _ Asker = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI backed Asker
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	model := cfg.Model
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}

	return &OpenAI{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		stateless:   cfg.Stateless,
		maxTokens:   maxTokens,
		transcripts: cfg.Transcripts,
		history:     make(map[string][]openai.ChatCompletionMessage),
	}
}

// Ask sends the question, with prior turns of the session unless stateless
func (o *OpenAI) Ask(ctx context.Context, question, sessionID string) (string, error) {
	userMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: question}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: defaultSystemPrompt},
	}
	if !o.stateless {
		messages = append(messages, o.turns(sessionID)...)
	}
	messages = append(messages, userMsg)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		Messages:  messages,
		MaxTokens: o.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: %w: no choices", ErrMalformedResponse)
	}

	answer := resp.Choices[0].Message.Content
	if !o.stateless {
		o.remember(sessionID, userMsg, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: answer,
		})
	}
	return answer, nil
}

// Forget drops the remembered conversation of a session
func (o *OpenAI) Forget(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.history, sessionID)
}

func (o *OpenAI) turns(sessionID string) []openai.ChatCompletionMessage {
	o.mu.Lock()
	defer o.mu.Unlock()

	turns, ok := o.history[sessionID]
	if !ok && o.transcripts != nil {
		if session, found := o.transcripts.Get(sessionID); found {
			turns = fromTranscript(session.Messages)
			o.history[sessionID] = turns
		}
	}
	return append([]openai.ChatCompletionMessage(nil), turns...)
}

// fromTranscript converts stored messages to chat turns. Trailing questions
// are still waiting for their answer and are left out.
func fromTranscript(messages []models.Message) []openai.ChatCompletionMessage {
	end := len(messages)
	for end > 0 && messages[end-1].Sender == models.SenderUser {
		end--
	}

	turns := make([]openai.ChatCompletionMessage, 0, end)
	for _, m := range messages[:end] {
		role := openai.ChatMessageRoleUser
		if m.Sender == models.SenderBot {
			role = openai.ChatMessageRoleAssistant
		}
		turns = append(turns, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}
	return turns
}

func (o *OpenAI) remember(sessionID string, msgs ...openai.ChatCompletionMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history[sessionID] = append(o.history[sessionID], msgs...)
}
