package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/acura/internal/shared"
	openai "github.com/sashabaranov/go-openai"
)

const (
	maxQueryWords = 12
	maxQueryRunes = 100

	queryInstructions = `You write music search queries for a streaming catalog.
Each query must find playlists that suit the ambiance a business owner describes.
Keep it short (a few words of genre, mood or era), avoid repeating words, and vary it between requests.
Respond with a JSON object: {"query": "<search query>"}`

	relevanceInstructions = `You decide whether a music playlist suits a search query.
Judge by the playlist title and description only.
Respond with a JSON object: {"match": true} or {"match": false}`
)

// NewOpenAIClient creates a client for any OpenAI-compatible API.
// An empty BaseURL uses the OpenAI default.
func NewOpenAIClient(cfg shared.OpenAIConfig, httpClient *http.Client) *openai.Client {
	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if httpClient != nil {
		conf.HTTPClient = httpClient
	}
	return openai.NewClientWithConfig(conf)
}

// LLM implements [QueryGenerator] and [RelevanceClassifier] with chat completions in JSON mode.
//
// Replies that fail to parse or validate are sent back to the model with the reason,
// up to resultRetries extra times, before failing with [shared.ErrLLMOutput].
type LLM struct {
	client        *openai.Client
	model         string
	temperature   float32
	resultRetries int
	logger        *log.Logger
}

// NewLLM creates an LLM from the given client and model settings.
func NewLLM(client *openai.Client, cfg shared.LLMConfig, logger *log.Logger) *LLM {
	if logger == nil {
		logger = log.Default()
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &LLM{
		client:        client,
		model:         model,
		temperature:   cfg.Temperature,
		resultRetries: max(cfg.ResultRetries, 0),
		logger:        logger,
	}
}

// GenerateQuery drafts a short, de-duplicated search query for prompt.
func (l *LLM) GenerateQuery(ctx context.Context, prompt, errorInfo string) (string, error) {
	var user strings.Builder
	fmt.Fprintf(&user, "Ambiance: %s", strings.TrimSpace(prompt))
	if errorInfo != "" {
		fmt.Fprintf(&user, "\n\nThe previous attempt failed: %s\nWrite a different query.", errorInfo)
	}

	var query string
	err := l.complete(ctx, queryInstructions, user.String(), func(content string) error {
		var out struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal([]byte(content), &out); err != nil {
			return fmt.Errorf("reply is not the requested JSON object: %v", err)
		}
		q, err := CleanQuery(out.Query)
		if err != nil {
			return err
		}
		query = q
		return nil
	})
	return query, err
}

// IsRelevant asks whether playlist suits query.
func (l *LLM) IsRelevant(ctx context.Context, query string, playlist CatalogPlaylist) (bool, error) {
	user := fmt.Sprintf("Query: %s\nPlaylist title: %s\nPlaylist description: %s",
		query, playlist.Name, shared.Truncate(playlist.Description, 500))

	var match bool
	err := l.complete(ctx, relevanceInstructions, user, func(content string) error {
		var out struct {
			Match *bool `json:"match"`
		}
		if err := json.Unmarshal([]byte(content), &out); err != nil {
			return fmt.Errorf("reply is not the requested JSON object: %v", err)
		}
		if out.Match == nil {
			return errors.New(`reply is missing the boolean "match" field`)
		}
		match = *out.Match
		return nil
	})
	return match, err
}

// complete runs a chat completion and feeds validation failures back to the model.
func (l *LLM) complete(ctx context.Context, system, user string, validate func(string) error) error {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}

	var lastErr error
	for attempt := 0; attempt <= l.resultRetries; attempt++ {
		resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:          l.model,
			Messages:       messages,
			Temperature:    l.temperature,
			ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		})
		if err != nil {
			return fmt.Errorf("%w: chat completion: %w", shared.ErrAPIRequest, err)
		}
		if len(resp.Choices) == 0 {
			lastErr = errors.New("reply has no choices")
			continue
		}

		content := strings.TrimSpace(resp.Choices[0].Message.Content)
		if lastErr = validate(content); lastErr == nil {
			return nil
		}

		l.logger.Debug("model output rejected", "attempt", attempt+1, "reason", lastErr)
		messages = append(messages,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("That reply was invalid: %v. Answer again.", lastErr)},
		)
	}

	return fmt.Errorf("%w: %w", shared.ErrLLMOutput, lastErr)
}

// CleanQuery trims quotes and punctuation, drops repeated words and enforces the length limits.
func CleanQuery(raw string) (string, error) {
	seen := make(map[string]struct{})
	var words []string
	for _, w := range strings.Fields(raw) {
		w = strings.Trim(w, "\"'`.,;:!?")
		if w == "" {
			continue
		}
		key := strings.ToLower(w)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		words = append(words, w)
	}

	query := strings.Join(words, " ")
	switch {
	case query == "":
		return "", errors.New("query is empty")
	case len(words) > maxQueryWords:
		return "", fmt.Errorf("query has %d words, the limit is %d", len(words), maxQueryWords)
	case len([]rune(query)) > maxQueryRunes:
		return "", fmt.Errorf("query is longer than %d characters", maxQueryRunes)
	}
	return query, nil
}
