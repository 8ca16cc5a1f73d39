package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/nturan/flashgram-bot-sub000/pkg/models"
)

// completer is the subset of the OpenAI client used here
type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ChatGPT analyzes Russian words and generates flashcards through the OpenAI API
type ChatGPT struct {
	client      completer
	model       string
	maxTokens   int
	temperature float32
}

// New creates a new ChatGPT client
func New(apiKey, model string) (*ChatGPT, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
	}
	if model == "" {
		model = models.DefaultModel
	}

	return &ChatGPT{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   1500,
		temperature: 0.3,
	}, nil
}

// WithModel returns a client that uses another model, e.g. from user settings
func (c *ChatGPT) WithModel(model string) *ChatGPT {
	if model == "" || model == c.model {
		return c
	}
	clone := *c
	clone.model = model
	return &clone
}

const analyzeSystemPrompt = `Ты - эксперт по русской грамматике. Для заданного слова определи словарную форму,
часть речи и перевод на английский. Ответь только JSON-объектом вида:
{"word": "...", "dictionary_form": "...", "word_type": "noun|adjective|verb|adverb|pronoun|number|preposition|conjunction|particle|unknown",
 "english_translation": "...", "forms": {"<form name>": "<form>"}}`

const cardsSystemPrompt = `You create flashcards for learners of Russian. Answer only with a JSON object
{"flashcards": [...]} where every item is one of:
{"type": "two_sided", "title": "...", "tags": ["..."], "front": "...", "back": "..."}
{"type": "fill_in_blank", "title": "...", "tags": ["..."], "text_with_blanks": "text with {blank} markers", "answers": ["..."], "case_sensitive": false}
{"type": "multiple_choice", "title": "...", "tags": ["..."], "question": "...", "options": ["..."], "correct_indices": [0], "allow_multiple": false}`

// Analyze returns the grammar of a single word
func (c *ChatGPT) Analyze(ctx context.Context, word string) (*models.GrammarResult, error) {
	content, err := c.complete(ctx, analyzeSystemPrompt, fmt.Sprintf("Слово: %s", word))
	if err != nil {
		return nil, fmt.Errorf("failed to analyze '%s': %w", word, err)
	}

	var result models.GrammarResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("failed to decode analysis of '%s': %w", word, err)
	}
	if strings.TrimSpace(result.DictionaryForm) == "" {
		return nil, fmt.Errorf("analysis of '%s' has no dictionary form", word)
	}
	if result.Word == "" {
		result.Word = word
	}
	result.WordType = models.ParseWordType(string(result.WordType))
	result.Raw = json.RawMessage(content)

	return &result, nil
}

// GenerateCards creates card drafts from a grammar analysis.
// Items the model returns in an unknown or incomplete shape are skipped.
func (c *ChatGPT) GenerateCards(ctx context.Context, grammar *models.GrammarResult, focus []string) ([]models.FlashcardDraft, error) {
	if grammar == nil {
		return nil, fmt.Errorf("no grammar to generate flashcards from")
	}
	analysis, err := json.Marshal(grammar)
	if err != nil {
		return nil, fmt.Errorf("failed to encode grammar: %w", err)
	}

	prompt := fmt.Sprintf("Create flashcards for the word '%s' (%s) from this analysis:\n%s",
		grammar.DictionaryForm, grammar.WordType, analysis)
	if len(focus) > 0 {
		prompt += "\nFocus on: " + strings.Join(focus, ", ")
	}

	content, err := c.complete(ctx, cardsSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate flashcards for '%s': %w", grammar.DictionaryForm, err)
	}

	var response struct {
		Flashcards []json.RawMessage `json:"flashcards"`
	}
	if err := json.Unmarshal([]byte(content), &response); err != nil {
		return nil, fmt.Errorf("failed to decode flashcards: %w", err)
	}

	drafts := make([]models.FlashcardDraft, 0, len(response.Flashcards))
	for _, item := range response.Flashcards {
		draft, err := decodeDraft(item)
		if err != nil {
			log.Printf("Skipping generated flashcard for '%s': %v", grammar.DictionaryForm, err)
			continue
		}
		if len(draft.Tags) == 0 {
			draft.Tags = []string{string(grammar.WordType)}
		}
		drafts = append(drafts, draft)
	}

	return drafts, nil
}

// RegenerateCard asks for a replacement of an existing card
func (c *ChatGPT) RegenerateCard(ctx context.Context, card *models.Flashcard, instructions string) (models.FlashcardDraft, error) {
	current, err := json.Marshal(card.Content)
	if err != nil {
		return models.FlashcardDraft{}, fmt.Errorf("failed to encode flashcard: %w", err)
	}

	prompt := fmt.Sprintf("Rewrite this %s flashcard titled '%s' as a single improved flashcard:\n%s",
		card.Type(), card.Title, current)
	if instructions = strings.TrimSpace(instructions); instructions != "" {
		prompt += "\nInstructions: " + instructions
	}
	prompt += "\nReturn {\"flashcards\": [<one item>]}."

	content, err := c.complete(ctx, cardsSystemPrompt, prompt)
	if err != nil {
		return models.FlashcardDraft{}, fmt.Errorf("failed to regenerate flashcard %s: %w", card.ID, err)
	}

	var response struct {
		Flashcards []json.RawMessage `json:"flashcards"`
	}
	if err := json.Unmarshal([]byte(content), &response); err != nil {
		return models.FlashcardDraft{}, fmt.Errorf("failed to decode flashcard: %w", err)
	}
	if len(response.Flashcards) == 0 {
		return models.FlashcardDraft{}, fmt.Errorf("no flashcard returned")
	}

	draft, err := decodeDraft(response.Flashcards[0])
	if err != nil {
		return models.FlashcardDraft{}, err
	}
	if draft.Title == "" {
		draft.Title = card.Title
	}
	return draft, nil
}

func decodeDraft(raw json.RawMessage) (models.FlashcardDraft, error) {
	var head struct {
		Type  models.FlashcardType `json:"type"`
		Title string               `json:"title"`
		Tags  []string             `json:"tags"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return models.FlashcardDraft{}, fmt.Errorf("failed to decode flashcard: %w", err)
	}

	content, err := models.DecodeContent(head.Type, raw)
	if err != nil {
		return models.FlashcardDraft{}, err
	}
	if err := content.Validate(); err != nil {
		return models.FlashcardDraft{}, err
	}

	return models.FlashcardDraft{Title: head.Title, Tags: head.Tags, Content: content}, nil
}

func (c *ChatGPT) complete(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}

	return stripCodeFence(resp.Choices[0].Message.Content), nil
}

// stripCodeFence removes a ```json ... ``` wrapper if the model added one
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
