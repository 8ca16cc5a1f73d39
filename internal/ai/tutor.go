package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ChatTurn is an earlier message of the conversation with the tutor
type ChatTurn struct {
	Role    string
	Content string
}

// tutorTemperature is higher than for card generation, replies are free text
const tutorTemperature = 0.7

const tutorSystemPrompt = `Ты - доброжелательный и терпеливый репетитор русского языка. Ты помогаешь ученику:
- переводить фразы между русским, английским и немецким;
- исправлять ошибки в русском тексте, в том числе смесь языков, и объяснять их;
- разбирать грамматику слов: падежи, времена, род;
- придумывать примеры предложений с нужным словом.
Отвечай кратко и понятно, на языке вопроса ученика. Учитывай предыдущие сообщения диалога.
Если ученику полезно выучить новые слова, предложи отправить их списком через запятую, и бот создаст карточки.`

// Converse answers a free-form message of the learner with the earlier turns as context.
// Only user and assistant turns are sent, other roles are skipped.
func (c *ChatGPT) Converse(ctx context.Context, history []ChatTurn, message string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: tutorSystemPrompt})
	for _, turn := range history {
		switch turn.Role {
		case openai.ChatMessageRoleUser, openai.ChatMessageRoleAssistant:
			messages = append(messages, openai.ChatCompletionMessage{Role: turn.Role, Content: turn.Content})
		}
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: tutorTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get tutor reply: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", fmt.Errorf("tutor returned an empty reply")
	}
	return answer, nil
}
