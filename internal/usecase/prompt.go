package usecase

import (
	"strings"

	"hospital-chat/internal/domain"
)

func systemPrompt() string {
	return strings.Join([]string{
		"You are a helpful assistant for a hospital. Your role is to:",
		"1. Answer questions about common hospital procedures and services",
		"2. Provide general medical information and guidance",
		"3. Explain hospital policies and protocols",
		"4. Direct patients to appropriate resources",
		"",
		"Always maintain a professional and compassionate tone. If asked about specific medical advice,",
		"remind users to consult with healthcare professionals for personalized medical guidance.",
	}, "\n")
}

// buildPromptMessages orders the prompt as system instruction, history
// (oldest first), then the new user message.
func buildPromptMessages(history []domain.ChatTurn, message string) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(history)+2)
	messages = append(messages, domain.ChatMessage{
		Role:    string(domain.RoleSystem),
		Content: systemPrompt(),
	})
	for _, t := range history {
		messages = append(messages, t.PromptMessage())
	}
	return append(messages, domain.ChatMessage{
		Role:    string(domain.RoleUser),
		Content: message,
	})
}
