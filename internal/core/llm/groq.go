package llm

// Groq uses OpenAI-compatible API with custom base URL
func NewGroqProvider(apiKey string, opts Options) *ChatProvider {
	return newChatProvider("Groq", apiKey, "https://api.groq.com/openai/v1", "llama-3.1-8b-instant", opts)
}
