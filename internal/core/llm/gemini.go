package llm

// Gemini exposes an OpenAI-compatible surface next to its native API.
func NewGeminiProvider(apiKey string, opts Options) *ChatProvider {
	return newChatProvider("Gemini", apiKey, "https://generativelanguage.googleapis.com/v1beta/openai/", "gemini-2.5-flash", opts)
}
