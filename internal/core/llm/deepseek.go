package llm

// DeepSeek uses OpenAI-compatible API with custom base URL
func NewDeepSeekProvider(apiKey string, opts Options) *ChatProvider {
	return newChatProvider("DeepSeek", apiKey, "https://api.deepseek.com", "deepseek-chat", opts)
}
