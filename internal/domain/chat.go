package domain

// ChatMessage is one entry of the prompt sent to the completion endpoint.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is the extracted result of a successful completion call.
type Completion struct {
	Text        string
	TotalTokens int
}
