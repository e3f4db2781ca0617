package server

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Question *string `json:"question" binding:"required" required:"true" description:"Question forwarded to the model without history"`
}

// AskResponse is returned by POST /ask.
type AskResponse struct {
	Answer string `json:"answer"`
}

// ChatRequest is the body of POST /chat/.
type ChatRequest struct {
	Message        *string `json:"message" binding:"required" required:"true" description:"Message appended to the conversation"`
	Role           string  `json:"role,omitempty" default:"user" description:"Role of the message author"`
	ConversationID *string `json:"conversation_id" binding:"required" required:"true" description:"Client chosen conversation identifier"`
}

// ChatResponse is returned by POST /chat/.
type ChatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
}

// InfoResponse is returned by GET /.
type InfoResponse struct {
	Message string `json:"message"`
}

// ErrorResponse carries the detail of a failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Status        string       `json:"status"`
	Conversations int          `json:"conversations"`
	UptimeSeconds float64      `json:"uptime_seconds"`
	ChatModel     string       `json:"chat_model,omitempty"`
	AskModel      string       `json:"ask_model,omitempty"`
	Host          *HostInfo    `json:"host,omitempty"`
	Process       *ProcessInfo `json:"process,omitempty"`
}

// HostInfo describes the machine the relay runs on.
type HostInfo struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelVersion   string `json:"kernel_version"`
}

// ProcessInfo describes the relay process.
type ProcessInfo struct {
	PID        int32  `json:"pid"`
	RSSBytes   uint64 `json:"rss_bytes"`
	Goroutines int    `json:"goroutines"`
}
