package ws

// Server-initiated close codes. Stable values, documented for clients: tests
// and UIs branch on them to distinguish why a handshake was refused.
const (
	// CloseUnauthenticated: no authenticated identity on the connection.
	CloseUnauthenticated = 4001
	// CloseForbidden: authenticated, but not a participant in the
	// conversation.
	CloseForbidden = 4003
	// CloseConversationNotFound: the conversation does not exist at
	// handshake time.
	CloseConversationNotFound = 4004
)

// Inbound frame types. An absent type means chat_message, which keeps old
// clients that never send a discriminator working.
const (
	TypePing        = "ping"
	TypeChatMessage = "chat_message"
)

// Outbound frame types.
const (
	TypePong           = "pong"
	TypeMessage        = "message"
	TypeError          = "error"
	TypeRateLimitError = "rate_limit_error"
)

// InboundFrame is the envelope clients send. Adding a frame type means
// adding one dispatch case, not touching the existing ones.
type InboundFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type pongFrame struct {
	Type string `json:"type"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// rateLimitFrame is deliberately distinct from errorFrame so clients can
// render a countdown off the structured retry fields.
type rateLimitFrame struct {
	Type            string `json:"type"`
	Message         string `json:"message"`
	CooldownSeconds int    `json:"cooldown_seconds"`
	StatusCode      int    `json:"status_code"`
}

type messageFrame struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	SenderID    string `json:"sender_id"`
	SenderEmail string `json:"sender_email"`
	MessageID   string `json:"message_id"`
	CreatedAt   string `json:"created_at"`
}
