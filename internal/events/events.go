// Package events publishes chat lifecycle events for downstream consumers
// (notifications, analytics). Publishing is best-effort: a broker outage is
// logged by callers and never surfaces to chat clients.
package events

import "time"

// MessageSent is emitted after a message is persisted and broadcast.
type MessageSent struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	ListingID      string    `json:"listing_id"`
	SenderID       string    `json:"sender_id"`
	RecipientID    string    `json:"recipient_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationCreated is emitted when first contact creates a conversation.
type ConversationCreated struct {
	ConversationID string `json:"conversation_id"`
	ListingID      string `json:"listing_id"`
	OwnerID        string `json:"owner_id"`
	RequesterID    string `json:"requester_id"`
}
