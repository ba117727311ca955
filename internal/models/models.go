package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Participant is the slice of a platform user the chat core needs.
type Participant struct {
	ID    string `bson:"id" json:"id"`
	Email string `bson:"email" json:"email"`
}

// Conversation is a two-party thread about one property listing. At most one
// conversation exists per (listing, unordered participant pair); the listing
// owner is always stored as ParticipantOne so the pair has a canonical order.
type Conversation struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ListingID      string             `bson:"listing_id" json:"listing_id"`
	ParticipantOne Participant        `bson:"participant_one" json:"participant_one"`
	ParticipantTwo Participant        `bson:"participant_two" json:"participant_two"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.ParticipantOne.ID == userID || c.ParticipantTwo.ID == userID
}

// OtherParticipant returns the participant that is not userID. The second
// return is false when userID is not a participant at all.
func (c *Conversation) OtherParticipant(userID string) (Participant, bool) {
	switch userID {
	case c.ParticipantOne.ID:
		return c.ParticipantTwo, true
	case c.ParticipantTwo.ID:
		return c.ParticipantOne, true
	}
	return Participant{}, false
}

// Listing is the slice of a property listing the chat core needs: identity
// and owner. The listing lifecycle itself belongs to the property service.
type Listing struct {
	ID    string      `bson:"_id" json:"id"`
	Owner Participant `bson:"owner" json:"owner"`
	Title string      `bson:"title" json:"title"`
}

// Message is one chat utterance. Immutable after creation except IsRead,
// which flips false -> true once, set by the other participant's page view.
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ConversationID primitive.ObjectID `bson:"conversation_id" json:"conversation_id"`
	SenderID       string             `bson:"sender_id" json:"sender_id"`
	SenderEmail    string             `bson:"sender_email" json:"sender_email"`
	Content        string             `bson:"content" json:"content"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	IsRead         bool               `bson:"is_read" json:"is_read"`
}
