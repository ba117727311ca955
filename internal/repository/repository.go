// Package repository is the persistence gateway for conversations and
// messages, backed by MongoDB.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dev-anas-tahir/Property-Hub/internal/apperrors"
	"github.com/dev-anas-tahir/Property-Hub/internal/models"
)

type Repository struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
	listings      *mongo.Collection
}

func New(db *mongo.Database) *Repository {
	r := &Repository{
		conversations: db.Collection("conversations"),
		messages:      db.Collection("messages"),
		listings:      db.Collection("listings"),
	}
	r.ensureIndexes()
	return r
}

// ensureIndexes mirrors the schema constraints: one conversation per
// (listing, participant pair), message lookups by conversation order and by
// read state. Index creation failures are non-fatal; Mongo re-checks on the
// next startup.
func (r *Repository) ensureIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = r.conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "listing_id", Value: 1},
			{Key: "participant_one.id", Value: 1},
			{Key: "participant_two.id", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName("listing_pair_unique"),
	})
	_, _ = r.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("conv_created_idx"),
		},
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "is_read", Value: 1}},
			Options: options.Index().SetName("conv_read_idx"),
		},
	})
}

// GetConversation fetches a conversation by its hex id. A malformed id is
// indistinguishable from a missing conversation to callers.
func (r *Repository) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.ErrNotFound
	}
	var c models.Conversation
	if err := r.conversations.FindOne(ctx, bson.M{"_id": oid}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}

// GetOrCreateConversation returns the single conversation for the listing
// and pair, creating it on first contact. The listing owner is always stored
// as participant one so the unique index sees a canonical pair order. The
// bool reports whether a new conversation was created.
func (r *Repository) GetOrCreateConversation(ctx context.Context, listingID string, owner, requester models.Participant) (*models.Conversation, bool, error) {
	filter := bson.M{
		"listing_id":         listingID,
		"participant_one.id": owner.ID,
		"participant_two.id": requester.ID,
	}

	var existing models.Conversation
	err := r.conversations.FindOne(ctx, filter).Decode(&existing)
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, fmt.Errorf("find conversation: %w", err)
	}

	now := time.Now().UTC()
	c := &models.Conversation{
		ListingID:      listingID,
		ParticipantOne: owner,
		ParticipantTwo: requester,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	res, err := r.conversations.InsertOne(ctx, c)
	if err != nil {
		// Lost a creation race; the unique index guarantees the winner is
		// the conversation we want.
		if mongo.IsDuplicateKeyError(err) {
			if ferr := r.conversations.FindOne(ctx, filter).Decode(&existing); ferr == nil {
				return &existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("create conversation: %w", err)
	}
	c.ID = res.InsertedID.(primitive.ObjectID)
	return c, true, nil
}

// CreateMessage persists one message. Bumping the conversation's updated_at
// doubles as the existence check: if the conversation was deleted since the
// handshake, no document matches and the insert never happens.
func (r *Repository) CreateMessage(ctx context.Context, conversationID primitive.ObjectID, sender models.Participant, content string) (*models.Message, error) {
	now := time.Now().UTC()

	res, err := r.conversations.UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$set": bson.M{"updated_at": now}},
	)
	if err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, apperrors.ErrNotFound
	}

	m := &models.Message{
		ConversationID: conversationID,
		SenderID:       sender.ID,
		SenderEmail:    sender.Email,
		Content:        content,
		CreatedAt:      now,
		IsRead:         false,
	}
	ins, err := r.messages.InsertOne(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	m.ID = ins.InsertedID.(primitive.ObjectID)

	// The touch and the insert are separate writes, so a conversation
	// deletion can land between them and orphan the message. Re-check and
	// take the orphan back out.
	if err := r.conversations.FindOne(ctx, bson.M{"_id": conversationID}).Err(); errors.Is(err, mongo.ErrNoDocuments) {
		_, _ = r.messages.DeleteOne(ctx, bson.M{"_id": m.ID})
		return nil, apperrors.ErrNotFound
	}
	return m, nil
}

// MarkConversationRead flips unread messages not sent by readerID to read.
// Returns the number of messages marked.
func (r *Repository) MarkConversationRead(ctx context.Context, conversationID primitive.ObjectID, readerID string) (int64, error) {
	res, err := r.messages.UpdateMany(ctx,
		bson.M{
			"conversation_id": conversationID,
			"is_read":         false,
			"sender_id":       bson.M{"$ne": readerID},
		},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return res.ModifiedCount, nil
}

// UnreadCount counts messages in the conversation the viewer has not read
// and did not send.
func (r *Repository) UnreadCount(ctx context.Context, conversationID primitive.ObjectID, viewerID string) (int64, error) {
	n, err := r.messages.CountDocuments(ctx, bson.M{
		"conversation_id": conversationID,
		"is_read":         false,
		"sender_id":       bson.M{"$ne": viewerID},
	})
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return n, nil
}

// ListConversations returns the user's conversations, most recently active
// first.
func (r *Repository) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"participant_one.id": userID},
		bson.M{"participant_two.id": userID},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cur, err := r.conversations.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer cur.Close(ctx)

	var out []*models.Conversation
	for cur.Next(ctx) {
		var c models.Conversation
		if err := cur.Decode(&c); err != nil {
			return nil, fmt.Errorf("decode conversation: %w", err)
		}
		out = append(out, &c)
	}
	return out, cur.Err()
}

// GetListing resolves a listing's owner. The listings collection is written
// by the property service; this repo only reads it.
func (r *Repository) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	var l models.Listing
	if err := r.listings.FindOne(ctx, bson.M{"_id": id}).Decode(&l); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return &l, nil
}

// ListMessages returns all messages of a conversation in chronological
// order, for history replay on the detail page.
func (r *Repository) ListMessages(ctx context.Context, conversationID primitive.ObjectID) ([]*models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := r.messages.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer cur.Close(ctx)

	var out []*models.Message
	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, &m)
	}
	return out, cur.Err()
}
