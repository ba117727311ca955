// Package api exposes the HTTP surface around the chat socket: the
// conversation list with unread counts, the detail page data that marks
// messages read, and the start-conversation entry point. The socket core
// never marks messages read itself; this is the path that does.
package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/dev-anas-tahir/Property-Hub/internal/apperrors"
	"github.com/dev-anas-tahir/Property-Hub/internal/auth"
	"github.com/dev-anas-tahir/Property-Hub/internal/events"
	"github.com/dev-anas-tahir/Property-Hub/internal/models"
)

// Store is the persistence surface these handlers consume.
type Store interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	GetOrCreateConversation(ctx context.Context, listingID string, owner, requester models.Participant) (*models.Conversation, bool, error)
	MarkConversationRead(ctx context.Context, conversationID primitive.ObjectID, readerID string) (int64, error)
	UnreadCount(ctx context.Context, conversationID primitive.ObjectID, viewerID string) (int64, error)
	ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error)
	ListMessages(ctx context.Context, conversationID primitive.ObjectID) ([]*models.Message, error)
}

// ListingDirectory resolves listings. The property service that writes them
// is external to this repo.
type ListingDirectory interface {
	GetListing(ctx context.Context, id string) (*models.Listing, error)
}

// Publisher announces conversation creation. May be nil.
type Publisher interface {
	ConversationCreated(ev events.ConversationCreated) error
}

type Handler struct {
	store     Store
	listings  ListingDirectory
	publisher Publisher
	log       *zap.SugaredLogger
}

func NewHandler(store Store, listings ListingDirectory, publisher Publisher, log *zap.SugaredLogger) *Handler {
	return &Handler{store: store, listings: listings, publisher: publisher, log: log}
}

// Register mounts the conversation routes. The router is expected to carry
// the auth middleware already.
func (h *Handler) Register(r fiber.Router) {
	r.Get("/conversations", h.listConversations)
	r.Get("/conversations/:conversation_id", h.conversationDetail)
	r.Post("/conversations/start/:listing_id", h.startConversation)
}

type conversationSummary struct {
	Conversation     *models.Conversation `json:"conversation"`
	OtherParticipant models.Participant   `json:"other_participant"`
	UnreadCount      int64                `json:"unread_count"`
}

func (h *Handler) listConversations(c *fiber.Ctx) error {
	user := identityFrom(c)
	convs, err := h.store.ListConversations(c.Context(), user.ID)
	if err != nil {
		h.log.Errorw("list conversations", "err", err, "user", user.ID)
		return fiber.NewError(fiber.StatusInternalServerError, "could not load conversations")
	}

	out := make([]conversationSummary, 0, len(convs))
	for _, conv := range convs {
		other, _ := conv.OtherParticipant(user.ID)
		unread, err := h.store.UnreadCount(c.Context(), conv.ID, user.ID)
		if err != nil {
			h.log.Errorw("unread count", "err", err, "conversation", conv.ID.Hex())
			return fiber.NewError(fiber.StatusInternalServerError, "could not load conversations")
		}
		out = append(out, conversationSummary{
			Conversation:     conv,
			OtherParticipant: other,
			UnreadCount:      unread,
		})
	}
	return c.JSON(fiber.Map{"conversations": out})
}

type detailResponse struct {
	Conversation     *models.Conversation `json:"conversation"`
	OtherParticipant models.Participant   `json:"other_participant"`
	Messages         []*models.Message    `json:"messages"`
}

// conversationDetail returns the full chronological history and marks every
// message the viewer has not sent as read. Opening the page is the act that
// flips the read flag, never sending.
func (h *Handler) conversationDetail(c *fiber.Ctx) error {
	user := identityFrom(c)
	conv, err := h.store.GetConversation(c.Context(), c.Params("conversation_id"))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "conversation not found")
		}
		h.log.Errorw("get conversation", "err", err)
		return fiber.NewError(fiber.StatusInternalServerError, "could not load conversation")
	}
	if !conv.HasParticipant(user.ID) {
		return fiber.NewError(fiber.StatusForbidden, "you are not a participant in this conversation")
	}

	if _, err := h.store.MarkConversationRead(c.Context(), conv.ID, user.ID); err != nil {
		h.log.Errorw("mark read", "err", err, "conversation", conv.ID.Hex())
		return fiber.NewError(fiber.StatusInternalServerError, "could not load conversation")
	}
	msgs, err := h.store.ListMessages(c.Context(), conv.ID)
	if err != nil {
		h.log.Errorw("list messages", "err", err, "conversation", conv.ID.Hex())
		return fiber.NewError(fiber.StatusInternalServerError, "could not load conversation")
	}

	other, _ := conv.OtherParticipant(user.ID)
	return c.JSON(detailResponse{Conversation: conv, OtherParticipant: other, Messages: msgs})
}

// startConversation get-or-creates the single conversation between the
// requester and the listing owner. The owner is always participant one, so
// repeated contact attempts land on the same thread.
func (h *Handler) startConversation(c *fiber.Ctx) error {
	user := identityFrom(c)
	listing, err := h.listings.GetListing(c.Context(), c.Params("listing_id"))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "listing not found")
		}
		h.log.Errorw("get listing", "err", err)
		return fiber.NewError(fiber.StatusInternalServerError, "could not start conversation")
	}
	if listing.Owner.ID == user.ID {
		return fiber.NewError(fiber.StatusForbidden, "you cannot start a conversation about your own listing")
	}

	requester := models.Participant{ID: user.ID, Email: user.Email}
	conv, created, err := h.store.GetOrCreateConversation(c.Context(), listing.ID, listing.Owner, requester)
	if err != nil {
		h.log.Errorw("get or create conversation", "err", err, "listing", listing.ID)
		return fiber.NewError(fiber.StatusInternalServerError, "could not start conversation")
	}

	if created && h.publisher != nil {
		ev := events.ConversationCreated{
			ConversationID: conv.ID.Hex(),
			ListingID:      listing.ID,
			OwnerID:        listing.Owner.ID,
			RequesterID:    user.ID,
		}
		if err := h.publisher.ConversationCreated(ev); err != nil {
			h.log.Warnw("conversation.created event not published", "err", err)
		}
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"conversation": conv, "created": created})
}

// identityFrom reads the identity the auth middleware stashed on the
// request.
func identityFrom(c *fiber.Ctx) auth.Identity {
	id, _ := c.Locals(identityKey).(auth.Identity)
	return id
}
