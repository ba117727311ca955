package ws

import (
	"time"

	fasthttpws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/dev-anas-tahir/Property-Hub/internal/auth"
	"github.com/dev-anas-tahir/Property-Hub/internal/config"
)

// Deps carries the collaborators a chat socket needs.
type Deps struct {
	Auth        *auth.JWTValidator
	Store       Store
	Limiter     RateLimiter
	Broadcaster Broadcaster
	Events      EventSink
	Log         *zap.SugaredLogger
	Cfg         *config.Config
}

// Register mounts the chat websocket route on app. The token travels as a
// query parameter because browser websocket clients cannot set headers.
func Register(app *fiber.App, deps Deps) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	opts := Options{
		MaxMessageLength: deps.Cfg.Chat.MaxMessageLength,
		SendBufferSize:   deps.Cfg.Chat.SendBufferSize,
		ReadLimitBytes:   deps.Cfg.Chat.ReadLimitBytes,
		PingInterval:     deps.Cfg.PingInterval,
	}

	app.Get("/ws/chat/:conversation_id", websocket.New(func(conn *websocket.Conn) {
		identity, err := deps.Auth.Validate(conn.Query("token"))
		if err != nil {
			// No frames are exchanged with unauthenticated callers.
			_ = conn.WriteControl(fasthttpws.CloseMessage,
				fasthttpws.FormatCloseMessage(CloseUnauthenticated, "authentication required"),
				time.Now().Add(time.Second))
			_ = conn.Close()
			return
		}

		sess := NewSession(conn, identity, conn.Params("conversation_id"),
			deps.Store, deps.Limiter, deps.Broadcaster, deps.Events, deps.Log, opts)
		sess.Run()
	}))
}
