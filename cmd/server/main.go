package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"campusride/pkg/broker"
	"campusride/pkg/cache"
	"campusride/pkg/chatsync"
	"campusride/pkg/config"
	"campusride/pkg/database"
	"campusride/pkg/events"
	"campusride/pkg/handlers"
	"campusride/pkg/hub"
	"campusride/pkg/logger"
	"campusride/pkg/middleware"
	"campusride/pkg/repository"
	"campusride/pkg/server"
	"campusride/pkg/services"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/google/uuid"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db, log); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	log.Info("connecting to Redis")
	redis, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redis.Close()

	var pub events.Publisher = events.Noop{}
	if cfg.RabbitMQURL != "" {
		rmq, err := events.Dial(cfg.RabbitMQURL, log)
		if err != nil {
			log.WithError(err).Warn("rabbitmq unavailable, domain events disabled")
		} else {
			pub = rmq
		}
	}
	defer pub.Close()

	chatBroker := broker.New(redis.Client(), log)

	authRepo := repository.NewAuthRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	rideRepo := repository.NewRideRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	chatRepo := repository.NewChatRepository(db)

	access := services.NewAccessResolver(chatRepo, log)
	roster := services.NewRosterService(chatRepo, messageRepo, profileRepo, redis, cfg.RosterCacheTTL, log)
	chat := services.NewChatService(access, messageRepo, profileRepo, chatRepo, roster, chatBroker, log)
	phone := services.NewPhoneService(chat, chatRepo, requestRepo, profileRepo, pub, log)
	rides := services.NewRideService(rideRepo, roster, redis, pub, log)
	requests := services.NewRequestService(rideRepo, requestRepo, chat, roster, pub, log)
	profiles := services.NewProfileService(profileRepo)
	auth := services.NewAuthService(authRepo, profileRepo, cfg.JWTSecret, cfg.JWTTTL)

	go rides.RunCleanup(ctx, cfg.CleanupInterval)

	wsHub := hub.New(log)
	realtime := handlers.NewRealtime(wsHub, chat, roster, chatsync.BrokerFeed{Broker: chatBroker}, cfg.ChatPollInterval, log)
	realtime.Register()

	authH := handlers.NewAuth(auth, log)
	rideH := handlers.NewRides(rides, requests, log)
	chatH := handlers.NewChat(chat, roster, phone, log)
	profileH := handlers.NewProfiles(profiles, log)
	adminH := handlers.NewAdmin(profiles, rides, log)

	app := server.NewApp("campusride", server.Options{
		CORSOrigins: strings.Join(cfg.CORSOrigins, ","),
		AccessLog:   log.Writer(),
	})

	authGroup := app.Group("/auth")
	authGroup.Post("/register", limiter.New(limiter.Config{
		Max:        5,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}), authH.Register)
	authGroup.Post("/login", limiter.New(limiter.Config{
		Max:        10,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}), authH.Login)

	requireAuth := middleware.Auth(auth)
	authGroup.Get("/me", requireAuth, authH.Me)

	api := app.Group("", requireAuth)

	api.Get("/profile", profileH.Me)
	api.Put("/profile", profileH.Update)
	api.Get("/profiles/:id", profileH.Get)

	ridesGroup := api.Group("/rides")
	ridesGroup.Get("/", rideH.List)
	ridesGroup.Get("/mine", rideH.Mine)
	ridesGroup.Post("/", rideH.Create)
	ridesGroup.Get("/:id", rideH.Get)
	ridesGroup.Delete("/:id", middleware.LoadRole(profiles), rideH.Delete)
	ridesGroup.Post("/:id/requests", rideH.CreateRequest)
	ridesGroup.Get("/:id/requests", rideH.ListRequests)
	ridesGroup.Get("/:id/messages", chatH.Messages)
	ridesGroup.Post("/:id/messages", chatH.Send)
	ridesGroup.Delete("/:id/messages/:messageId", chatH.DeleteMessage)
	ridesGroup.Post("/:id/phone/request", chatH.RequestPhone)
	ridesGroup.Post("/:id/phone/respond", chatH.RespondPhone)
	ridesGroup.Post("/:id/phone/share", chatH.SharePhone)

	api.Get("/requests/mine", rideH.MyRequests)
	api.Put("/requests/:id", rideH.RespondRequest)
	api.Get("/chats", chatH.Roster)

	admin := api.Group("/admin", middleware.RequireAdmin(profiles))
	admin.Get("/users", adminH.Users)
	admin.Post("/promote", adminH.Promote)
	admin.Delete("/rides/:id", adminH.DeleteRide)
	admin.Post("/cleanup", adminH.Cleanup)

	app.Get("/hub/status", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"clients":       wsHub.ClientCount(),
			"users":         wsHub.UserCount(),
			"open_sessions": realtime.OpenSessions(),
		})
	})

	app.Use("/ws", parseWSToken(auth))
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		userID, _ := c.Locals("user_id").(uuid.UUID)
		wsHub.HandleClientConn(c, userID)
	}))

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.WithError(err).Warn("shutdown")
		}
	}()

	addr := "0.0.0.0:" + cfg.Port
	log.Info("WebSocket: wss://<domain>/ws")
	log.Infof("server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("failed to start: %v", err)
	}
}

// parseWSToken authenticates the upgrade request. Browsers cannot set headers
// on WebSocket connections, so the token may also come as a query parameter.
func parseWSToken(tokens middleware.TokenParser) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		tokenStr := middleware.BearerToken(c)
		if tokenStr == "" {
			return fiber.ErrUnauthorized
		}
		userID, err := tokens.ParseToken(tokenStr)
		if err != nil {
			return fiber.ErrUnauthorized
		}
		c.Locals("user_id", userID)
		return c.Next()
	}
}
