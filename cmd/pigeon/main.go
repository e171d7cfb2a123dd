package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/avestan-labs/pigeon/internal/auth"
	"github.com/avestan-labs/pigeon/internal/chat"
	"github.com/avestan-labs/pigeon/internal/db"
	"github.com/avestan-labs/pigeon/internal/handlers"
	"github.com/avestan-labs/pigeon/internal/logging"
	"github.com/avestan-labs/pigeon/internal/metrics"
	"github.com/avestan-labs/pigeon/internal/push"
	"github.com/avestan-labs/pigeon/internal/registry"
	"github.com/avestan-labs/pigeon/internal/store"
	"github.com/avestan-labs/pigeon/internal/ws"
	"github.com/avestan-labs/pigeon/pkg/config"
)

func main() {
	root := &cobra.Command{
		Use:           "pigeon",
		Short:         "Pigeon personal messaging server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the messaging server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	})

	root.AddCommand(newStatusCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe() error {
	cfg, err := config.Load(config.NewViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	router, err := buildRouter(cfg, database, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%s", cfg.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func buildRouter(cfg *config.Config, database *db.DB, logger *zap.Logger) (*gin.Engine, error) {
	conn := database.GetConn()

	authSvc := auth.New(conn, cfg.JWTSecret)
	userStore := store.NewUserStore(conn)
	messageStore := store.NewMessageStore(conn)
	contactStore := store.NewContactStore(conn)

	reg := registry.New()
	chatSvc := chat.NewService(messageStore, contactStore, userStore, reg, logger)

	hub := ws.NewHub(reg, chatSvc, authSvc, logger)
	chatSvc.SetDeliverer(hub)

	notifier := push.NewNotifier(conn, logger, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)
	if notifier != nil {
		chatSvc.SetPusher(notifier)
	}

	authHandler := handlers.NewAuthHandler(authSvc)
	msgHandler := handlers.NewMessageHandler(chatSvc, logger)
	contactHandler := handlers.NewContactHandler(chatSvc, contactStore, logger)
	userHandler := handlers.NewUserHandler(userStore, reg, logger)
	pushHandler := handlers.NewPushHandler(notifier, logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.GinMiddleware())

	corsConfig := cors.DefaultConfig()
	if cfg.CORSOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{cfg.CORSOrigins}
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	api := router.Group("/api")
	{
		registerLimiter := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 2})
		loginLimiter := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 5})

		api.POST("/auth/register", rateLimitMiddleware(registerLimiter), authHandler.Register)
		api.POST("/auth/login", rateLimitMiddleware(loginLimiter), authHandler.Login)

		api.GET("/users/:username", userHandler.GetProfile)
	}

	protected := api.Group("")
	protected.Use(authHandler.AuthMiddleware())
	{
		protected.GET("/conversations", msgHandler.GetConversations)
		protected.GET("/messages/check-new", msgHandler.CheckNew)
		protected.GET("/messages/:peer_id", msgHandler.GetHistory)
		protected.POST("/messages", msgHandler.SendMessage)

		protected.GET("/contacts", contactHandler.List)
		protected.POST("/contacts", contactHandler.Create)
		protected.PUT("/contacts/:id", contactHandler.UpdateNickname)
		protected.DELETE("/contacts/:id", contactHandler.Delete)

		protected.GET("/users", userHandler.Search)
		protected.GET("/profile", userHandler.GetMyProfile)
		protected.PUT("/profile", userHandler.UpdateProfile)

		protected.GET("/push/vapid-key", pushHandler.VAPIDPublicKey)
		protected.POST("/push/subscribe", pushHandler.Subscribe)
		protected.DELETE("/push/subscribe", pushHandler.Unsubscribe)
	}

	// Authentication happens in-band via the authenticate event
	router.GET("/ws", hub.HandleWebSocket)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router, nil
}

func rateLimitMiddleware(limiterInstance *limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		limiterContext, err := limiterInstance.Get(c.Request.Context(), c.ClientIP())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "rate limiter error"})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limiterContext.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", limiterContext.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", limiterContext.Reset))

		if limiterContext.Reached {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}

		c.Next()
	}
}
