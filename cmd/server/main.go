package main

import (
	"net/http"

	"shine/backend/internal/auth"
	"shine/backend/internal/config"
	"shine/backend/internal/crypto"
	"shine/backend/internal/database"
	"shine/backend/internal/handler"
	"shine/backend/internal/hub"
	"shine/backend/internal/notify"
	"shine/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	// Swagger imports
	_ "shine/backend/docs" // This is important for swag to find the generated docs

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func init() {
	config.LoadConfig()
}

// @title           Shine API
// @version         1.0
// @description     Content distribution and realtime messaging API for the Shine social network.
// @host            localhost:8080
// @BasePath        /api/v1
// @securityDefinitions.apiKey BearerAuth
// @in header
// @name Authorization
func main() {
	logger.Init(config.AppConfig.Environment)
	log := logger.Get()

	// Connect to the database
	database.Connect(config.AppConfig.DatabaseURL)

	// Optional redis relay for multi-instance realtime fan-out.
	var redisClient *redis.Client
	if config.AppConfig.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: config.AppConfig.RedisAddr})
		log.Info().Str("addr", config.AppConfig.RedisAddr).Msg("realtime relay enabled")
	}

	broker := hub.NewHub(redisClient)
	defer broker.Stop()

	dispatcher := notify.NewDispatcher(database.DB, broker)
	cipher := crypto.NewCipher(config.AppConfig.MessageEncryptionKey)

	postHandler := handler.NewPostHandler(dispatcher)
	commentHandler := handler.NewCommentHandler(broker, dispatcher)
	friendHandler := handler.NewFriendHandler(dispatcher, config.AppConfig.ConversationOnFriendAccept)
	messageHandler := handler.NewMessageHandler(broker, cipher)
	wsHandler := handler.NewWSHandler(broker)

	if config.AppConfig.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	{
		// Realtime entrypoint; token is optional, anonymous clients only
		// see rooms they explicitly join.
		apiV1.GET("/ws", wsHandler.Serve)

		// Auth routes
		authRoutes := apiV1.Group("/auth")
		{
			authRoutes.POST("/register", handler.RegisterUser)
			authRoutes.POST("/login", handler.LoginUser)
		}

		// Feed and post reads work both anonymous and authenticated.
		apiV1.GET("/feed", auth.OptionalAuthMiddleware(), postHandler.GetFeed)

		publicPostRoutes := apiV1.Group("/posts")
		publicPostRoutes.Use(auth.OptionalAuthMiddleware())
		{
			publicPostRoutes.GET("/:id", postHandler.GetPostByID)
			publicPostRoutes.GET("/:id/comments", commentHandler.GetComments)
		}

		// Post writes (protected)
		postRoutes := apiV1.Group("/posts")
		postRoutes.Use(auth.AuthMiddleware())
		{
			postRoutes.POST("", postHandler.CreatePost)
			postRoutes.PUT("/:id", postHandler.UpdatePost)
			postRoutes.DELETE("/:id", postHandler.DeletePost)
			postRoutes.POST("/:id/like", postHandler.ToggleLike)
			postRoutes.POST("/:id/comments", commentHandler.AddComment)
		}

		// Comment writes (protected)
		commentRoutes := apiV1.Group("/comments")
		commentRoutes.Use(auth.AuthMiddleware())
		{
			commentRoutes.PUT("/:id", commentHandler.UpdateComment)
			commentRoutes.DELETE("/:id", commentHandler.DeleteComment)
		}

		// User routes (protected)
		userRoutes := apiV1.Group("/users")
		userRoutes.Use(auth.AuthMiddleware())
		{
			userRoutes.GET("", handler.SearchUsers) // Must be before /:id
			userRoutes.GET("/me", handler.GetMe)
			userRoutes.PUT("/me/privacy", handler.UpdatePrivacy)
			userRoutes.GET("/:id", handler.GetUserByID)
			userRoutes.GET("/:id/posts", postHandler.GetUserPosts)
			userRoutes.GET("/:id/friends", friendHandler.GetUserFriends)
		}

		// Friendship routes (protected)
		friendRoutes := apiV1.Group("/friends")
		friendRoutes.Use(auth.AuthMiddleware())
		{
			friendRoutes.GET("", friendHandler.ListFriends)
			friendRoutes.GET("/requests", friendHandler.ListPending)
			friendRoutes.POST("/requests/:id", friendHandler.SendRequest)
			friendRoutes.POST("/requests/:id/accept", friendHandler.AcceptRequest)
			friendRoutes.DELETE("/:id", friendHandler.RemoveFriend)
		}

		// Block routes (protected)
		blockRoutes := apiV1.Group("/blocks")
		blockRoutes.Use(auth.AuthMiddleware())
		{
			blockRoutes.GET("", handler.ListBlocked)
			blockRoutes.POST("/:id", handler.BlockUser)
			blockRoutes.DELETE("/:id", handler.UnblockUser)
			blockRoutes.GET("/:id/status", handler.BlockStatus)
		}

		// Notification routes (protected)
		notificationRoutes := apiV1.Group("/notifications")
		notificationRoutes.Use(auth.AuthMiddleware())
		{
			notificationRoutes.GET("", handler.GetNotifications)
			notificationRoutes.GET("/unread-count", handler.GetUnreadNotificationCount)
			notificationRoutes.PUT("/read-all", handler.MarkAllNotificationsRead)
			notificationRoutes.PUT("/:id/read", handler.MarkNotificationRead)
			notificationRoutes.DELETE("/:id", handler.DeleteNotification)
		}

		// Messaging routes (protected)
		messageRoutes := apiV1.Group("/messages")
		messageRoutes.Use(auth.AuthMiddleware())
		{
			messageRoutes.POST("", messageHandler.SendMessage)
			messageRoutes.GET("/conversations", messageHandler.GetConversations)
			messageRoutes.GET("/conversations/:id", messageHandler.GetMessages)
			messageRoutes.PUT("/conversations/:id/read", messageHandler.MarkConversationRead)
			messageRoutes.GET("/conversations/:id/media", messageHandler.GetSharedMedia)
			messageRoutes.GET("/unread-count", messageHandler.GetUnreadMessageCount)
			messageRoutes.POST("/:id/reactions", messageHandler.ToggleReaction)
		}
	}

	log.Info().Str("addr", config.AppConfig.ServerAddr).Msg("server is running")
	log.Info().Msg("Swagger UI is available at /swagger/index.html")
	if err := router.Run(config.AppConfig.ServerAddr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
