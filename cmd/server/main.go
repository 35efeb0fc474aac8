package main

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yixuanzhou/student-portal-server/internal/api"
	"github.com/yixuanzhou/student-portal-server/internal/config"
	"github.com/yixuanzhou/student-portal-server/internal/messaging"
	"github.com/yixuanzhou/student-portal-server/internal/repository"
	"github.com/yixuanzhou/student-portal-server/internal/repository/mongodb"
	"github.com/yixuanzhou/student-portal-server/internal/service"
	"github.com/yixuanzhou/student-portal-server/internal/utils"
)

func main() {
	logger := utils.NewLogger()

	// Load configuration
	cfg := config.LoadConfig()

	// Set up database connection
	db, err := config.SetupDatabase(cfg)
	if err != nil {
		logger.Fatal("Failed to set up database: %v", err)
	}
	defer db.Close()

	// Create repository
	repo := repository.NewPostgresRepository(db)

	// Activity log store is optional
	activity := mongodb.NewNopActivityRepository()
	if cfg.Mongo.URI != "" {
		client, err := config.SetupMongo(cfg)
		if err != nil {
			logger.Fatal("Failed to set up mongo: %v", err)
		}
		activity = mongodb.NewActivityRepository(client, cfg.Mongo.DBName)
	}

	// Transaction event stream is optional
	producer := messaging.NewNopProducer()
	if len(cfg.Kafka.Brokers) > 0 {
		producer = messaging.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	}
	defer producer.Close()

	// Create service
	svc := service.NewDefaultService(repo, activity, producer, logger,
		cfg.Auth.JWTSecret, cfg.Ledger.SignupRoseGrant)

	// Create API handler
	handler := api.NewHandler(svc)

	// Set up Gin router
	router := gin.Default()

	// Add middleware for JWT secret
	router.Use(func(c *gin.Context) {
		c.Set("jwtSecret", []byte(cfg.Auth.JWTSecret))
		c.Next()
	})

	// Set up routes
	handler.SetupRoutes(router)

	// Start server
	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Starting server on %s", serverAddr)
	if err := http.ListenAndServe(serverAddr, router); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}
