package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/jafarnz/tpconnect/internal/api"
	"github.com/jafarnz/tpconnect/internal/auth"
	"github.com/jafarnz/tpconnect/internal/database"
	"github.com/jafarnz/tpconnect/internal/realtime"
	"github.com/jafarnz/tpconnect/internal/ws"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	env := os.Getenv("ENV")
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
	auth.InitJWTKey([]byte(jwtSecret))

	db, err := openDatabase()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	broker, source, err := openBroker()
	if err != nil {
		log.Fatalf("Failed to connect to broker: %v", err)
	}

	// Initialize router with default middleware (logger and recovery)
	router := gin.Default()

	allowedOriginsStr := os.Getenv("ALLOWED_ORIGINS")
	allowedOrigins := strings.Split(allowedOriginsStr, ",")

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	messageHandler := api.NewMessageHandler(db, broker)

	wsManager := ws.NewManager(source)
	go wsManager.Run()

	authorized := router.Group("/api")
	authorized.Use(api.AuthMiddleware())
	{
		authorized.POST("/messages", messageHandler.SendMessage)
		authorized.GET("/messages", messageHandler.GetConversation)
	}

	// WebSocket upgrade requests carry the token as a query parameter
	router.GET("/api/ws", api.TokenAuthMiddleware(), wsManager.HandleWebSocket)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited properly")
}

func openDatabase() (database.DBInterface, error) {
	dbTypeStr := os.Getenv("DB_TYPE")
	if dbTypeStr == "" {
		dbTypeStr = "postgres"
	}
	dbType := database.DatabaseType(dbTypeStr)

	if dbType == database.InMemory {
		log.Println("Using in-memory database")
		return database.NewMemoryDB(), nil
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		// Fallback to individual connection parameters if DATABASE_URL not set
		dbHost := os.Getenv("DB_HOST")
		dbPort := os.Getenv("DB_PORT")
		dbName := os.Getenv("DB_NAME")
		dbUser := os.Getenv("DB_USER")
		dbPass := os.Getenv("DB_PASSWORD")

		if dbHost == "" || dbName == "" || dbUser == "" {
			return nil, fmt.Errorf("database connection details missing: set DATABASE_URL or individual DB_* variables")
		}

		dbURL = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=disable",
			dbUser, dbPass, dbHost, dbPort, dbName,
		)
	}

	db, err := database.NewDatabase(dbType, dbURL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to %s database successfully", dbType)
	return db, nil
}

// openBroker picks Redis when REDIS_ADDR is set, falling back to the
// in-process broker for single-instance development runs.
func openBroker() (realtime.Broker, realtime.SubscriberSource, error) {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		log.Println("REDIS_ADDR not set, using in-memory broker")
		broker := realtime.NewMemoryBroker()
		return broker, broker, nil
	}

	redisDB := 0
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		parsed, err := strconv.Atoi(dbStr)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		redisDB = parsed
	}

	broker, err := realtime.NewRedisBroker(redisAddr, os.Getenv("REDIS_PASSWORD"), redisDB)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("Connected to Redis broker at %s", redisAddr)
	return broker, broker, nil
}
