package main

import (
	"log"
	"os"

	"github.com/futureproofmusicschool/futureproof-feedback/internal/db"
	"github.com/futureproofmusicschool/futureproof-feedback/internal/router"
	"github.com/futureproofmusicschool/futureproof-feedback/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, finding env vars from system")
	}

	// Initialize Database
	db.Init()

	// Start the webhook dispatcher
	services.GetWebhookService()

	// Initialize Gin
	r := gin.Default()

	router.RegisterRoutes(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("feedback server starting on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}
