package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/dmethood/casino-sub001/internal/server"
)

func main() {
	srv := server.New()
	srv.RegisterFiberRoutes()

	port, _ := strconv.Atoi(getEnv("PORT", "8080"))

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.Listen(fmt.Sprintf(":%d", port)); err != nil {
			log.Fatalf("[MAIN] Server error: %v", err)
		}
	}()

	log.Printf("[MAIN] Listening on :%d", port)

	<-done
	if err := srv.Shutdown(); err != nil {
		log.Printf("[MAIN] Shutdown error: %v", err)
	}
	log.Println("[MAIN] Stopped")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
