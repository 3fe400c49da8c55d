// Chat Relay
//
// This application is the backend of a browser-based AI chat client. It
// accepts a conversation, streams the selected model's reply back as one
// continuous plain-text body, and transparently continues replies that were
// truncated by provider output-token ceilings.
//
// CLI Usage:
//
//	--addr=":8080"
//	  Address the HTTP server listens on.
//
//	--disable-auth
//	  Disables chat API token validation, allowing all requests.
//
//	--mint-token=<user-id>
//	  Prints a chat API token for the given user ID and exits.
//
// Environment Variables:
//   - CHAT_API_SECRET: Secret key signing chat API tokens
//   - VALID_API_KEYS: Comma-separated list of valid app API keys
//   - DISABLE_AUTH: Set to "true" or "1" to disable token validation
//   - OPENAI_API_KEY: Default key for the OpenAI provider
//   - GEMINI_API_KEY: Default key for the Google Gemini provider
//   - OPENAI_COMPAT_URL: Endpoint for an OpenAI-compatible provider
//   - OPENAI_COMPAT_API_KEY: Default key for the OpenAI-compatible provider
//   - STRIPE_API_KEY: Stripe API key for billing functionality
//   - STRIPE_WEBHOOK_SECRET: Signing secret for Stripe webhooks
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"chat-relay/internal/app"
	"chat-relay/internal/auth"
	"chat-relay/internal/billing"
	"chat-relay/internal/chat"
	"chat-relay/internal/provider"
	"chat-relay/internal/provider/gemini"
	"chat-relay/internal/provider/openai"
	"chat-relay/internal/provider/openaicompat"
)

// loadEnvFile loads environment variables from a .env file if present.
// It attempts to load from the current directory and parent directories
// up to the root directory.
func loadEnvFile() {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment variables from .env file in current directory")
		return
	}

	workDir, err := os.Getwd()
	if err != nil {
		log.Printf("Warning: Could not determine current directory: %v", err)
		return
	}

	for dir := workDir; dir != "/"; dir = filepath.Dir(dir) {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err == nil {
				log.Printf("Loaded environment variables from %s", envPath)
				return
			}
		}
	}

	log.Println("No .env file found. Using existing environment variables.")
}

// buildRegistry assembles the provider registry from the environment.
func buildRegistry() *provider.Registry {
	registry := provider.NewRegistry(openai.New(), gemini.New())

	if endpoint := os.Getenv("OPENAI_COMPAT_URL"); endpoint != "" {
		registry.Register(openaicompat.New("openai-compatible", endpoint))
	}

	for _, name := range registry.Names() {
		log.Printf("Enabled LLM provider: %s", name)
	}
	return registry
}

func main() {
	loadEnvFile()

	addr := flag.String("addr", ":8080", "address the HTTP server listens on")
	disableAuth := flag.Bool("disable-auth", false, "Disable chat API token validation and accept all requests")
	mintToken := flag.String("mint-token", "", "Print a chat API token for the given user ID and exit")
	flag.Parse()

	if *disableAuth {
		os.Setenv("DISABLE_AUTH", "true")
		log.Println("Chat API token validation is disabled - all requests will be accepted")
	}

	secret := os.Getenv("CHAT_API_SECRET")

	if *mintToken != "" {
		if secret == "" {
			log.Fatal("CHAT_API_SECRET must be set to mint tokens")
		}
		userID, err := strconv.ParseUint(*mintToken, 10, 64)
		if err != nil {
			log.Fatalf("Invalid user ID %q: %v", *mintToken, err)
		}
		token, err := auth.CreateChatToken(userID, "", secret)
		if err != nil {
			log.Fatalf("Failed to mint token: %v", err)
		}
		fmt.Println(token)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		cancel()
	}()

	a := app.NewApp()

	registry := buildRegistry()
	controller := chat.NewController(registry)
	controller.DefaultKeys = map[string]string{
		"openai":            os.Getenv("OPENAI_API_KEY"),
		"google":            os.Getenv("GEMINI_API_KEY"),
		"openai-compatible": os.Getenv("OPENAI_COMPAT_API_KEY"),
	}
	state := chat.NewServerState(controller, secret)
	state.RegisterHandlers(a.Router)

	if stripeKey := os.Getenv("STRIPE_API_KEY"); stripeKey != "" {
		stripeBilling, err := billing.NewStripeBilling(stripeKey)
		if err != nil {
			log.Printf("Failed to initialize Stripe billing: %v", err)
		} else {
			stripeBilling.SetWebhookSecret(os.Getenv("STRIPE_WEBHOOK_SECRET"))
			if err := stripeBilling.Initialize(); err != nil {
				log.Printf("Failed to initialize Stripe product and price: %v", err)
			}
			a.Router.HandleFunc("/billing/webhook", stripeBilling.HandleWebhook)
		}
	}

	server := &http.Server{
		Addr:    *addr,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Starting server on %s...", *addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	} else {
		log.Println("Server gracefully stopped")
	}
}
