// Anonymous conversation proxy.
//
// The application fronts the upstream conversation backend with an
// OpenAI-compatible /v1/chat/completions endpoint. It maintains a rotating
// anonymous session and device identity in the background, answers the
// backend's proof-of-work challenge per request, and transcodes the upstream
// event stream into standard completion chunks.
//
// Commands:
//
//	serve   Run the proxy server (default)
//	chat    Interactive streaming chat against a running instance
//	token   Mint a client JWT (requires AUTH_JWT_SECRET)
//
// Environment Variables:
//   - BASE_URL: Root URL of the conversation backend
//   - APP_PORT: Listen port (default 3000)
//   - API_TOKEN: Bearer token callers must present (generated if unset)
//   - AUTH_JWT_SECRET: Enables JWT client authentication
//   - SESSION_ROLL_INTERVAL: Background rotation interval (default 1m)
//   - SESSION_MAX_RETRIES: Rotation retry bound (default 5)
//   - DISABLE_AUTH: Set to "true" or "1" to bypass the client auth gate
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"anonchat-proxy/internal/app"
	"anonchat-proxy/internal/auth"
	"anonchat-proxy/internal/llm"
	"anonchat-proxy/pkg/client"
	"anonchat-proxy/pkg/models"
	"anonchat-proxy/pkg/utils"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment variables from .env file")
	}

	rootCmd := &cobra.Command{
		Use:   "anonchat-proxy",
		Short: "OpenAI-compatible proxy over the anonymous conversation backend",
		Run: func(cmd *cobra.Command, args []string) {
			serve()
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy server",
		Run: func(cmd *cobra.Command, args []string) {
			serve()
		},
	}

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive streaming chat against a running proxy instance",
		Run: func(cmd *cobra.Command, args []string) {
			baseURL, _ := cmd.Flags().GetString("url")
			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				token = os.Getenv("API_TOKEN")
			}
			runChat(baseURL, token)
		},
	}
	chatCmd.Flags().String("url", "http://localhost:3000", "Proxy base URL")
	chatCmd.Flags().String("token", "", "Bearer token (defaults to API_TOKEN)")

	tokenCmd := &cobra.Command{
		Use:   "token [subject]",
		Short: "Mint a client JWT signed with AUTH_JWT_SECRET",
		Run: func(cmd *cobra.Command, args []string) {
			secret := os.Getenv("AUTH_JWT_SECRET")
			if secret == "" {
				log.Fatal("AUTH_JWT_SECRET is not set")
			}
			subject := "cli"
			if len(args) > 0 {
				subject = args[0]
			}
			token, err := auth.CreateAccessToken(subject, secret)
			if err != nil {
				log.Fatalf("Failed to mint token: %v", err)
			}
			fmt.Println(token)
		},
	}

	rootCmd.AddCommand(serveCmd, chatCmd, tokenCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		cancel()
	}()

	state := llm.NewServerState()
	go state.Service.Sessions().Run(ctx)

	a := app.NewApp(state)
	cfg := llm.GetConfig()

	server := &http.Server{
		Addr:    llm.Addr(),
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on %s", server.Addr)
		log.Printf("Server running with token %s", utils.MaskToken(cfg.APIToken))
		log.Printf("Server running with endpoints [/v1/chat/completions]")
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

// chatHandler prints streamed deltas and keeps the reply for history.
type chatHandler struct {
	buffer strings.Builder
}

func (h *chatHandler) OnContent(content string) {
	h.buffer.WriteString(content)
	fmt.Print(content)
}

func (h *chatHandler) OnError(err error) {
	fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
}

func (h *chatHandler) OnComplete() {
	fmt.Println()
}

func runChat(baseURL, token string) {
	c := client.New(baseURL, token)
	scanner := bufio.NewScanner(os.Stdin)
	var messages []models.Message

	fmt.Println("Starting chat session (type 'exit' to quit)")
	fmt.Println("----------------------------------------")

	for {
		fmt.Print("\nYou: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" {
			break
		}

		messages = append(messages, models.Message{Role: "user", Content: input})

		handler := &chatHandler{}
		fmt.Print("\nAssistant: ")
		if err := c.StreamChat(messages, handler); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}

		messages = append(messages, models.Message{Role: "assistant", Content: handler.buffer.String()})
	}
}
