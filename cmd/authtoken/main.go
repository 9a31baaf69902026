// Command authtoken performs the one-time Google consent flow and prints the
// refresh token to store as GOOGLE_REFRESH_TOKEN.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aytida12/Customer-Interaction-Agent/internal/googleauth"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	code := flag.String("code", "", "authorization code from the consent redirect (prompted for when empty)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	auth, err := googleauth.New()
	if err != nil {
		slog.Error("Failed to configure Google OAuth", "error", err)
		os.Exit(1)
	}

	if *code == "" {
		fmt.Println("Open this URL, approve access, then paste the code parameter from the redirect:")
		fmt.Println()
		fmt.Println(auth.AuthCodeURL(uuid.NewString()))
		fmt.Println()
		fmt.Print("Code: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			slog.Error("Failed to read authorization code", "error", err)
			os.Exit(1)
		}
		*code = strings.TrimSpace(line)
	}
	if *code == "" {
		slog.Error("No authorization code given")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	tok, err := auth.Exchange(ctx, *code)
	if err != nil {
		slog.Error("Token exchange failed", "error", err)
		os.Exit(1)
	}
	if tok.RefreshToken == "" {
		slog.Error("Google returned no refresh token; revoke the app's access and run again")
		os.Exit(1)
	}
	fmt.Printf("GOOGLE_REFRESH_TOKEN=%s\n", tok.RefreshToken)
}
