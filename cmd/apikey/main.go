// Command apikey manages provider credentials and API client tokens.
//
//	apikey set -provider gemini -key ...   store a provider key
//	apikey list                             show which providers have a stored key
//	apikey token -sub client-1 -ttl 720h    mint a bearer token for the API
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"notebook/internal/infra"
	"notebook/internal/infra/credentials"
	"notebook/internal/middleware"
)

var envKeys = map[string]string{
	credentials.ProviderAutoContent: "AUTOCONTENT_API_KEY",
	credentials.ProviderGemini:      "GEMINI_API_KEY",
	credentials.ProviderOpenAI:      "OPENAI_API_KEY",
}

func main() {
	_ = godotenv.Load()
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: apikey set|list|token [flags]")
	}
	switch args[0] {
	case "set":
		return runSet(args[1:], out)
	case "list":
		return runList(out)
	case "token":
		return runToken(args[1:], out, time.Now)
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func runSet(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	providerFlag := fs.String("provider", credentials.ProviderAutoContent, "provider to configure (autocontent, gemini or openai)")
	keyFlag := fs.String("key", "", "API key (falls back to the provider's environment variable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	provider := strings.ToLower(strings.TrimSpace(*providerFlag))
	envKey, ok := envKeys[provider]
	if !ok {
		return fmt.Errorf("unsupported provider %q", *providerFlag)
	}
	key := strings.TrimSpace(*keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv(envKey))
	}
	if key == "" {
		return fmt.Errorf("%s API key is required via -key or %s", provider, envKey)
	}

	return withStore(provider, func(ctx context.Context, store *credentials.Store) error {
		if err := store.Set(ctx, provider, key); err != nil {
			return fmt.Errorf("failed to persist %s api key: %w", provider, err)
		}
		fmt.Fprintf(out, "%s API key stored successfully\n", strings.ToUpper(provider))
		return nil
	})
}

func runList(out io.Writer) error {
	return withStore("", func(ctx context.Context, store *credentials.Store) error {
		entries, err := store.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list api keys: %w", err)
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "no stored api keys")
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(out, "%-12s updated %s\n", e.Provider, e.UpdatedAt.Format(time.RFC3339))
		}
		return nil
	})
}

func runToken(args []string, out io.Writer, now func() time.Time) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	sub := fs.String("sub", "", "client id placed in the token subject")
	locale := fs.String("locale", "", "default output language for the client")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime, 0 for no expiry")
	if err := fs.Parse(args); err != nil {
		return err
	}
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	claims := middleware.TokenClaims{Sub: strings.TrimSpace(*sub), Locale: strings.TrimSpace(*locale), Issuer: "notebook"}
	if *ttl > 0 {
		claims.Exp = now().Add(*ttl).Unix()
	}
	token, err := middleware.SignJWT(secret, claims)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func withStore(provider string, fn func(ctx context.Context, store *credentials.Store) error) error {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("DATABASE_URL is required: %w", err)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "apikey").Str("provider", provider).Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, &logger))
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	return fn(ctx, store)
}
