package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/af-corp/persona-assistant/internal/auth"
	"github.com/af-corp/persona-assistant/internal/router"
	"github.com/jackc/pgx/v5/pgxpool"
)

const usage = `usage: modelctl <command> [flags]

commands:
  model    upsert a persisted model config
  alias    bind an alias slot (e.g. default_model) to a model config id
  list     list enabled model configs in priority order
  session  issue a session token for a user (development only)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "model":
		runModel(args)
	case "alias":
		runAlias(args)
	case "list":
		runList(args)
	case "session":
		runSession(args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func runModel(args []string) {
	fs := flag.NewFlagSet("model", flag.ExitOnError)
	id := fs.String("id", "", "model config id (required)")
	model := fs.String("model", "", "upstream model identifier (required)")
	apiKey := fs.String("api-key", "", "api key (empty inherits the upstream default)")
	baseURL := fs.String("base-url", "", "base url (empty inherits the upstream default)")
	priority := fs.Int("priority", 100, "lower values are tried first")
	disable := fs.Bool("disable", false, "store the config disabled")
	dbURL := fs.String("db-url", "", "database URL (overrides env)")
	fs.Parse(args)

	if *id == "" || *model == "" {
		fs.Usage()
		log.Fatal("-id and -model are required")
	}

	ctx, pool, done := connect(*dbURL)
	defer done()

	_, err := pool.Exec(ctx, `
		INSERT INTO model_configs (id, model_identifier, api_key, base_url, enabled, priority)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			model_identifier = EXCLUDED.model_identifier,
			api_key = EXCLUDED.api_key,
			base_url = EXCLUDED.base_url,
			enabled = EXCLUDED.enabled,
			priority = EXCLUDED.priority,
			updated_at = NOW()
	`, *id, *model, nilIfEmpty(*apiKey), nilIfEmpty(*baseURL), !*disable, *priority)
	if err != nil {
		log.Fatalf("failed to upsert model config: %v", err)
	}
	fmt.Printf("model config %s -> %s (priority %d, enabled %v)\n", *id, *model, *priority, !*disable)
}

func runAlias(args []string) {
	fs := flag.NewFlagSet("alias", flag.ExitOnError)
	name := fs.String("name", "", "alias slot name (required)")
	target := fs.String("target", "", "model config id (required)")
	dbURL := fs.String("db-url", "", "database URL (overrides env)")
	fs.Parse(args)

	if *name == "" || *target == "" {
		fs.Usage()
		log.Fatal("-name and -target are required")
	}

	ctx, pool, done := connect(*dbURL)
	defer done()

	_, err := pool.Exec(ctx, `
		INSERT INTO model_aliases (alias_name, target_id)
		VALUES ($1, $2)
		ON CONFLICT (alias_name) DO UPDATE SET target_id = EXCLUDED.target_id, updated_at = NOW()
	`, *name, *target)
	if err != nil {
		log.Fatalf("failed to upsert alias: %v", err)
	}
	fmt.Printf("alias %s -> %s\n", *name, *target)
}

func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	dbURL := fs.String("db-url", "", "database URL (overrides env)")
	fs.Parse(args)

	ctx, pool, done := connect(*dbURL)
	defer done()

	rows, err := router.NewPGConfigStore(pool).ListEnabled(ctx)
	if err != nil {
		log.Fatalf("failed to list model configs: %v", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODEL\tPRIORITY\tOWN KEY")
	for _, m := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%v\n", m.ID, m.ModelIdentifier, m.Priority, m.APIKey != "")
	}
	tw.Flush()
}

func runSession(args []string) {
	fs := flag.NewFlagSet("session", flag.ExitOnError)
	user := fs.String("user", "", "user id (required)")
	expires := fs.String("expires", "30d", "expiry duration (e.g., 30d, 720h)")
	dbURL := fs.String("db-url", "", "database URL (overrides env)")
	fs.Parse(args)

	if *user == "" {
		fs.Usage()
		log.Fatal("-user is required")
	}

	ttl, err := auth.ParseDuration(*expires)
	if err != nil {
		log.Fatalf("invalid expires: %v", err)
	}
	token, err := auth.GenerateToken()
	if err != nil {
		log.Fatalf("failed to generate token: %v", err)
	}

	ctx, pool, done := connect(*dbURL)
	defer done()

	sess, err := auth.NewCachedSessionStore(pool, nil).Create(ctx, *user, auth.HashToken(token), ttl)
	if err != nil {
		log.Fatalf("failed to create session: %v", err)
	}

	fmt.Println("=== Session Issued ===")
	fmt.Println()
	fmt.Printf("  Session ID: %s\n", sess.ID)
	fmt.Printf("  User:       %s\n", sess.UserID)
	fmt.Printf("  Expires:    %s\n", sess.ExpiresAt.Format(time.RFC3339))
	fmt.Println()
	fmt.Println("  Token (save this, it will NOT be shown again):")
	fmt.Printf("  %s\n", token)
	fmt.Println()
}

// connect opens a pool bounded by a 10s deadline for the whole command.
func connect(dbURL string) (context.Context, *pgxpool.Pool, func()) {
	dsn := dbURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		host := envOrDefault("DB_HOST", "localhost")
		port := envOrDefault("DB_PORT", "5432")
		u := envOrDefault("DB_USER", "persona")
		pass := envOrDefault("DB_PASSWORD", "persona-dev")
		dbname := envOrDefault("DB_NAME", "persona")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", u, pass, host, port, dbname)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		cancel()
		log.Fatalf("failed to connect to database: %v", err)
	}
	return ctx, pool, func() {
		pool.Close()
		cancel()
	}
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
