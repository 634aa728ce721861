package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"vibegraph/internal/auth"
	"vibegraph/internal/config"
	"vibegraph/internal/crypto"
	"vibegraph/internal/jobs"
	"vibegraph/internal/logging"
	"vibegraph/internal/metrics"
	"vibegraph/internal/store/graphdb"
	"vibegraph/internal/xclient"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "run":
		cmdRun()
	case "tick":
		cmdTick()
	case "refresh-views":
		cmdRefreshViews()
	case "score":
		cmdScore()
	case "store-token":
		cmdStoreToken()
	default:
		printHelp()
	}
}

func printHelp() {
	fmt.Println("Usage: vibegraph <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init           Create a config file at ./vibegraph.yaml")
	fmt.Println("  run            Run the ingestion scheduler and metrics server")
	fmt.Println("  tick           Run a single ingestion tick")
	fmt.Println("  refresh-views  Rebuild the degree views now")
	fmt.Println("  score          Show degree scores between two users")
	fmt.Println("  store-token    Encrypt and store a token read from stdin")
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

// mustOpen loads config, validates it, and opens the encrypted store.
// Any credential or key problem is fatal here, before anything runs.
func mustOpen(cfgPath string) (config.Config, *graphdb.DB) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}
	key, err := cfg.EncryptionKey()
	if err != nil {
		fatal(err)
	}
	env, err := crypto.New(key)
	if err != nil {
		fatal(err)
	}
	db, err := graphdb.Open(cfg.Storage.DBPath, env)
	if err != nil {
		fatal(err)
	}
	return cfg, db
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "./vibegraph.yaml", "path to write config")
	_ = fs.Parse(os.Args[2:])
	if err := config.Save(*path, config.Default()); err != nil {
		fatal(err)
	}
	abs, _ := filepath.Abs(*path)
	fmt.Println("Config written to:", abs)
	fmt.Println("Set TOKEN_ENCRYPTION_KEY (openssl rand -hex 32) before running.")
}

func cmdRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./vibegraph.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	cfg, db := mustOpen(*cfgPath)
	defer db.Close()

	if cfg.MetricsAddr != "" {
		metrics.StartServer(cfg.MetricsAddr)
	}
	if !cfg.CanRefreshToken() {
		logging.Warn("client credentials not set: automatic token refresh disabled", nil)
	}

	client := xclient.NewHTTPClient()
	am := auth.NewManager(db, client, cfg.Credentials.ClientID, cfg.Credentials.ClientSecret)
	runner := jobs.NewRunner(db, client, am, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logging.Info("scheduler starting", map[string]any{
		"tick_interval": cfg.Ingestion.TickInterval.String(),
		"hashtag":       cfg.Account.Hashtag,
	})
	if err := runner.RunLoop(ctx); err != nil && err != context.Canceled {
		fatal(err)
	}
}

func cmdTick() {
	fs := flag.NewFlagSet("tick", flag.ExitOnError)
	cfgPath := fs.String("config", "./vibegraph.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	cfg, db := mustOpen(*cfgPath)
	defer db.Close()

	client := xclient.NewHTTPClient()
	am := auth.NewManager(db, client, cfg.Credentials.ClientID, cfg.Credentials.ClientSecret)
	runner := jobs.NewRunner(db, client, am, cfg)
	if err := runner.TickOnce(context.Background()); err != nil {
		fatal(err)
	}
}

func cmdRefreshViews() {
	fs := flag.NewFlagSet("refresh-views", flag.ExitOnError)
	cfgPath := fs.String("config", "./vibegraph.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	_, db := mustOpen(*cfgPath)
	defer db.Close()

	results, err := db.RefreshDegreeViews(context.Background())
	for _, r := range results {
		fmt.Printf("degree %d rebuilt in %s\n", r.Degree, r.Duration)
	}
	if err != nil {
		fatal(err)
	}
}

func cmdScore() {
	fs := flag.NewFlagSet("score", flag.ExitOnError)
	cfgPath := fs.String("config", "./vibegraph.yaml", "config path")
	requester := fs.String("requester", "", "requester username")
	target := fs.String("target", "", "target username")
	_ = fs.Parse(os.Args[2:])
	if *requester == "" || *target == "" {
		fatal(fmt.Errorf("-requester and -target are required"))
	}
	_, db := mustOpen(*cfgPath)
	defer db.Close()

	ctx := context.Background()
	requesterID, err := db.UserIDByUsername(ctx, *requester)
	if err != nil {
		fatal(fmt.Errorf("requester @%s: %w", *requester, err))
	}
	scores, err := db.DegreeScore(ctx, requesterID, *target)
	if err != nil {
		fatal(err)
	}
	total, err := db.VibeCount(ctx)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("@%s -> @%s: 1°=%d 2°=%d 3°=%d (%d total vibes recorded)\n",
		*requester, *target, scores[0], scores[1], scores[2], total)
}

// cmdStoreToken reads a token from stdin so it never appears in argv or
// shell history, encrypts it, and stores it.
func cmdStoreToken() {
	fs := flag.NewFlagSet("store-token", flag.ExitOnError)
	cfgPath := fs.String("config", "./vibegraph.yaml", "config path")
	kind := fs.String("kind", "access", "token kind: access or refresh")
	_ = fs.Parse(os.Args[2:])
	if *kind != "access" && *kind != "refresh" {
		fatal(fmt.Errorf("-kind must be access or refresh"))
	}
	_, db := mustOpen(*cfgPath)
	defer db.Close()

	fmt.Fprintln(os.Stderr, "Paste token and press enter:")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		fatal(err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		fatal(fmt.Errorf("empty token"))
	}

	ctx := context.Background()
	if *kind == "access" {
		err = db.SaveBotAccessToken(ctx, token)
	} else {
		err = db.SaveBotRefreshToken(ctx, token)
	}
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Stored %s token %s\n", *kind, auth.Mask(token))
}
