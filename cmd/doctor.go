package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/goanswer/internal/config"
	"github.com/nextlevelbuilder/goanswer/internal/store"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment, configuration, and connectivity health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("goanswer doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	// Config
	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Credentials:")
	checkSecret("Discord", cfg.Channels.Discord.Token)
	checkSecret("API key", cfg.API.Key)

	fmt.Println()
	fmt.Println("  Settings:")
	fmt.Printf("    %-12s %s\n", "API base:", cfg.API.BaseURL)
	fmt.Printf("    %-12s %s\n", "Storage:", cfg.Storage.Type)
	if strings.EqualFold(cfg.Storage.Type, "mongodb") {
		fmt.Printf("    %-12s %s/%s\n", "Mongo:", cfg.Storage.Database, cfg.Storage.Collection)
		if cfg.Storage.MongoURI == "" {
			fmt.Printf("    %-12s GOANSWER_MONGODB_URI not set (will fall back to memory)\n", "Mongo URI:")
		}
	}

	// Connectivity checks run in parallel; each reports independently.
	fmt.Println()
	fmt.Println("  Connectivity:")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var apiResult, mongoResult string
	var g errgroup.Group
	g.Go(func() error {
		apiResult = checkAnswerAPI(ctx, cfg.API.BaseURL)
		return nil
	})
	g.Go(func() error {
		mongoResult = checkMongo(ctx, cfg.Storage)
		return nil
	})
	_ = g.Wait()

	fmt.Printf("    %-12s %s\n", "Answer API:", apiResult)
	if mongoResult != "" {
		fmt.Printf("    %-12s %s\n", "MongoDB:", mongoResult)
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkSecret(name, value string) {
	if value == "" {
		fmt.Printf("    %-12s (not configured)\n", name+":")
		return
	}
	masked := "(set)"
	if len(value) > 8 {
		masked = value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
	}
	fmt.Printf("    %-12s %s\n", name+":", masked)
}

// checkAnswerAPI reports whether the answer service host responds at all.
// Any HTTP status counts as reachable; only transport errors fail.
func checkAnswerAPI(ctx context.Context, baseURL string) string {
	if baseURL == "" {
		return "SKIPPED (no base URL)"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return fmt.Sprintf("FAILED (%s)", err)
	}
	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		return fmt.Sprintf("UNREACHABLE (%s)", err)
	}
	defer resp.Body.Close()
	return fmt.Sprintf("reachable (HTTP %d)", resp.StatusCode)
}

// checkMongo attempts a real connection when mongodb storage is configured.
// Returns "" when the check does not apply.
func checkMongo(ctx context.Context, cfg config.StorageConfig) string {
	if !strings.EqualFold(cfg.Type, "mongodb") {
		return ""
	}
	if cfg.MongoURI == "" {
		return "SKIPPED (no URI)"
	}

	ms, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.Database, cfg.Collection)
	if err != nil {
		return fmt.Sprintf("CONNECT FAILED (%s)", err)
	}
	ms.Close(ctx)
	return "connected"
}
