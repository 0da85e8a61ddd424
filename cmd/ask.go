package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goanswer/internal/answer"
	"github.com/nextlevelbuilder/goanswer/internal/config"
)

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Send a one-shot question to the answer API",
		Long: `Send a question straight to the configured answer API, bypassing
Discord. Useful to verify the API key and base URL before going live.

Examples:
  goanswer ask "What is DocsGPT?"
  goanswer ask how do I configure mongodb storage`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runAsk(strings.Join(args, " "))
		},
	}
}

func runAsk(question string) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	client := answer.New(cfg.API.BaseURL, cfg.API.Key)
	res := client.Ask(context.Background(), question, nil, "")
	fmt.Println(res.Answer)
}
