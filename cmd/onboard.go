package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goanswer/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive first-run setup",
		Run: func(cmd *cobra.Command, args []string) {
			runOnboard()
		},
	}
}

func runOnboard() {
	cfgPath := resolveConfigPath()

	fmt.Println("GoAnswer setup")
	fmt.Println()

	if _, err := os.Stat(cfgPath); err == nil {
		overwrite := false
		confirm := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("%s already exists. Overwrite?", cfgPath)).
				Value(&overwrite),
		))
		if err := confirm.Run(); err != nil || !overwrite {
			fmt.Println("Keeping the existing config.")
			return
		}
	}

	cfg := config.Default()
	var (
		token       string
		apiKey      string
		baseURL     = cfg.API.BaseURL
		storageType = cfg.Storage.Type
		mongoURI    string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Discord bot token").
				Description("From the Discord developer portal (Bot > Token).").
				EchoMode(huh.EchoModePassword).
				Value(&token).
				Validate(required("a Discord bot token")),
			huh.NewInput().
				Title("Answer API key").
				Description("Leave empty to supply later via GOANSWER_API_KEY.").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewInput().
				Title("Answer API base URL").
				Value(&baseURL),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Conversation storage").
				Options(
					huh.NewOption("In-memory (lost on restart)", "memory"),
					huh.NewOption("MongoDB", "mongodb"),
				).
				Value(&storageType),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("MongoDB connection string").
				Placeholder("mongodb://localhost:27017").
				Value(&mongoURI),
		).WithHideFunc(func() bool { return storageType != "mongodb" }),
	)

	if err := form.Run(); err != nil {
		fmt.Println("Setup cancelled.")
		return
	}

	cfg.Channels.Discord.Enabled = true
	cfg.Channels.Discord.Token = strings.TrimSpace(token)
	cfg.API.Key = strings.TrimSpace(apiKey)
	if v := strings.TrimSpace(baseURL); v != "" {
		cfg.API.BaseURL = strings.TrimRight(v, "/")
	}
	cfg.Storage.Type = storageType

	if err := config.Save(cfgPath, cfg); err != nil {
		fmt.Printf("Failed to write %s: %s\n", cfgPath, err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Printf("Wrote %s\n", cfgPath)

	// The DSN may carry credentials, so it never lands in config.json.
	if storageType == "mongodb" {
		if mongoURI = strings.TrimSpace(mongoURI); mongoURI == "" {
			mongoURI = "mongodb://localhost:27017"
		}
		fmt.Println()
		fmt.Println("The Mongo connection string is kept out of config.json.")
		fmt.Println("Export it before starting the relay:")
		fmt.Println()
		fmt.Printf("  export GOANSWER_MONGODB_URI='%s'\n", mongoURI)
	}

	fmt.Println()
	fmt.Println("Start the relay with:  ./goanswer")
}

func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("enter %s", what)
		}
		return nil
	}
}
