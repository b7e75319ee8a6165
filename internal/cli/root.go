// Package cli provides the command-line interface for EmpathyConnect.
package cli

import (
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultServerURL = "http://localhost:8080"

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string
	verbose   bool

	api *apiClient
	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "empathy",
	Short: "EmpathyConnect terminal client",
	Long: `empathy talks to an EmpathyConnect server.

Chat with the companion from the terminal, or review the crisis alerts raised
by conversations.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		if serverURL == "" {
			serverURL = os.Getenv("EMPATHY_SERVER_URL")
		}
		if serverURL == "" {
			serverURL = defaultServerURL
		}

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		api = newAPIClient(strings.TrimRight(serverURL, "/"))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "server base URL (default $EMPATHY_SERVER_URL or "+defaultServerURL+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(alertsCmd)
}
