package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	host  string
	actor string
	role  string
)

var rootCmd = &cobra.Command{
	Use:   "bracketctl",
	Short: "A CLI to drive the bracket engine server",
	Long: `A command-line interface for organizers and players to generate brackets,
report results and resolve disputes against a running bracket engine.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&host, "host", "http://localhost:8080", "The host address of the server")
	rootCmd.PersistentFlags().StringVar(&actor, "as", "", "Actor id sent with each request")
	rootCmd.PersistentFlags().StringVar(&role, "role", "participant", "Actor role: participant or organizer")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Whoops. There was an error while executing your command '%s'\n", err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
