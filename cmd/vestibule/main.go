package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "vestibule",
	Short: "Vestibule — group join gatekeeper bot",
	Long:  "Vestibule is a Telegram bot that intercepts join requests for a managed group, walks each requester through an identification dialogue in private, and approves the request only once the dialogue completes.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/vestibule.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
