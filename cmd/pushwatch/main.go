// Command pushwatch runs the push notification service.
//
// Usage:
//
//	pushwatch serve
//	pushwatch run-checks
//	pushwatch vapid-keys
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:           "pushwatch",
		Short:         "Push notification checks and delivery",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(runChecksCmd())
	root.AddCommand(vapidKeysCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
