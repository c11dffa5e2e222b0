package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; it carries VOYAGE_API_KEY and the Slack webhook
	// during local development. Config values reference them via ${VAR}.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		os.Stderr.WriteString("warning: could not load .env: " + err.Error() + "\n")
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
