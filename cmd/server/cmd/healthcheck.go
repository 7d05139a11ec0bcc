package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var healthcheckURL string

// healthcheckCmd exists for container HEALTHCHECK directives, where curl
// may not be installed in the image.
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Probe a running server's health endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(healthcheckURL)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("health check returned %d", resp.StatusCode)
		}
		fmt.Println("ok")
		return nil
	},
}

func init() {
	healthcheckCmd.Flags().StringVar(&healthcheckURL, "url", "http://localhost:8080/healthz", "health endpoint URL")
	rootCmd.AddCommand(healthcheckCmd)
}
