package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/portalauth/config"
	"github.com/jmcleod/portalauth/internal/logging"
	"github.com/jmcleod/portalauth/session"
)

var (
	apiURL     string
	realmName  string
	dataDir    string
	storeKind  string
	logLevel   string
	jsonOutput bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "portalauth",
	Short: "Manage portal login sessions",
	Long: `portalauth logs in to the payroll portal backend and keeps the resulting
session on disk for other tools to reuse.

Environment Variables:
  PORTALAUTH_API_URL           Backend base URL (default: http://localhost:8080)
  PORTALAUTH_REALM             admin, organization or employee (default: employee)
  PORTALAUTH_DATA_DIR          Directory holding session.db
  PORTALAUTH_STORE             bbolt, postgres, memory or none (default: bbolt)
  PORTALAUTH_POSTGRES_DSN      Connection string for the postgres store
  PORTALAUTH_STORE_PASSPHRASE  Encrypts stored session values when set
  PORTALAUTH_REQUEST_TIMEOUT   Backend request timeout (default: 30s)
  PORTALAUTH_POLL_INTERVAL     Session re-check interval for watch (default: 30s)
  LOG_LEVEL, LOG_FORMAT        Logging (default: info, text)

Variables may also be placed in a .env file in the working directory.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Backend base URL (overrides PORTALAUTH_API_URL)")
	rootCmd.PersistentFlags().StringVar(&realmName, "realm", "", "Realm: admin, organization or employee (overrides PORTALAUTH_REALM)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Session data directory (overrides PORTALAUTH_DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&storeKind, "store", "", "Session store: bbolt, postgres, memory or none (overrides PORTALAUTH_STORE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON instead of human-readable text")
}

// loadConfig resolves configuration from .env, the environment and flags,
// in increasing priority.
func loadConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	c, err := config.Load()
	if err != nil {
		return err
	}
	if apiURL != "" {
		c.APIURL = apiURL
	}
	if realmName != "" {
		r, err := session.ParseRealm(realmName)
		if err != nil {
			return err
		}
		c.Realm = r
	}
	if dataDir != "" {
		c.DataDir = dataDir
	}
	if storeKind != "" {
		c.Store = storeKind
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Init(os.Stderr, c.LogLevel, c.LogFormat)
	cfg = c
	return nil
}
