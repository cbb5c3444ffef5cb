package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"student-perf/internal/client"
	"student-perf/internal/common"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	token     string
	timeout   time.Duration
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:          "perfctl <command> [flags]",
	Short:        "command line client of the student performance service.",
	Long:         "perfctl talks to a running perfserver: it requests predictions, retrains the model, manages the decision threshold and moves enrollment data in and out.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := zerolog.ParseLevel(logLevel)
		if err != nil {
			level = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(level)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	},
}

func init() {
	defaultURL := fmt.Sprintf("http://localhost:%d", common.DefaultHTTPPort)
	if v := os.Getenv("PERF_SERVER_URL"); v != "" {
		defaultURL = v
	}
	defaultToken := common.DefaultAdminToken
	if v := os.Getenv(common.EnvAdminToken); v != "" {
		defaultToken = v
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&serverURL, "server", "s", defaultURL, "base URL of the perfserver API")
	flags.StringVarP(&token, "token", "t", defaultToken, "admin bearer token")
	flags.DurationVar(&timeout, "timeout", common.DefaultRequestTimeout, "request timeout")
	flags.StringVar(&logLevel, "log-level", common.DefaultLogLevel, "log level: debug, info, warn, error")

	rootCmd.AddCommand(healthCmd, predictCmd, batchCmd, retrainCmd, thresholdCmd, importCmd, exportCmd, infoCmd)
}

func newClient() *client.Client {
	return client.New(serverURL, token, timeout)
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
