// Command zfscrypt-bench exercises the encryption core end to end: generate
// a dataset key, wrap/unwrap it, and encrypt/decrypt synthetic blocks while
// reporting throughput.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"zfscrypt/config"
	"zfscrypt/telemetry"
)

var (
	configPath string
	envFile    string
	cfg        *config.Config
	logger     = telemetry.NewLogger("info")
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zfscrypt-bench",
		Short: "Exercise dataset key management, key wrapping, and per-block encryption",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath, envFile)
			if err != nil {
				return err
			}
			cfg = loaded
			logger = telemetry.NewLogger(cfg.LogLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file of ZFSCRYPT_* overrides")

	cmd.AddCommand(newKeygenCommand())
	cmd.AddCommand(newWrapCommand())
	cmd.AddCommand(newUnwrapCommand())
	cmd.AddCommand(newBenchCommand())
	return cmd
}
