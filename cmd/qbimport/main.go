// Command qbimport imports exam documents and spreadsheets into the
// question bank from the terminal.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:           "qbimport",
		Short:         "Import questions into the question bank",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v.SetEnvPrefix("QBIMPORT")
			v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
			v.AutomaticEnv()
			if cfgFile != "" {
				v.SetConfigFile(cfgFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config %s: %w", cfgFile, err)
				}
			}
			return v.BindPFlags(cmd.Flags())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	pf.String("backend", "local", "where questions go: local or remote")
	pf.String("db_driver", "sqlite", "local database driver: sqlite or postgres")
	pf.String("db_dsn", "", "local database DSN")
	pf.String("blob_base_path", "./data", "directory for uploaded images (local backend)")
	pf.String("public_url", "", "public base URL of the gateway serving /assets")
	pf.String("backend_url", "", "base URL of the remote question-bank API")
	pf.String("log_level", "warn", "log level")
	pf.String("log_format", "text", "log format: text or json")
	for _, name := range []string{"backend", "db_driver", "db_dsn", "blob_base_path", "public_url", "backend_url", "log_level", "log_format"} {
		_ = v.BindPFlag(name, pf.Lookup(name))
	}

	root.AddCommand(newImportCmd(v))
	return root
}
