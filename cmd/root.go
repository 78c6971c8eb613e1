// Package cmd implements the gointel command-line interface. It wires
// the root command, global flags and configuration bootstrap for the
// phase subcommands.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdbuild "github.com/jonesrussell/gointel/cmd/build"
	cmdexport "github.com/jonesrussell/gointel/cmd/export"
	cmdextract "github.com/jonesrussell/gointel/cmd/extract"
	cmdreset "github.com/jonesrussell/gointel/cmd/reset"
	cmdschedule "github.com/jonesrussell/gointel/cmd/schedule"
	cmdserve "github.com/jonesrussell/gointel/cmd/serve"
	cmdstatus "github.com/jonesrussell/gointel/cmd/status"
	"github.com/jonesrussell/gointel/internal/config"
)

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// debug enables debug logging for all commands.
	debug bool

	// rootCmd represents the root command for the gointel CLI.
	rootCmd = &cobra.Command{
		Use:   "gointel",
		Short: "Market intelligence collection pipeline",
		Long: `gointel discovers SaaS products from public directories and enriches
them into structured market intelligence records. Discovery and
extraction run as separate phases against a shared target ledger, so
either phase can be re-run or scheduled on its own.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command. The context carries interrupt
// cancellation so in-flight phases can wind down.
func Execute(ctx context.Context) error {
	// Parse flags early so --config is known before Viper reads it.
	_ = rootCmd.ParseFlags(os.Args[1:])

	if err := config.InitializeViper(cfgFile); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	if err := bindCommandLineFlags(); err != nil {
		return err
	}

	return rootCmd.ExecuteContext(ctx)
}

// init initializes the root command and its subcommands.
func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default is ./config.yaml or ./config/config.yaml)",
	)
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gointel version %s\n", viper.GetString("app.version"))
		},
	})

	rootCmd.AddCommand(cmdbuild.Command())
	rootCmd.AddCommand(cmdextract.Command())
	rootCmd.AddCommand(cmdstatus.Command())
	rootCmd.AddCommand(cmdreset.Command())
	rootCmd.AddCommand(cmdexport.Command())
	rootCmd.AddCommand(cmdschedule.Command())
	rootCmd.AddCommand(cmdserve.Command())
}

// bindCommandLineFlags binds command-line flags to Viper.
func bindCommandLineFlags() error {
	if err := viper.BindPFlag("app.debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("failed to bind debug flag: %w", err)
	}
	return nil
}
