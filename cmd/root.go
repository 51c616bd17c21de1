/*
	Copyright 2023 Markus Papenbrock
*/

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	dashboardCmd "github.com/mpapenbr/sequential/pkg/cmd/dashboard"
	feedCmd "github.com/mpapenbr/sequential/pkg/cmd/feed"
	migrateCmd "github.com/mpapenbr/sequential/pkg/cmd/migrate"
	relayCmd "github.com/mpapenbr/sequential/pkg/cmd/relay"
	"github.com/mpapenbr/sequential/pkg/config"
	"github.com/mpapenbr/sequential/version"
)

const envPrefix = "SEQ"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "seq",
	Short: "Live lap telemetry relay and dashboard",
	Long: `seq collects the telemetry of a single car and shows it lap by lap.

  feed       sends recorded or synthetic telemetry to a relay
  relay      fans incoming batches out to dashboards, NATS and the archive
  dashboard  keeps the session history and serves laps, comparisons and charts
  migrate    prepares the archive database`,
	Version:      version.FullVersion,
	SilenceUsage: true,
	// commands share config variables, only the flags of the executed
	// command receive config file and environment values
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		bindFlags(cmd.Flags(), viper.GetViper())
	},
}

// Execute runs the root command. Called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.seq.yml)")
	rootCmd.PersistentFlags().StringVar(&config.DB, "db",
		"",
		"Connection string for the archive database, e.g. postgresql://user:pw@host:5432/seq")
	rootCmd.PersistentFlags().StringVar(&config.WaitForServices,
		"wait-for-services",
		"15s",
		"Duration to wait for other services to be ready")

	rootCmd.AddCommand(
		migrateCmd.NewMigrateCmd(),
		relayCmd.NewRelayCmd(),
		dashboardCmd.NewDashboardCmd(),
		feedCmd.NewFeedCmd(),
	)
}

// initConfig reads the config file and SEQ_ environment variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// .seq.yml in the home or the current directory
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".seq")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// bindFlags applies config file and environment values to flags not set on
// the command line. Dashes map to underscores, --nats-url reads SEQ_NATS_URL.
func bindFlags(fs *pflag.FlagSet, v *viper.Viper) {
	fs.VisitAll(func(f *pflag.Flag) {
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name,
				fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
				fmt.Fprintf(os.Stderr, "Could not bind env var %s: %v", f.Name, err)
			}
		}
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := fs.Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				fmt.Fprintf(os.Stderr, "Could not set flag value for %s: %v", f.Name, err)
			}
		}
	})
}
