// Package main is the entry point for the kultrip command line chat.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kultrip/story-travel/cmd/kultrip/commands"
)

var (
	cfgFile string
	server  string
)

var rootCmd = &cobra.Command{
	Use:   "kultrip",
	Short: "Kultrip CLI - story-inspired travel planning",
	Long: `Kultrip plans trips around the books, films and series you love.
Chat with the travel assistant or browse the stories behind each destination.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(commands.ChatCmd)
	rootCmd.AddCommand(commands.DestinationsCmd)
	rootCmd.AddCommand(commands.StoriesCmd)
	rootCmd.AddCommand(commands.DestinationCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.kultrip.yaml)")
	rootCmd.PersistentFlags().StringVar(&server, "server", "http://localhost:8080", "Kultrip server URL")

	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".kultrip")
	}

	// KULTRIP_SERVER overrides the flag default.
	viper.SetEnvPrefix("kultrip")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}
