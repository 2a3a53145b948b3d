package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/merklebox/merklebox/internal/client/config"
)

var (
	red   = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green = color.New(color.FgHiGreen).SprintFunc()
	cyan  = color.New(color.FgHiCyan).SprintFunc()
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func newInitCmd() *cobra.Command {
	var user string
	var dataDir string
	var serverURL string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the MerkleBox workspace config",
		Run: func(cmd *cobra.Command, args []string) {
			if cfg, err := config.LoadClientConfig(config.DefaultConfigPath); err == nil {
				fmt.Println("MerkleBox already initialized")
				printConfig(cfg)
				os.Exit(0)
			}

			if user == "" {
				fmt.Printf("%s: %s\n", red("ERROR"), "user is required")
				os.Exit(1)
			}

			cfg := &config.Config{
				User:                user,
				DataDir:             dataDir,
				ServerURL:           serverURL,
				DeviceID:            config.GenerateDeviceID(),
				SyncIntervalSeconds: config.DefaultSyncIntervalSeconds,
			}

			if err := cfg.Save(config.DefaultConfigPath); err != nil {
				fmt.Printf("%s: %s\n", red("ERROR"), err)
				os.Exit(1)
			}
			cfg.Path = config.DefaultConfigPath

			fmt.Println("MerkleBox initialized")
			printConfig(cfg)
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "User the workspace belongs to")
	cmd.Flags().StringVarP(&dataDir, "datadir", "d", config.DefaultDataDir, "MerkleBox data directory")
	cmd.Flags().StringVarP(&serverURL, "server", "s", config.DefaultServerURL, "MerkleBox server URL")

	return cmd
}

func printConfig(cfg *config.Config) {
	fmt.Printf("Config Path: %s\n", green(cfg.Path))
	fmt.Printf("User:        %s\n", cyan(cfg.User))
	fmt.Printf("Device ID:   %s\n", cyan(cfg.DeviceID))
	fmt.Printf("Data Dir:    %s\n", cyan(cfg.DataDir))
	fmt.Printf("Server:      %s\n", cyan(cfg.ServerURL))
}
