package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/merklebox/merklebox/internal/client"
	"github.com/merklebox/merklebox/internal/client/config"
	"github.com/merklebox/merklebox/internal/version"
)

var (
	home, _        = os.UserHomeDir()
	configFileName = "config"
)

var rootCmd = &cobra.Command{
	Use:     "merklebox",
	Short:   "MerkleBox sync client",
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := configFromViper()
		if err := cfg.Validate(); err != nil {
			return err
		}

		cmd.SilenceUsage = true
		showHeader()

		c, err := client.New(cfg)
		if err != nil {
			return err
		}

		defer slog.Info("Bye!")
		return c.Start(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("user", "u", "", "User the workspace belongs to")
	rootCmd.Flags().StringP("datadir", "d", config.DefaultDataDir, "MerkleBox data directory")
	rootCmd.Flags().StringP("server", "s", config.DefaultServerURL, "MerkleBox server URL")
	rootCmd.Flags().IntP("interval", "i", config.DefaultSyncIntervalSeconds, "Sync interval in seconds")
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "MerkleBox config file")
}

func configFromViper() *config.Config {
	cfg := &config.Config{
		Path:                viper.ConfigFileUsed(),
		User:                viper.GetString("user"),
		DataDir:             viper.GetString("data_dir"),
		ServerURL:           viper.GetString("server_url"),
		DeviceID:            viper.GetString("device_id"),
		SyncIntervalSeconds: viper.GetInt("sync_interval_seconds"),
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = config.GenerateDeviceID()
	}
	return cfg
}

func main() {
	handler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	slog.SetDefault(slog.New(handler))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(filepath.Join(home, ".merklebox"))
		viper.AddConfigPath(filepath.Join(home, ".config/merklebox"))
		viper.SetConfigName(configFileName)
		viper.SetConfigType("json")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("user", cmd.Flags().Lookup("user"))
	viper.BindPFlag("data_dir", cmd.Flags().Lookup("datadir"))
	viper.BindPFlag("server_url", cmd.Flags().Lookup("server"))
	viper.BindPFlag("sync_interval_seconds", cmd.Flags().Lookup("interval"))

	viper.SetEnvPrefix("MBOX")
	viper.AutomaticEnv()

	return nil
}

func showHeader() {
	color.New(color.FgHiCyan, color.Bold).Printf("%s %s\n", version.AppName, version.Version)
}
