package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/merklebox/merklebox/internal/server"
	"github.com/merklebox/merklebox/internal/version"
)

func main() {
	var envFile string
	var addr string
	var certFile string
	var keyFile string

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	slog.SetDefault(slog.New(handler))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:     "merklebox-server",
		Short:   "MerkleBox server",
		Version: version.Detailed(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
				slog.Warn("dotenv load", "file", envFile, "error", err)
			}

			config := server.ConfigFromEnv()
			if cmd.Flag("bind").Changed {
				config.HTTP.Addr = addr
			}
			if certFile != "" {
				config.HTTP.CertFile = certFile
			}
			if keyFile != "" {
				config.HTTP.KeyFile = keyFile
			}

			s, err := server.New(config)
			if err != nil {
				return err
			}

			defer slog.Info("Bye!")
			return s.Start(cmd.Context())
		},
	}

	rootCmd.Flags().StringVarP(&envFile, "env", "e", ".env", "Path to the env file")
	rootCmd.Flags().StringVarP(&addr, "bind", "b", server.DefaultAddr, "Address to bind the server")
	rootCmd.Flags().StringVarP(&certFile, "cert", "c", "", "Path to the certificate file")
	rootCmd.Flags().StringVarP(&keyFile, "key", "k", "", "Path to the key file")

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
