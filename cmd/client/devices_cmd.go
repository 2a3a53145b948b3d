package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/merklebox/merklebox/internal/mbsdk"
)

func init() {
	rootCmd.AddCommand(newDevicesCmd())
}

func newDevicesCmd() *cobra.Command {
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List devices registered for this user",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFromViper()
			if err := cfg.Validate(); err != nil {
				return err
			}

			cmd.SilenceUsage = true

			sdk, err := mbsdk.New(cfg.ServerURL)
			if err != nil {
				return err
			}
			defer sdk.Close()

			if err := sdk.Login(cfg.User, cfg.DeviceID); err != nil {
				return err
			}

			devices, err := sdk.Tree.ListDevices(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DEVICE\tVERSION\tROOT\tUPDATED")
			for _, d := range devices {
				root := "(empty)"
				if d.RootHash != nil && *d.RootHash != "" {
					root = (*d.RootHash)[:12]
				}
				updated := "never"
				if !d.UpdatedAt.IsZero() {
					updated = humanize.Time(d.UpdatedAt.Local())
				}
				marker := ""
				if d.DeviceID == cfg.DeviceID {
					marker = " (this device)"
				}
				fmt.Fprintf(w, "%s%s\t%d\t%s\t%s\n", d.DeviceID, marker, d.Version, root, updated)
			}
			return w.Flush()
		},
	}

	return devicesCmd
}
