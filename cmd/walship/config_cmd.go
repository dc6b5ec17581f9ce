package main

import (
	"fmt"
	"net"

	"github.com/MacJediWizard/walship/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage default settings",
	}

	cmd.AddCommand(
		newConfigShowCmd(global),
		newConfigSetCollectorCmd(global),
	)

	return cmd
}

func configPath(global *globalOptions) (string, error) {
	if global.configPath != "" {
		return global.configPath, nil
	}
	return config.DefaultConfigPath()
}

func newConfigShowCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(global)
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config file:     %s\n", path)
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Collector:       %s\n", orUnset(cfg.Collector))
			fmt.Fprintf(out, "Password:        %s\n", maskSecret(cfg.Password))
			fmt.Fprintf(out, "Index name:      %s\n", orUnset(cfg.IndexName))
			fmt.Fprintf(out, "Hostname:        %s\n", orUnset(cfg.Hostname))
			if cfg.WriteTimeout != 0 {
				fmt.Fprintf(out, "Write timeout:   %s\n", cfg.WriteTimeout)
			}
			if cfg.ConnectTimeout != 0 {
				fmt.Fprintf(out, "Connect timeout: %s\n", cfg.ConnectTimeout)
			}
			if cfg.BaseBackupPath != "" {
				fmt.Fprintf(out, "pg_basebackup:   %s\n", cfg.BaseBackupPath)
			}
			if cfg.DiskWarningPercent != 0 || cfg.DiskCriticalPercent != 0 {
				fmt.Fprintf(out, "Disk warning:    %v%% / critical %v%%\n", cfg.DiskWarningPercent, cfg.DiskCriticalPercent)
			}
			if cfg.MetricsFile != "" {
				fmt.Fprintf(out, "Metrics file:    %s\n", cfg.MetricsFile)
			}
			return nil
		},
	}
}

func newConfigSetCollectorCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-collector <host:port>",
		Short: "Set the default collector address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := args[0]
			if _, _, err := net.SplitHostPort(addr); err != nil {
				return fmt.Errorf("invalid collector address: %w", err)
			}

			path, err := configPath(global)
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			cfg.Collector = addr

			if err := cfg.Save(path); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Collector set to: %s\n", cfg.Collector)
			return nil
		},
	}
}

func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
