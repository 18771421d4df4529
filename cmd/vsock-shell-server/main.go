// Command vsock-shell-server listens on an AF_VSOCK port and serves
// shell and file-transfer sessions to connecting clients, grounded on
// _examples/original_source/server/main.c's option set.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vsockshell/vsockshell/internal/config"
	"github.com/vsockshell/vsockshell/internal/logging"
	"github.com/vsockshell/vsockshell/internal/serverapp"
)

func main() {
	var (
		port        uint32
		logLevel    string
		useSyslog   bool
		metricsAddr string
		configPath  string
	)

	root := &cobra.Command{
		Use:   "vsock-shell-server",
		Short: "Serve interactive shells and file transfer over AF_VSOCK",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServerConfig(configPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("port") && cfg.Port != 0 {
				port = cfg.Port
			}
			if !cmd.Flags().Changed("log-level") && cfg.LogLevel != "" {
				logLevel = cfg.LogLevel
			}
			if !cmd.Flags().Changed("syslog") && cfg.Syslog {
				useSyslog = cfg.Syslog
			}
			if !cmd.Flags().Changed("metrics-addr") && cfg.MetricsAddr != "" {
				metricsAddr = cfg.MetricsAddr
			}

			if err := logging.Init(logLevel, useSyslog, logging.IdentServer); err != nil {
				return fmt.Errorf("init logging: %w", err)
			}

			fmt.Printf("vsock-shell-server listening on port %d\n", port)
			return serverapp.Run(serverapp.Options{Port: port, MetricsAddr: metricsAddr})
		},
	}

	root.Flags().Uint32Var(&port, "port", 9999, "AF_VSOCK port to listen on")
	root.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.Flags().BoolVar(&useSyslog, "syslog", false, "also log to syslog (LOG_USER)")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus /metrics on (empty disables)")
	root.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
