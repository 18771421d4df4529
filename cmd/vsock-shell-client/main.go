// Command vsock-shell-client connects to a vsock-shell-server over
// AF_VSOCK and runs an interactive shell, a one-shot command, or a file
// transfer, grounded on
// _examples/original_source/client/main.c's option set.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vsockshell/vsockshell/internal/clientfile"
	"github.com/vsockshell/vsockshell/internal/clientshell"
	"github.com/vsockshell/vsockshell/internal/config"
	"github.com/vsockshell/vsockshell/internal/logging"
	"github.com/vsockshell/vsockshell/internal/vsocknet"
)

func main() {
	var (
		cid        uint32
		port       uint32
		command    string
		uploadFile string
		downFile   string
		remoteDir  string
		localDir   string
		logLevel   string
		configPath string
	)

	root := &cobra.Command{
		Use:   "vsock-shell-client",
		Short: "Connect to a vsock-shell-server over AF_VSOCK",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClientConfig(configPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("cid") && cfg.CID != 0 {
				cid = cfg.CID
			}
			if !cmd.Flags().Changed("port") && cfg.Port != 0 {
				port = cfg.Port
			}
			if !cmd.Flags().Changed("remote-dir") && cfg.RemoteDir != "" {
				remoteDir = cfg.RemoteDir
			}
			if !cmd.Flags().Changed("local-dir") && cfg.LocalDir != "" {
				localDir = cfg.LocalDir
			}
			if !cmd.Flags().Changed("log-level") && cfg.LogLevel != "" {
				logLevel = cfg.LogLevel
			}
			if cid == 0 {
				return fmt.Errorf("--cid is required")
			}
			if err := logging.Init(logLevel, false, logging.IdentClient); err != nil {
				return fmt.Errorf("init logging: %w", err)
			}

			fmt.Printf("Connecting to CID %d on port %d...\n", cid, port)
			conn, err := vsocknet.Dial(cid, port)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer conn.Close()
			fmt.Println("Connected successfully")

			switch {
			case uploadFile != "":
				fmt.Printf("Uploading '%s' to '%s' on guest...\n", uploadFile, remoteDir)
				return clientfile.Upload(conn, uploadFile, remoteDir)
			case downFile != "":
				fmt.Printf("Downloading '%s' to '%s' on host...\n", downFile, localDir)
				return clientfile.Download(conn, downFile, localDir)
			default:
				if command != "" {
					fmt.Printf("Executing: %s\n", command)
				} else {
					fmt.Println("Starting interactive shell...")
				}
				return clientshell.Run(conn, command)
			}
		},
	}

	root.Flags().Uint32Var(&cid, "cid", 0, "guest VM context ID (required)")
	root.Flags().Uint32Var(&port, "port", 9999, "server port number")
	root.Flags().StringVar(&command, "cmd", "", "execute command instead of shell")
	root.Flags().StringVar(&uploadFile, "upload", "", "upload file to guest")
	root.Flags().StringVar(&downFile, "download", "", "download file from guest")
	root.Flags().StringVar(&remoteDir, "remote-dir", "/tmp", "remote directory for upload")
	root.Flags().StringVar(&localDir, "local-dir", ".", "local directory for download")
	root.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
