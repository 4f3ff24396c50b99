package main

import (
	"github.com/spf13/cobra"

	"github.com/grantforge/grantforge/config"
	srv "github.com/grantforge/grantforge/internal/server"
)

func serveCMD() *cobra.Command {
	var serveAddr string
	var cfgPath string
	var envPath string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run the grant generation HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			config.LoadDotEnv(envPath)
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			return srv.Run(cfg, serveAddr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	serve.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default searches . and ./config)")
	serve.Flags().StringVar(&envPath, "env", "", ".env file to load before config (default .env)")

	return serve
}
