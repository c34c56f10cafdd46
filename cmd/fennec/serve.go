package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fennec-api/fennec/internal/auth"
	"github.com/fennec-api/fennec/internal/config"
	"github.com/fennec-api/fennec/internal/db"
	"github.com/fennec-api/fennec/internal/log"
	"github.com/fennec-api/fennec/internal/orm"
	"github.com/fennec-api/fennec/internal/web/server"
)

var serveDev bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the resource API server",
	Long:  "Serve every registered entity type as a JSON resource API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger := log.Must("info", serveDev)
		defer logger.Sync()

		factory := db.NewFactory(cfg.Database)
		defer factory.Close()

		pool, err := factory.Connection()
		if err != nil {
			return err
		}

		srv := server.New(orm.New(pool, nil), logger, cfg.Server)
		if cfg.Auth.Secret != "" {
			srv.UseAuth(auth.NewService(cfg.Auth.Secret, cfg.Auth.TokenTTL))
		}
		srv.MountAll()

		color.Green("Listening on http://%s%s", cfg.Server.Address(), cfg.Server.APIPrefix)
		return srv.Start()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveDev, "dev", false, "enable development logging")
}
