package main

import (
	"github.com/spf13/cobra"
	"github.com/wina-futureobjects/track-futura-new-sub007/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := setup(ctx)
		if err != nil {
			return err
		}
		defer env.Close()
		if err := migrations.Apply(ctx, env.client, env.cfg.Store.Dialect); err != nil {
			return err
		}
		env.logger.Info("migrations applied", "dialect", env.cfg.Store.Dialect)
		return nil
	},
}
