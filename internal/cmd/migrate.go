package cmd

import (
	"context"

	"github.com/urfave/cli/v3"
	"github.com/zhulik/pal"

	"feedsync/internal/cmd/flags"
	"feedsync/internal/persistence"
)

var migrateCmd = &cli.Command{
	Name:  "migrate",
	Usage: "Apply event-archive schema migrations",
	Flags: []cli.Flag{
		flags.DatabaseURL,
	},
	Commands: []*cli.Command{
		{
			Name:  "up",
			Usage: "Migrate the archive database up",
			Action: func(ctx context.Context, c *cli.Command) error {
				return runMigration(ctx, c, pal.Provide(&persistence.MigrationUpRunner{}))
			},
		},
		{
			Name:  "down",
			Usage: "Revert the latest archive migration",
			Action: func(ctx context.Context, c *cli.Command) error {
				return runMigration(ctx, c, pal.Provide(&persistence.MigrationDownRunner{}))
			},
		},
	},
}

func runMigration(ctx context.Context, c *cli.Command, runner pal.ServiceDef) error {
	cfg, err := parseConfig(c)
	if err != nil {
		return err
	}

	return run(ctx, cfg,
		pal.Provide(&persistence.DB{}),
		pal.Provide(&persistence.Migrator{}),
		runner,
	)
}
