package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func rootCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "root",
		Usage: "Print the current root index CID for cross-party sharing",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			repo, err := cfg.newIndex(ctx)
			if err != nil {
				return err
			}

			cid := repo.CurrentRootCID()
			if cid == "" {
				fmt.Fprintln(c.Root().Writer, "No root index published yet")
				return nil
			}

			fmt.Fprintln(c.Root().Writer, cid)
			return nil
		},
	}
}
