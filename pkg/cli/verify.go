package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func verifyCommand() *cli.Command {
	var (
		cfg        config
		collection string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "collection",
			Aliases:     []string{"n"},
			Usage:       "Collection to verify",
			Value:       "conversations",
			Sources:     cli.EnvVars("MNEMO_COLLECTION"),
			Destination: &collection,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "verify",
		Usage: "Verify a collection's hash chain has not been reordered or truncated",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			repo, err := cfg.newIndex(ctx)
			if err != nil {
				return err
			}

			if err := repo.VerifyChain(ctx, collection); err != nil {
				return goerr.Wrap(err, "chain verification failed")
			}

			fmt.Fprintf(c.Root().Writer, "Chain verified: %s\n", collection)
			return nil
		},
	}
}
