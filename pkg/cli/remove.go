package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/catalpa-io/mnemo/pkg/model"
)

func removeCommand() *cli.Command {
	var (
		cfg        config
		collection string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "collection",
			Aliases:     []string{"n"},
			Usage:       "Collection holding the memory",
			Value:       "conversations",
			Sources:     cli.EnvVars("MNEMO_COLLECTION"),
			Destination: &collection,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "remove",
		Usage:     "Retract a memory from its collection and evict it from hot storage",
		ArgsUsage: "<memory-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			id := c.Args().First()
			if id == "" {
				return goerr.New("memory id is required")
			}

			uc, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}

			if err := uc.Remove(ctx, collection, model.MemoryID(id)); err != nil {
				return goerr.Wrap(err, "failed to remove memory")
			}

			fmt.Fprintf(c.Root().Writer, "Removed %s from %s\n", id, collection)
			fmt.Fprintf(c.Root().Writer, "Note: content may remain retrievable by anyone holding its CID\n")
			return nil
		},
	}
}
