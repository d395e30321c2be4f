package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/catalpa-io/mnemo/pkg/usecase/memory"
)

func getCommand() *cli.Command {
	var (
		cfg        config
		collection string
		roomID     string
		agentID    string
		count      int64
		unique     bool
		asJSON     bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "collection",
			Aliases:     []string{"n"},
			Usage:       "Collection to read",
			Value:       "conversations",
			Sources:     cli.EnvVars("MNEMO_COLLECTION"),
			Destination: &collection,
		},
		&cli.StringFlag{
			Name:        "room-id",
			Usage:       "Filter by room",
			Sources:     cli.EnvVars("MNEMO_ROOM_ID"),
			Destination: &roomID,
		},
		&cli.StringFlag{
			Name:        "agent-id",
			Usage:       "Filter by agent",
			Sources:     cli.EnvVars("MNEMO_AGENT_ID"),
			Destination: &agentID,
		},
		&cli.IntFlag{
			Name:        "count",
			Usage:       "Maximum number of memories to return (0 = all)",
			Value:       0,
			Destination: &count,
		},
		&cli.BoolFlag{
			Name:        "unique",
			Usage:       "Only records flagged unique",
			Destination: &unique,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Output raw JSON",
			Destination: &asJSON,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "get",
		Usage: "List memories of a collection, newest first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			uc, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}

			memories, err := uc.Get(ctx, memory.GetInput{
				Collection: collection,
				RoomID:     roomID,
				AgentID:    agentID,
				Unique:     unique,
				Count:      int(count),
			})
			if err != nil {
				return goerr.Wrap(err, "failed to get memories")
			}

			if asJSON {
				raw, err := json.MarshalIndent(memories, "", "  ")
				if err != nil {
					return goerr.Wrap(err, "failed to marshal memories")
				}
				fmt.Fprintln(c.Root().Writer, string(raw))
				return nil
			}

			if len(memories) == 0 {
				fmt.Fprintln(c.Root().Writer, "No memories found")
				return nil
			}
			for _, m := range memories {
				fmt.Fprintf(c.Root().Writer, "%s\troom=%s\tagent=%s\t%s\n",
					m.ID, m.RoomID, m.AgentID, m.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}
