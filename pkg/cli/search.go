package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/catalpa-io/mnemo/pkg/usecase/memory"
)

func searchCommand() *cli.Command {
	var (
		cfg        config
		collection string
		query      string
		vectorPath string
		threshold  float64
		count      int64
		roomID     string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "collection",
			Aliases:     []string{"n"},
			Usage:       "Collection to search",
			Value:       "conversations",
			Sources:     cli.EnvVars("MNEMO_COLLECTION"),
			Destination: &collection,
		},
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "Text to embed and search for",
			Destination: &query,
		},
		&cli.StringFlag{
			Name:        "vector",
			Usage:       "Path to JSON file with a raw query vector",
			Destination: &vectorPath,
		},
		&cli.FloatFlag{
			Name:        "threshold",
			Aliases:     []string{"t"},
			Usage:       "Minimum cosine similarity (0.0-1.0)",
			Value:       0.8,
			Sources:     cli.EnvVars("MNEMO_SEARCH_THRESHOLD"),
			Destination: &threshold,
		},
		&cli.IntFlag{
			Name:        "count",
			Aliases:     []string{"l"},
			Usage:       "Maximum number of matches",
			Value:       10,
			Sources:     cli.EnvVars("MNEMO_SEARCH_COUNT"),
			Destination: &count,
		},
		&cli.StringFlag{
			Name:        "room-id",
			Usage:       "Filter matches by room",
			Sources:     cli.EnvVars("MNEMO_ROOM_ID"),
			Destination: &roomID,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, embedFlags(&cfg)...)

	return &cli.Command{
		Name:  "search",
		Usage: "Search a collection by vector similarity",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			var vector []float64
			if vectorPath != "" {
				data, err := os.ReadFile(vectorPath)
				if err != nil {
					return goerr.Wrap(err, "failed to read vector file", goerr.V("path", vectorPath))
				}
				if err := json.Unmarshal(data, &vector); err != nil {
					return goerr.Wrap(err, "failed to parse vector JSON")
				}
			}
			if len(vector) == 0 && query == "" {
				return goerr.New("either --query or --vector is required")
			}

			uc, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}

			sp := newSpinner("Searching...")
			results, err := uc.Search(ctx, memory.SearchInput{
				Collection: collection,
				Vector:     vector,
				Query:      query,
				Threshold:  threshold,
				Count:      int(count),
				RoomID:     roomID,
			})
			sp.Stop()
			if err != nil {
				return goerr.Wrap(err, "failed to search memories")
			}

			if len(results) == 0 {
				fmt.Fprintln(c.Root().Writer, "No matches found")
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(c.Root().Writer, "%d. %s (similarity %.4f)\n", i+1, r.Memory.ID, r.Similarity)
				if text, ok := r.Memory.Content["text"].(string); ok {
					fmt.Fprintf(c.Root().Writer, "   %s\n", text)
				}
			}
			return nil
		},
	}
}
