package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/catalpa-io/mnemo/pkg/model"
	"github.com/catalpa-io/mnemo/pkg/usecase/memory"
)

func createCommand() *cli.Command {
	var (
		cfg        config
		collection string
		inputPath  string
		roomID     string
		agentID    string
		embedText  string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "collection",
			Aliases:     []string{"n"},
			Usage:       "Collection to store the memory in",
			Value:       "conversations",
			Sources:     cli.EnvVars("MNEMO_COLLECTION"),
			Destination: &collection,
		},
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Path to JSON file with the memory content ('-' for stdin)",
			Sources:     cli.EnvVars("MNEMO_INPUT"),
			Destination: &inputPath,
		},
		&cli.StringFlag{
			Name:        "room-id",
			Usage:       "Room discriminator",
			Sources:     cli.EnvVars("MNEMO_ROOM_ID"),
			Destination: &roomID,
		},
		&cli.StringFlag{
			Name:        "agent-id",
			Usage:       "Agent discriminator",
			Sources:     cli.EnvVars("MNEMO_AGENT_ID"),
			Destination: &agentID,
		},
		&cli.StringFlag{
			Name:        "embed",
			Usage:       "Text to embed for similarity search",
			Destination: &embedText,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, embedFlags(&cfg)...)

	return &cli.Command{
		Name:  "create",
		Usage: "Store a memory record in a collection",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			content, err := readContent(inputPath)
			if err != nil {
				return err
			}

			uc, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}

			sp := newSpinner("Uploading memory...")
			entry, err := uc.Create(ctx, memory.CreateInput{
				Collection: collection,
				Memory: &model.Memory{
					RoomID:  roomID,
					AgentID: agentID,
					Content: content,
				},
				EmbedText: embedText,
			})
			sp.Stop()
			if err != nil {
				return goerr.Wrap(err, "failed to create memory")
			}

			fmt.Fprintf(c.Root().Writer, "Created memory %s\n", entry.ID)
			fmt.Fprintf(c.Root().Writer, "  CID:  %s\n", entry.CID)
			fmt.Fprintf(c.Root().Writer, "  Root: %s\n", uc.Repository().CurrentRootCID())
			return nil
		},
	}
}

func readContent(path string) (map[string]any, error) {
	if path == "" {
		return nil, goerr.New("input file path is required")
	}

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read input", goerr.V("path", path))
	}

	var content map[string]any
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, goerr.Wrap(err, "failed to parse JSON content")
	}
	return content, nil
}

func newSpinner(message string) *spinner.Spinner {
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond,
		spinner.WithWriter(os.Stderr))
	sp.Suffix = " " + message
	sp.Start()
	return sp
}
