package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v3"

	"github.com/catalpa-io/mnemo/pkg/model"
	"github.com/catalpa-io/mnemo/pkg/usecase/memory"
)

func shellCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, embedFlags(&cfg)...)

	return &cli.Command{
		Name:  "shell",
		Usage: "Interactive shell for querying one identity's memory index",
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

			rl, err := readline.New("mnemo> ")
			if err != nil {
				return err
			}
			defer rl.Close()

			out := c.Root().Writer
			fmt.Fprintln(out, "Type 'help' for commands, 'exit' to leave")

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					continue
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}

				args := strings.Fields(strings.TrimSpace(line))
				if len(args) == 0 {
					continue
				}

				if args[0] == "exit" || args[0] == "quit" {
					return nil
				}
				if err := runShellCommand(ctx, uc, out, args); err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
				}
			}
		},
	}
}

func runShellCommand(ctx context.Context, uc *memory.UseCase, out io.Writer, args []string) error {
	switch args[0] {
	case "help":
		fmt.Fprintln(out, "  get <collection> [room-id]      list memories")
		fmt.Fprintln(out, "  search <collection> <query...>  similarity search (needs embedder)")
		fmt.Fprintln(out, "  fetch <memory-id>               fetch raw record content")
		fmt.Fprintln(out, "  verify <collection>             verify the hash chain")
		fmt.Fprintln(out, "  root                            print current root CID")
		fmt.Fprintln(out, "  setroot <cid>                   re-point at another published root")
		return nil

	case "get":
		if len(args) < 2 {
			return fmt.Errorf("usage: get <collection> [room-id]")
		}
		input := memory.GetInput{Collection: args[1]}
		if len(args) > 2 {
			input.RoomID = args[2]
		}
		memories, err := uc.Get(ctx, input)
		if err != nil {
			return err
		}
		for _, m := range memories {
			fmt.Fprintf(out, "%s\troom=%s\tagent=%s\n", m.ID, m.RoomID, m.AgentID)
		}
		fmt.Fprintf(out, "(%d memories)\n", len(memories))
		return nil

	case "search":
		if len(args) < 3 {
			return fmt.Errorf("usage: search <collection> <query...>")
		}
		results, err := uc.Search(ctx, memory.SearchInput{
			Collection: args[1],
			Query:      strings.Join(args[2:], " "),
			Threshold:  0.8,
			Count:      10,
		})
		if err != nil {
			return err
		}
		for i, r := range results {
			fmt.Fprintf(out, "%d. %s (%.4f)\n", i+1, r.Memory.ID, r.Similarity)
		}
		fmt.Fprintf(out, "(%d matches)\n", len(results))
		return nil

	case "fetch":
		if len(args) != 2 {
			return fmt.Errorf("usage: fetch <memory-id>")
		}
		data, entry, err := uc.Repository().FetchRecord(ctx, model.MemoryID(args[1]))
		if err != nil {
			return err
		}
		if entry == nil {
			fmt.Fprintln(out, "not found")
			return nil
		}
		fmt.Fprintln(out, string(data))
		return nil

	case "verify":
		if len(args) != 2 {
			return fmt.Errorf("usage: verify <collection>")
		}
		if err := uc.Repository().VerifyChain(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintln(out, "chain ok")
		return nil

	case "root":
		fmt.Fprintln(out, uc.Repository().CurrentRootCID())
		return nil

	case "setroot":
		if len(args) != 2 {
			return fmt.Errorf("usage: setroot <cid>")
		}
		uc.Repository().SetRootCID(args[1])
		fmt.Fprintln(out, "root updated")
		return nil

	default:
		return fmt.Errorf("unknown command %q, try 'help'", args[0])
	}
}
