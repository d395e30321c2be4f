package cli

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/catalpa-io/mnemo/pkg/service/mcp"
	"github.com/catalpa-io/mnemo/pkg/utils/logging"
)

func serveCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, embedFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run an MCP server exposing the memory operations over stdio",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			// stdout belongs to the MCP transport; force logs to stderr as JSON
			logger := logging.New(cfg.logLevel, "json", os.Stderr)
			logging.SetDefault(logger)
			ctx = logging.With(ctx, logger)

			uc, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}

			logger.Info("starting MCP server", "store", cfg.store)
			return mcp.Serve(ctx, uc)
		},
	}
}
