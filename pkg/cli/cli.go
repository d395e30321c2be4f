package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "mnemo",
		Usage: "Content-addressed memory index over a blob network",
		Commands: []*cli.Command{
			createCommand(),
			getCommand(),
			searchCommand(),
			removeCommand(),
			rootCommand(),
			verifyCommand(),
			shellCommand(),
			serveCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
