package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dukex/botflow/pkg/cmd"
	"github.com/dukex/botflow/pkg/graph"
	"github.com/dukex/botflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

var ErrInvalidFlow = errors.New("flow has validation errors")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate flow files (JSON or YAML) or a stored flow",
		ArgsUsage: "[file ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "flow-id",
				Usage: "Validate a stored flow instead of files",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			out := command.Root().Writer

			if id := command.String("flow-id"); id != "" {
				app, release, err := openApp(ctx, command, "validate")
				if err != nil {
					return err
				}
				defer release()

				problems, err := app.Flows.Validate(ctx, id)
				if err != nil {
					return err
				}

				return report(out, id, problems)
			}

			if command.Args().Len() == 0 {
				return errors.New("no flow files given")
			}

			flows := services.NewFlow(nil, cmd.NewRegistry(slog.Default()))

			var failed error

			for _, name := range command.Args().Slice() {
				flow, err := readFlowFile(name)
				if err != nil {
					return err
				}

				failed = errors.Join(failed, report(out, name, flows.Inspect(ctx, flow)))
			}

			return failed
		},
	}
}

// report prints the problems of one flow and fails when any is an error.
func report(w io.Writer, name string, problems []graph.Problem) error {
	if len(problems) == 0 {
		_, _ = fmt.Fprintf(w, "%s: ok\n", name)

		return nil
	}

	_, _ = fmt.Fprintf(w, "%s:\n", name)

	for _, p := range problems {
		target := p.NodeID
		if target == "" {
			target = p.ConnectionID
		}

		_, _ = fmt.Fprintf(w, "  %-7s %-22s %-12s %s\n", p.Severity, p.Code, target, p.Message)
	}

	if graph.HasErrors(problems) {
		return fmt.Errorf("%w: %s", ErrInvalidFlow, name)
	}

	return nil
}
