package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dukex/botflow/pkg/graph"
	"github.com/dukex/botflow/pkg/models"
	cli "github.com/urfave/cli/v3"
)

func NewPublishCommand() *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Publish a stored flow, or import a flow file and publish it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "flow-id",
				Usage: "Stored flow to publish",
			},
			&cli.StringFlag{
				Name:  "file",
				Usage: "Flow file (JSON or YAML) to import as a new draft first",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			flowID := command.String("flow-id")
			file := command.String("file")

			if (flowID == "") == (file == "") {
				return errors.New("exactly one of --flow-id or --file is required")
			}

			app, release, err := openApp(ctx, command, "publish")
			if err != nil {
				return err
			}
			defer release()

			if file != "" {
				flow, err := readFlowFile(file)
				if err != nil {
					return err
				}

				created, err := app.Flows.Create(ctx, flow)
				if err != nil {
					return fmt.Errorf("failed to import %s: %w", file, err)
				}

				flowID = created.ID
			}

			version, err := app.Publishing.Publish(ctx, flowID)
			if err != nil {
				var authoring *graph.AuthoringError
				if errors.As(err, &authoring) {
					_ = report(os.Stderr, flowID, authoring.Problems)
				}

				return err
			}

			enc := json.NewEncoder(command.Root().Writer)
			enc.SetIndent("", "  ")

			return enc.Encode(version)
		},
	}
}

func readFlowFile(name string) (*models.Flow, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	return graph.DecodeFlowFile(name, data)
}
