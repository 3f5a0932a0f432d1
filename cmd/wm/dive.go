package main

import (
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/wm/internal/dive"
	"github.com/hpungsan/wm/internal/errors"
)

func manifestFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "intent", Aliases: []string{"i"}, Usage: "What this dive is for"},
		&cli.StringFlag{Name: "focus", Aliases: []string{"f"}, Usage: "Where attention should stay"},
		&cli.StringSliceFlag{Name: "constraint", Aliases: []string{"c"}, Usage: "A constraint (repeatable)"},
		&cli.StringSliceFlag{Name: "knowledge", Aliases: []string{"k"}, Usage: "A relevant fact (repeatable)"},
		&cli.StringSliceFlag{Name: "step", Usage: "A workflow step, in order (repeatable)"},
		&cli.StringSliceFlag{Name: "source", Usage: "A file or doc to read first (repeatable)"},
		&cli.StringFlag{Name: "file", Usage: "Use this markdown file as the body instead"},
	}
}

func manifestFromFlags(c *cli.Context) (dive.Manifest, error) {
	man := dive.Manifest{
		Intent:      strings.TrimSpace(c.String("intent")),
		Focus:       strings.TrimSpace(c.String("focus")),
		Constraints: c.StringSlice("constraint"),
		Knowledge:   c.StringSlice("knowledge"),
		Workflow:    c.StringSlice("step"),
		Sources:     c.StringSlice("source"),
	}
	if path := c.String("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return man, errors.NewIO("read "+path, err)
		}
		man.Body = string(data)
	}
	return man, nil
}

// diveCmd creates the dive command group.
func diveCmd(rt *runtime) *cli.Command {
	manager := func() (*dive.Manager, error) {
		if err := rt.ready(); err != nil {
			return nil, err
		}
		if err := rt.layout.RequireInitialized(); err != nil {
			return nil, err
		}
		return dive.New(rt.layout), nil
	}
	overwrite := func() cli.Flag {
		return &cli.BoolFlag{Name: "overwrite", Usage: "Replace an existing dive of the same name"}
	}

	return &cli.Command{
		Name:  "dive",
		Usage: "Manage dive contexts for focused sessions",
		Subcommands: []*cli.Command{
			{
				Name:  "prep",
				Usage: "Write the working dive and make it current",
				Flags: manifestFlags(),
				Action: func(c *cli.Context) error {
					m, err := manager()
					if err != nil {
						return outputError(err)
					}
					man, err := manifestFromFlags(c)
					if err != nil {
						return outputError(err)
					}
					result, err := m.Prep(man)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, result)
				},
			},
			{
				Name:      "new",
				Usage:     "Create a named dive and make it current",
				ArgsUsage: "<name>",
				Flags:     append(manifestFlags(), overwrite()),
				Action: func(c *cli.Context) error {
					m, err := manager()
					if err != nil {
						return outputError(err)
					}
					man, err := manifestFromFlags(c)
					if err != nil {
						return outputError(err)
					}
					result, err := m.Create(c.Args().First(), man, c.Bool("overwrite"))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, result)
				},
			},
			{
				Name:      "switch",
				Usage:     "Make a named dive current",
				ArgsUsage: "<name>",
				Action: func(c *cli.Context) error {
					m, err := manager()
					if err != nil {
						return outputError(err)
					}
					name := c.Args().First()
					if err := m.Switch(name); err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, map[string]string{"current": name})
				},
			},
			{
				Name:      "save",
				Usage:     "Snapshot the working dive under a name",
				ArgsUsage: "<name>",
				Flags:     []cli.Flag{overwrite()},
				Action: func(c *cli.Context) error {
					m, err := manager()
					if err != nil {
						return outputError(err)
					}
					result, err := m.Save(c.Args().First(), c.Bool("overwrite"))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, result)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a named dive (not the current one)",
				ArgsUsage: "<name>",
				Action: func(c *cli.Context) error {
					m, err := manager()
					if err != nil {
						return outputError(err)
					}
					name := c.Args().First()
					if err := m.Delete(name); err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, map[string]string{"deleted": name})
				},
			},
			{
				Name:  "list",
				Usage: "List named dives",
				Action: func(c *cli.Context) error {
					m, err := manager()
					if err != nil {
						return outputError(err)
					}
					listing, err := m.List()
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, listing)
				},
			},
			{
				Name:      "show",
				Usage:     "Show a dive, the current one by default",
				ArgsUsage: "[name]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "render", Aliases: []string{"r"}, Usage: "Print the body as rendered markdown"},
				},
				Action: func(c *cli.Context) error {
					m, err := manager()
					if err != nil {
						return outputError(err)
					}
					man, err := m.Show(c.Args().First())
					if err != nil {
						return outputError(err)
					}
					if c.Bool("render") {
						return outputMarkdown(c.App.Writer, man.Body)
					}
					return outputJSON(c.App.Writer, man)
				},
			},
			{
				Name:  "clear",
				Usage: "Point back at the working dive; named dives are kept",
				Action: func(c *cli.Context) error {
					m, err := manager()
					if err != nil {
						return outputError(err)
					}
					if err := m.Clear(); err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, map[string]string{"current": ""})
				},
			},
		},
	}
}
