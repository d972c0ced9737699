package clicmds

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gitlab.com/auditker/auditk"
	"gitlab.com/auditker/store"
)

// ProjectCommands manage the project registry without opening a document
func ProjectCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:   "list",
			Usage:  "list projects, most recently used first",
			Action: ProjectList,
			Flags:  CommonFlags(),
		},
		{
			Name:   "create",
			Usage:  "register a new project",
			Action: ProjectCreate,
			Flags: withCommon(
				&cli.StringFlag{Name: "name", Usage: "project name", Required: true},
				&cli.StringFlag{Name: "description", Usage: "free text description"},
				&cli.BoolFlag{Name: "switch", Usage: "make it the current project"},
			),
		},
		{
			Name:   "switch",
			Usage:  "make a project the current one",
			Action: ProjectSwitch,
			Flags:  withCommon(&cli.StringFlag{Name: "name", Usage: "project name", Required: true}),
		},
		{
			Name:   "rename",
			Usage:  "rename a project, its document is copied under the new name",
			Action: ProjectRename,
			Flags: withCommon(
				&cli.StringFlag{Name: "from", Usage: "current name", Required: true},
				&cli.StringFlag{Name: "to", Usage: "new name", Required: true},
			),
		},
		{
			Name:   "delete",
			Usage:  "remove a project from the registry, its document is kept",
			Action: ProjectDelete,
			Flags:  withCommon(&cli.StringFlag{Name: "name", Usage: "project name", Required: true}),
		},
	}
}

func registryFromFlags(ctx *cli.Context) (*store.Registry, error) {
	cfg, err := LoadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return openRegistry(cfg)
}

// ProjectList prints the registry
func ProjectList(ctx *cli.Context) error {
	registry, err := registryFromFlags(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	current := registry.Current()
	fmt.Fprintln(w, "\tNAME\tDATA FILE\tLAST USED\tDESCRIPTION")
	for _, p := range registry.List() {
		marker := ""
		if p.Name == current {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", marker, p.Name, p.DataFile, p.LastUsed, p.Description)
	}
	return w.Flush()
}

// ProjectCreate registers a project
func ProjectCreate(ctx *cli.Context) error {
	cfg, err := LoadConfig(ctx)
	if err != nil {
		return err
	}
	registry, err := openRegistry(cfg)
	if err != nil {
		return err
	}

	name, err := registry.CreateProject(ctx.String("name"), cfg.DataFile, ctx.String("description"))
	if err != nil {
		return err
	}
	if ctx.Bool("switch") {
		if err := registry.SwitchTo(name); err != nil {
			return err
		}
	}
	fmt.Printf("created project %s\n", name)
	return nil
}

// ProjectSwitch opens the named project through the tracker so the previous
// one is flushed first
func ProjectSwitch(ctx *cli.Context) error {
	registry, err := registryFromFlags(ctx)
	if err != nil {
		return err
	}
	name := auditk.NormalizeProjectName(ctx.String("name"))

	// nothing active yet, record the choice directly
	if _, err := registry.ResolveCurrentProject(); errors.Is(err, auditk.ErrUnresolvedProject) {
		if err := registry.SwitchTo(name); err != nil {
			return err
		}
		fmt.Printf("switched to %s\n", name)
		return nil
	}

	tracker, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer tracker.Stop()

	if err := tracker.SwitchProject(name); err != nil {
		return err
	}
	fmt.Printf("switched to %s\n", tracker.Session().Name)
	return nil
}

// ProjectRename renames a project
func ProjectRename(ctx *cli.Context) error {
	registry, err := registryFromFlags(ctx)
	if err != nil {
		return err
	}
	name, err := registry.RenameProject(ctx.String("from"), ctx.String("to"))
	if err != nil {
		return err
	}
	path, _ := registry.DataFilePathFor(name)
	fmt.Printf("renamed %s to %s (%s)\n", auditk.NormalizeProjectName(ctx.String("from")), name, path)
	return nil
}

// ProjectDelete unregisters a project
func ProjectDelete(ctx *cli.Context) error {
	registry, err := registryFromFlags(ctx)
	if err != nil {
		return err
	}
	if err := registry.DeleteProject(ctx.String("name")); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", auditk.NormalizeProjectName(ctx.String("name")))
	return nil
}
