package clicmds

import "github.com/urfave/cli/v2"

// Commands of the auditker cli
func Commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "manage projects",
			Subcommands: ProjectCommands(),
		},
		{
			Name:   "add",
			Usage:  "add an endpoint to the watch list",
			Action: Add,
			Flags:  AddFlags(),
		},
		{
			Name:   "rm",
			Usage:  "remove an endpoint from the watch list",
			Action: Remove,
			Flags:  RemoveFlags(),
		},
		{
			Name:    "list",
			Aliases: []string{"ls"},
			Usage:   "print the watch list",
			Action:  List,
			Flags:   ListFlags(),
		},
		{
			Name:    "import",
			Aliases: []string{"i"},
			Usage:   "import a json export or url list",
			Action:  Import,
			Flags:   ImportFlags(),
		},
		{
			Name:   "sitemap",
			Usage:  "import the site map once",
			Action: SiteMap,
			Flags:  SiteMapFlags(),
		},
		{
			Name:    "export",
			Aliases: []string{"e"},
			Usage:   "export the watch list or vulnerabilities",
			Action:  Export,
			Flags:   ExportFlags(),
		},
		{
			Name:    "mark",
			Aliases: []string{"m"},
			Usage:   "mark matching endpoints as audited",
			Action:  Mark,
			Flags:   MarkFlags(),
		},
		{
			Name:   "note",
			Usage:  "read or set the note of an endpoint",
			Action: Note,
			Flags:  NoteFlags(),
		},
		{
			Name:   "highlight",
			Usage:  "highlight an endpoint",
			Action: Highlight,
			Flags:  HighlightFlags(),
		},
		{
			Name:   "clear",
			Usage:  "clear the watch list",
			Action: Clear,
			Flags:  ClearFlags(),
		},
		{
			Name:   "stats",
			Usage:  "print project statistics",
			Action: Stats,
			Flags:  StatsFlags(),
		},
		{
			Name:   "settings",
			Usage:  "print or change project settings",
			Action: Settings,
			Flags:  SettingsFlags(),
		},
		{
			Name:        "vuln",
			Aliases:     []string{"v"},
			Usage:       "manage the vulnerability ledger",
			Subcommands: VulnCommands(),
		},
		{
			Name:    "replay",
			Aliases: []string{"r"},
			Usage:   "classify a traffic log",
			Action:  Replay,
			Flags:   ReplayFlags(),
		},
		{
			Name:    "journal",
			Aliases: []string{"j"},
			Usage:   "print the audit history",
			Action:  Journal,
			Flags:   JournalFlags(),
		},
	}
}
