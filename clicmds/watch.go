package clicmds

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gitlab.com/auditker/auditk"
	"gitlab.com/auditker/scanner"
)

func pathFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "path",
		Usage:    "endpoint url, or a /path expanded against the target",
		Required: true,
	}
}

// resolvePath expands a host-less path against the project target
func resolvePath(tracker *scanner.Tracker, path string) (string, error) {
	full := auditk.ExpandDisplayPath(path, tracker.Session().Settings().TargetURL)
	if full == "" {
		return "", errors.Wrap(auditk.ErrNotURL, path)
	}
	return full, nil
}

func AddFlags() []cli.Flag {
	return withCommon(pathFlag())
}

// Add a single endpoint to the watch list
func Add(ctx *cli.Context) error {
	tracker, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer tracker.Stop()

	path, err := resolvePath(tracker, ctx.String("path"))
	if err != nil {
		return err
	}
	return printOutcome(tracker.Session().Engine.Add(path, auditk.SourceManual))
}

func RemoveFlags() []cli.Flag {
	return withCommon(pathFlag())
}

// Remove an endpoint from the watch list
func Remove(ctx *cli.Context) error {
	tracker, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer tracker.Stop()

	return printOutcome(tracker.Session().Engine.Remove(ctx.String("path")))
}

func ListFlags() []cli.Flag {
	return withCommon(
		&cli.BoolFlag{Name: "pending", Usage: "only list items that were neither audited nor scanned"},
	)
}

// List the watch list of the active project
func List(ctx *cli.Context) error {
	tracker, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer tracker.Stop()

	engine := tracker.Session().Engine
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tAUDITED\tSCANNED\tLAST AUDIT\tNOTE")
	for _, item := range engine.Items() {
		if ctx.Bool("pending") && (item.ManualAudited || item.Scanned) {
			continue
		}
		path := engine.DisplayPath(item.Path)
		if item.Highlight {
			path = "! " + path
		}
		fmt.Fprintf(w, "%s\t%t\t%t\t%s\t%s\n", path, item.ManualAudited, item.Scanned, item.LastAudit, item.Note)
	}
	return w.Flush()
}

func ImportFlags() []cli.Flag {
	return withCommon(
		&cli.StringFlag{
			Name:     "file",
			Usage:    "json export or newline delimited url list to import",
			Required: true,
		},
	)
}

// Import a json export or url list into the watch list
func Import(ctx *cli.Context) error {
	data, err := os.ReadFile(ctx.String("file"))
	if err != nil {
		return err
	}
	records, err := auditk.ParseImport(data)
	if err != nil {
		return err
	}

	tracker, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer tracker.Stop()

	inserted, err := tracker.Session().Engine.ImportRecords(context.Background(), records, auditk.SourceImport)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d of %d entries\n", inserted, len(records))
	return nil
}

func SiteMapFlags() []cli.Flag {
	return CommonFlags()
}

// SiteMap imports every endpoint of the --sitemap file once
func SiteMap(ctx *cli.Context) error {
	if ctx.String("sitemap") == "" {
		return errors.New("--sitemap is required")
	}
	tracker, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer tracker.Stop()

	inserted, err := tracker.ImportSiteMap(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("imported %d endpoints from the site map\n", inserted)
	return nil
}

func ExportFlags() []cli.Flag {
	return withCommon(
		&cli.StringFlag{
			Name:  "format",
			Usage: "text, json or csv (csv exports vulnerabilities)",
			Value: "text",
		},
		&cli.StringFlag{
			Name:  "out",
			Usage: "file to write, stdout if empty",
		},
	)
}

// Export the watch list or the vulnerability ledger
func Export(ctx *cli.Context) error {
	tracker, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer tracker.Stop()

	sess := tracker.Session()
	var data []byte
	switch ctx.String("format") {
	case "text":
		data = []byte(auditk.ExportText(sess.Engine.Items(), sess.Settings().StripHostInDisplay))
	case "json":
		data, err = auditk.ExportJSON(sess.Engine.Items())
	case "csv":
		data, err = auditk.ExportVulnsCSV(sess.Ledger.ListBy(""))
	default:
		return errors.Errorf("unknown export format %q", ctx.String("format"))
	}
	if err != nil {
		return err
	}

	if ctx.String("out") == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(ctx.String("out"), data, 0644); err != nil {
		return err
	}
	log.Info().Str("file", ctx.String("out")).Int("bytes", len(data)).Msg("export written")
	return nil
}

func MarkFlags() []cli.Flag {
	return withCommon(
		pathFlag(),
		&cli.StringFlag{
			Name:  "kind",
			Usage: "manual or scanned",
			Value: "manual",
		},
	)
}

// Mark every item matching the request url as audited
func Mark(ctx *cli.Context) error {
	kind, ok := auditk.ParseAuditKind(ctx.String("kind"))
	if !ok {
		return errors.Errorf("unknown audit kind %q", ctx.String("kind"))
	}
	tracker, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer tracker.Stop()

	url, err := resolvePath(tracker, ctx.String("path"))
	if err != nil {
		return err
	}
	_, outcome := tracker.Session().Engine.MarkAudited(kind, auditk.PathOf(url), url)
	return printOutcome(outcome)
}

func NoteFlags() []cli.Flag {
	return withCommon(
		pathFlag(),
		&cli.StringFlag{
			Name:  "set",
			Usage: "replace the note, prints the current note when not given",
		},
	)
}

// Note reads or replaces the note of an item
func Note(ctx *cli.Context) error {
	tracker, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer tracker.Stop()

	engine := tracker.Session().Engine
	if !ctx.IsSet("set") {
		note, err := engine.GetNote(ctx.String("path"))
		if err != nil {
			return err
		}
		fmt.Println(note)
		return nil
	}
	return printOutcome(engine.SetNote(ctx.String("path"), ctx.String("set")))
}

func HighlightFlags() []cli.Flag {
	return withCommon(
		pathFlag(),
		&cli.BoolFlag{
			Name:  "off",
			Usage: "remove the highlight",
		},
	)
}

// Highlight an item
func Highlight(ctx *cli.Context) error {
	tracker, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer tracker.Stop()

	return printOutcome(tracker.Session().Engine.SetHighlight(ctx.String("path"), !ctx.Bool("off")))
}

func ClearFlags() []cli.Flag {
	return withCommon(
		&cli.BoolFlag{Name: "audits", Usage: "only reset audit state, keep the items"},
		&cli.BoolFlag{Name: "vulns", Usage: "also clear the vulnerability ledger"},
	)
}

// Clear the watch list or its audit state
func Clear(ctx *cli.Context) error {
	tracker, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer tracker.Stop()

	sess := tracker.Session()
	if ctx.Bool("audits") {
		fmt.Printf("reset %d items\n", sess.Engine.ClearAudits())
	} else {
		fmt.Printf("removed %d items\n", sess.Engine.ClearAll())
	}
	if ctx.Bool("vulns") {
		fmt.Printf("removed %d vulnerabilities\n", sess.Ledger.Clear())
	}
	return nil
}

func StatsFlags() []cli.Flag {
	return withCommon(
		&cli.BoolFlag{Name: "metrics", Usage: "also print the internal counters"},
	)
}

// Stats of the active project
func Stats(ctx *cli.Context) error {
	tracker, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer tracker.Stop()

	sess := tracker.Session()
	stats := sess.Engine.Stats()
	fmt.Printf("project:         %s\n", sess.Name)
	fmt.Printf("target:          %s\n", sess.Settings().TargetURL)
	fmt.Printf("items:           %d\n", stats.Total)
	fmt.Printf("manual audited:  %d\n", stats.Manual)
	fmt.Printf("scanned:         %d\n", stats.Scanned)
	fmt.Printf("either:          %d\n", stats.Either)
	fmt.Printf("highlighted:     %d\n", stats.Highlighted)
	fmt.Printf("vulnerabilities: %d\n", sess.Ledger.Len())

	if !ctx.Bool("metrics") {
		return nil
	}
	snapshot, err := tracker.Metrics().Snapshot()
	if err != nil {
		return err
	}
	for _, name := range sortedKeys(snapshot) {
		fmt.Printf("%s %v\n", name, snapshot[name])
	}
	return nil
}

func SettingsFlags() []cli.Flag {
	return withCommon(
		&cli.StringFlag{Name: "target", Usage: "target base url"},
		&cli.BoolFlag{Name: "strip-host", Usage: "display paths without scheme and host"},
		&cli.BoolFlag{Name: "auto-update", Usage: "poll the site map for new endpoints"},
		&cli.DurationFlag{Name: "poll", Usage: "site map poll frequency (5s, 10s or 30s)"},
	)
}

// Settings prints and updates the project settings
func Settings(ctx *cli.Context) error {
	tracker, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer tracker.Stop()

	changed := ctx.IsSet("target") || ctx.IsSet("strip-host") || ctx.IsSet("auto-update") || ctx.IsSet("poll")
	if changed {
		ok := tracker.UpdateSettings(func(s *auditk.Settings) {
			if ctx.IsSet("target") {
				s.TargetURL = ctx.String("target")
			}
			if ctx.IsSet("strip-host") {
				s.StripHostInDisplay = ctx.Bool("strip-host")
			}
			if ctx.IsSet("auto-update") {
				s.AutoUpdate = ctx.Bool("auto-update")
			}
			if ctx.IsSet("poll") {
				s.PollFrequencySeconds = int(auditk.NearestPollFrequency(ctx.Duration("poll")).Seconds())
			}
		})
		if !ok {
			return errors.New("failed to save settings")
		}
	}

	s := tracker.Session().Settings()
	fmt.Printf("project:     %s\n", s.ProjectName)
	fmt.Printf("target:      %s\n", s.TargetURL)
	fmt.Printf("strip host:  %t\n", s.StripHostInDisplay)
	fmt.Printf("auto update: %t\n", s.AutoUpdate)
	fmt.Printf("poll:        %ds\n", s.PollFrequencySeconds)
	return nil
}
