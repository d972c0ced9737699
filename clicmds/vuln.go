package clicmds

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gitlab.com/auditker/auditk"
)

// VulnCommands manage the vulnerability ledger of the active project
func VulnCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:   "add",
			Usage:  "record a finding",
			Action: VulnAdd,
			Flags: withCommon(
				&cli.StringFlag{Name: "cwe", Usage: "cwe code, e.g. CWE-79", Required: true},
				&cli.StringFlag{Name: "path", Usage: "affected request url", Required: true},
				&cli.StringFlag{Name: "method", Usage: "request method", Value: "GET"},
				&cli.StringFlag{Name: "desc", Usage: "description, defaults to the cwe title"},
			),
		},
		{
			Name:   "rm",
			Usage:  "remove a finding by id",
			Action: VulnRemove,
			Flags:  withCommon(&cli.Int64Flag{Name: "id", Usage: "vulnerability id", Required: true}),
		},
		{
			Name:   "list",
			Usage:  "print findings oldest first",
			Action: VulnList,
			Flags:  withCommon(&cli.StringFlag{Name: "cwe", Usage: "only this cwe"}),
		},
		{
			Name:   "cwes",
			Usage:  "print the supported cwe catalog",
			Action: VulnCatalog,
		},
	}
}

// VulnAdd records a finding and tags the matching item's note
func VulnAdd(ctx *cli.Context) error {
	tracker, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer tracker.Stop()

	url, err := resolvePath(tracker, ctx.String("path"))
	if err != nil {
		return err
	}
	v, err := tracker.AddVulnerability(ctx.String("cwe"), ctx.String("desc"), url, ctx.String("method"))
	if err != nil {
		return err
	}
	fmt.Printf("added #%d %s %s %s\n", v.ID, v.CWE, v.Method, v.URL)
	return nil
}

// VulnRemove deletes a finding
func VulnRemove(ctx *cli.Context) error {
	tracker, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer tracker.Stop()

	if !tracker.RemoveVulnerability(ctx.Int64("id")) {
		return errors.Errorf("no vulnerability with id %d", ctx.Int64("id"))
	}
	fmt.Printf("removed #%d\n", ctx.Int64("id"))
	return nil
}

// VulnList prints the ledger
func VulnList(ctx *cli.Context) error {
	tracker, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer tracker.Stop()

	ledger := tracker.Session().Ledger
	if ctx.String("cwe") == "" {
		ledger.Print(os.Stdout)
		return nil
	}
	for _, v := range ledger.ListBy(ctx.String("cwe")) {
		fmt.Printf("#%-4d %-7s %s  (%s) %s\n", v.ID, v.Method, v.URL, v.Description, v.Timestamp)
	}
	return nil
}

// VulnCatalog prints the supported cwe codes
func VulnCatalog(ctx *cli.Context) error {
	for _, code := range auditk.CWECodes() {
		_, title, _ := auditk.LookupCWE(code)
		fmt.Printf("%-9s %s\n", code, title)
	}
	return nil
}
