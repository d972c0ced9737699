package clicmds

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gitlab.com/auditker/auditk"
)

func JournalFlags() []cli.Flag {
	return withCommon(
		&cli.IntFlag{
			Name:  "limit",
			Usage: "number of events to print, newest first. 0 prints all",
			Value: 50,
		},
		&cli.StringFlag{
			Name:  "type",
			Usage: "only print events of this type (e.g. marked_manual)",
		},
	)
}

// Journal prints the audit history of the active project
func Journal(ctx *cli.Context) error {
	tracker, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer tracker.Stop()

	events, err := tracker.Events(0)
	if err != nil {
		log.Error().Err(err).Msg("failed to read journal")
		return err
	}

	filter := ctx.String("type")
	printed := 0
	for _, evt := range events {
		if filter != "" && evt.Type.String() != filter {
			continue
		}
		if limit := ctx.Int("limit"); limit > 0 && printed >= limit {
			break
		}
		fmt.Println(printEvent(evt))
		printed++
	}
	fmt.Printf("Had %d events\n", printed)
	return nil
}

func printEvent(evt *auditk.JournalEvent) string {
	ret := evt.Time.Local().Format(time.RFC3339) + " " + evt.Type.String()
	switch evt.Type {
	case auditk.EvtVulnAdded, auditk.EvtVulnRemoved:
		ret += fmt.Sprintf(" [#%d %s]", evt.VulnID, evt.Path)
	case auditk.EvtProjectSwitched:
		ret += " [" + evt.Project + "]"
	default:
		if evt.Path != "" {
			ret += " [" + evt.Path + "]"
		}
	}
	if evt.Detail != "" {
		ret += " " + evt.Detail
	}
	return ret
}
