package clicmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gitlab.com/auditker/auditk"
)

func ReplayFlags() []cli.Flag {
	return withCommon(
		&cli.StringFlag{
			Name:  "file",
			Usage: "traffic log with one 'ORIGIN METHOD URL' per line, - reads stdin",
			Value: "-",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "print the classification of every line",
		},
	)
}

// Replay feeds a traffic log through the classifier of the active project.
// Reading stdin keeps going until EOF or an interrupt, with --sitemap and auto
// update the site map is polled meanwhile.
func Replay(ctx *cli.Context) error {
	var input io.Reader = os.Stdin
	if ctx.String("file") != "-" {
		fd, err := os.Open(ctx.String("file"))
		if err != nil {
			return err
		}
		defer fd.Close()
		input = fd
	}

	tracker, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer tracker.Stop()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			log.Info().Msg("interrupted, flushing")
			cancel()
		case <-runCtx.Done():
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-runCtx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Error().Err(err).Msg("failed to read traffic")
		}
	}()

	counts := make(map[string]int)
	for {
		select {
		case <-runCtx.Done():
			printCounts(counts)
			return nil
		case line, ok := <-lines:
			if !ok {
				printCounts(counts)
				return nil
			}
			evt := parseTrafficLine(line)
			if evt == nil {
				continue
			}
			result := tracker.OnTraffic(runCtx, evt)
			counts[result.Action.String()]++
			if ctx.Bool("verbose") {
				fmt.Printf("%-9s %-7s %s -> %s\n", evt.Origin, evt.Method, evt.URL, result.Action)
			}
		}
	}
}

// parseTrafficLine accepts "ORIGIN METHOD URL", "METHOD URL" (proxy) or "URL"
func parseTrafficLine(line string) *auditk.TrafficEvent {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	evt := &auditk.TrafficEvent{Origin: auditk.ToolProxy, IsRequest: true, Method: "GET"}
	fields := strings.Fields(line)
	switch len(fields) {
	case 1:
		evt.URL = fields[0]
	case 2:
		evt.Method, evt.URL = strings.ToUpper(fields[0]), fields[1]
	default:
		evt.Origin = auditk.ParseToolOrigin(fields[0])
		evt.Method, evt.URL = strings.ToUpper(fields[1]), fields[2]
	}
	if !auditk.IsURL(evt.URL) {
		log.Warn().Str("line", line).Msg("skipping traffic line without absolute url")
		return nil
	}
	return evt
}

func printCounts(counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-16s %d\n", k, counts[k])
	}
}
