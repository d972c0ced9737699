package clicmds

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gitlab.com/auditker/auditk"
	"gitlab.com/auditker/scanner"
	"gitlab.com/auditker/store"
)

// CommonFlags shared by every command
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "toml config to use",
			Value: "",
		},
		&cli.StringFlag{
			Name:  "registry",
			Usage: "project registry file",
			Value: defaultRegistryPath(),
		},
		&cli.StringFlag{
			Name:  "project",
			Usage: "project to open, defaults to the most recently used",
		},
		&cli.StringFlag{
			Name:  "datafile",
			Usage: "document file used when --project does not exist yet",
		},
		&cli.StringFlag{
			Name:  "journal",
			Usage: "directory for the audit journal, empty disables it",
		},
		&cli.StringFlag{
			Name:  "url",
			Usage: "target base url",
		},
		&cli.StringFlag{
			Name:  "sitemap",
			Usage: "newline delimited file of known endpoints used as the site map",
		},
	}
}

// AppFlags are global and go before the command name
func AppFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "loglevel",
			Usage: "debug, info, warn or error",
			Value: "info",
		},
	}
}

func withCommon(flags ...cli.Flag) []cli.Flag {
	return append(CommonFlags(), flags...)
}

func defaultRegistryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "auditker_projects.json"
	}
	return filepath.Join(home, ".auditker", "projects.json")
}

// SetupLogging from the loglevel flag
func SetupLogging(ctx *cli.Context) error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(strings.ToLower(ctx.String("loglevel")))
	if err != nil || ctx.String("loglevel") == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

// LoadConfig from the toml file given with --config, flags fill what the file
// leaves blank
func LoadConfig(ctx *cli.Context) (*auditk.Config, error) {
	cfg := auditk.DefaultConfig()

	if ctx.String("config") != "" {
		data, err := os.ReadFile(ctx.String("config"))
		if err != nil {
			return nil, err
		}
		if err := toml.NewDecoder(strings.NewReader(string(data))).Decode(cfg); err != nil {
			return nil, errors.Wrap(err, "decode config")
		}
	}

	if cfg.RegistryPath == "" {
		cfg.RegistryPath = ctx.String("registry")
	}
	if ctx.String("project") != "" {
		cfg.Project = ctx.String("project")
	}
	if cfg.DataFile == "" {
		cfg.DataFile = ctx.String("datafile")
	}
	if cfg.JournalPath == "" {
		cfg.JournalPath = ctx.String("journal")
	}
	if cfg.TargetURL == "" {
		cfg.TargetURL = ctx.String("url")
	}
	cfg.Validate()
	return cfg, nil
}

func openRegistry(cfg *auditk.Config) (*store.Registry, error) {
	registry := store.NewRegistry(cfg.RegistryPath)
	if err := registry.Init(); err != nil {
		return nil, err
	}
	return registry, nil
}

// openTracker activates the configured project. The caller must Stop it.
func openTracker(ctx *cli.Context) (*scanner.Tracker, error) {
	cfg, err := LoadConfig(ctx)
	if err != nil {
		return nil, err
	}
	registry, err := openRegistry(cfg)
	if err != nil {
		return nil, err
	}

	tracker := scanner.New(cfg, registry)
	if path := ctx.String("sitemap"); path != "" {
		tracker.SetSiteMapProvider(NewFileSiteMapProvider(path))
	}

	if err := tracker.Init(context.Background()); err != nil {
		if errors.Is(err, auditk.ErrUnresolvedProject) {
			return nil, errors.Wrap(err, "create one with 'project create --name <name> --datafile <file>' or pass --project and --datafile")
		}
		return nil, err
	}
	return tracker, nil
}

func printOutcome(outcome auditk.Outcome) error {
	if !outcome.OK {
		return errors.New(outcome.Reason)
	}
	fmt.Println(outcome.String())
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
