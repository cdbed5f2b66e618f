package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/google/subcommands"

	"saldo/internal/cli"
	"saldo/internal/log"
	"saldo/internal/services"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentCLI)

	app := &cli.App{
		PageSize: cfg.PageSize,
		Open: func(ctx context.Context) (*services.Session, func() error, error) {
			return cli.OpenSession(ctx, cfg, logger)
		},
	}

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	cli.Register(commander, app)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
