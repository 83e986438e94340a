package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

const ServiceName = "synk"

var version = "0.0.0"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    ServiceName,
		Usage:   "Real-time presence and message fanout for Synk chat",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config_file",
				Aliases: []string{"c"},
				Usage:   "Path to the configuration file",
				EnvVars: []string{"SYNK_CONFIG_FILE"},
			},
		},
		Commands: []*cli.Command{
			serveCmd(),
			tokenCmd(),
			migrateCmd(),
		},
	}
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Run the WebSocket server",
		Action: func(c *cli.Context) error {
			return serve(c.Context, c.String("config_file"))
		},
	}
}

func tokenCmd() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue a development bearer token signed with the configured secret",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "User id to embed", Required: true},
			&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour, Usage: "Token lifetime"},
		},
		Action: func(c *cli.Context) error {
			tok, err := issueToken(c.String("config_file"), c.String("user"), c.Duration("ttl"))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, tok)
			return nil
		},
	}
}

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the Postgres schema",
		Action: func(c *cli.Context) error {
			return migrate(c.Context, c.String("config_file"))
		},
	}
}
