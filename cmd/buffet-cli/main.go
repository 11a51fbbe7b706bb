package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v2"

	"buffet/pkg/buffet"
)

const version = "0.1.0"

const defaultTimeout = 30 * time.Second

var (
	host    string
	timeout time.Duration
)

func jsonOutput(in any) error {
	j, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(j))
	return nil
}

func setupClient() (*buffet.Client, error) {
	return buffet.Dial(host, buffet.WithTimeout(timeout))
}

// withClient dials the server, runs fn and prints its result as JSON.
func withClient(fn func(c *cli.Context, client *buffet.Client) (any, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		client, err := setupClient()
		if err != nil {
			return err
		}
		defer client.Close()

		out, err := fn(c, client)
		if err != nil {
			return err
		}
		return jsonOutput(out)
	}
}

func main() {
	app := cli.NewApp()
	app.Name = "buffet-cli"
	app.Version = version
	app.Usage = "command line interface for the buffet trading server"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "host",
			Value:       "localhost:50051",
			Usage:       "the gRPC host to connect to",
			EnvVars:     []string{"BUFFET_HOST"},
			Destination: &host,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Value:       defaultTimeout,
			Usage:       "the default context timeout value for requests",
			Destination: &timeout,
		},
	}
	app.Commands = []*cli.Command{
		versionCommand,
		strategyCommand,
		backtestCommand,
		orderCommand,
		positionsCommand,
		tickCommand,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "print the CLI version",
	Action: func(*cli.Context) error {
		fmt.Printf("buffet-cli %s\n", version)
		return nil
	},
}
