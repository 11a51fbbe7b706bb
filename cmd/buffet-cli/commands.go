package main

import (
	"errors"
	"time"

	"github.com/urfave/cli/v2"

	"buffet/pkg/buffet"
)

const dateFormat = "2006-01-02"

var errIDRequired = errors.New("an id argument is required")

// parseTime accepts RFC 3339 timestamps or plain dates.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(dateFormat, s)
}

func firstArg(c *cli.Context) (string, error) {
	if c.Args().Len() == 0 {
		return "", errIDRequired
	}
	return c.Args().First(), nil
}

var strategyCommand = &cli.Command{
	Name:  "strategy",
	Usage: "manage strategy definitions",
	Subcommands: []*cli.Command{
		{
			Name:  "create",
			Usage: "create a strategy and activate it when its type is supported",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "name", Required: true, Usage: "strategy name"},
				&cli.StringFlag{Name: "type", Value: "rule_based", Usage: "rule_based, statistical or model_based"},
				&cli.StringFlag{Name: "params", Value: "{}", Usage: "JSON parameter document"},
			},
			Action: withClient(func(c *cli.Context, client *buffet.Client) (any, error) {
				return client.CreateStrategy(c.Context, buffet.CreateStrategyRequest{
					Name:       c.String("name"),
					Type:       c.String("type"),
					Parameters: []byte(c.String("params")),
				})
			}),
		},
	},
}

var backtestCommand = &cli.Command{
	Name:  "backtest",
	Usage: "create and inspect backtests",
	Subcommands: []*cli.Command{
		{
			Name:  "create",
			Usage: "create a backtest and queue its run",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "strategy", Required: true, Usage: "strategy id"},
				&cli.StringFlag{Name: "symbol", Required: true, Usage: "symbol to replay"},
				&cli.StringFlag{Name: "start", Required: true, Usage: "start date (YYYY-MM-DD or RFC 3339)"},
				&cli.StringFlag{Name: "end", Required: true, Usage: "end date (YYYY-MM-DD or RFC 3339)"},
				&cli.Float64Flag{Name: "balance", Value: 10000, Usage: "initial balance"},
			},
			Action: withClient(func(c *cli.Context, client *buffet.Client) (any, error) {
				start, err := parseTime(c.String("start"))
				if err != nil {
					return nil, err
				}
				end, err := parseTime(c.String("end"))
				if err != nil {
					return nil, err
				}
				return client.CreateBacktest(c.Context, buffet.CreateBacktestRequest{
					StrategyID:     c.String("strategy"),
					Symbol:         c.String("symbol"),
					StartTime:      start,
					EndTime:        end,
					InitialBalance: c.Float64("balance"),
				})
			}),
		},
		{
			Name:      "run",
			Usage:     "queue the run of an existing backtest",
			ArgsUsage: "<id>",
			Action: withClient(func(c *cli.Context, client *buffet.Client) (any, error) {
				id, err := firstArg(c)
				if err != nil {
					return nil, err
				}
				return client.RunBacktest(c.Context, id)
			}),
		},
		{
			Name:      "get",
			Usage:     "show a backtest and its results",
			ArgsUsage: "<id>",
			Action: withClient(func(c *cli.Context, client *buffet.Client) (any, error) {
				id, err := firstArg(c)
				if err != nil {
					return nil, err
				}
				return client.GetBacktest(c.Context, id)
			}),
		},
		{
			Name:      "trades",
			Usage:     "list the simulated trades of a backtest",
			ArgsUsage: "<id>",
			Action: withClient(func(c *cli.Context, client *buffet.Client) (any, error) {
				id, err := firstArg(c)
				if err != nil {
					return nil, err
				}
				return client.ListBacktestTrades(c.Context, id)
			}),
		},
	},
}

var orderCommand = &cli.Command{
	Name:  "order",
	Usage: "submit and cancel orders",
	Subcommands: []*cli.Command{
		{
			Name:  "submit",
			Usage: "submit a market order, or a limit order with --limit",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "symbol", Required: true},
				&cli.StringFlag{Name: "side", Required: true, Usage: "buy or sell"},
				&cli.Float64Flag{Name: "qty", Required: true, Usage: "quantity"},
				&cli.Float64Flag{Name: "limit", Usage: "limit price"},
			},
			Action: withClient(func(c *cli.Context, client *buffet.Client) (any, error) {
				req := buffet.SubmitOrderRequest{
					Symbol:   c.String("symbol"),
					Side:     c.String("side"),
					Quantity: c.Float64("qty"),
				}
				if c.IsSet("limit") {
					limit := c.Float64("limit")
					req.LimitPrice = &limit
				}
				return client.SubmitOrder(c.Context, req)
			}),
		},
		{
			Name:      "cancel",
			Usage:     "cancel an open order",
			ArgsUsage: "<id>",
			Action: withClient(func(c *cli.Context, client *buffet.Client) (any, error) {
				id, err := firstArg(c)
				if err != nil {
					return nil, err
				}
				return client.CancelOrder(c.Context, id)
			}),
		},
	},
}

var positionsCommand = &cli.Command{
	Name:  "positions",
	Usage: "list positions, newest first",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "open", Usage: "only open positions"},
	},
	Action: withClient(func(c *cli.Context, client *buffet.Client) (any, error) {
		return client.ListPositions(c.Context, c.Bool("open"))
	}),
}

var tickCommand = &cli.Command{
	Name:  "tick",
	Usage: "feed one bar to the live strategies and print the signals",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "symbol", Required: true},
		&cli.Float64Flag{Name: "close", Required: true},
		&cli.Float64Flag{Name: "open"},
		&cli.Float64Flag{Name: "high"},
		&cli.Float64Flag{Name: "low"},
		&cli.Float64Flag{Name: "volume"},
		&cli.StringFlag{Name: "time", Usage: "bar timestamp (defaults to now)"},
	},
	Action: withClient(func(c *cli.Context, client *buffet.Client) (any, error) {
		req := buffet.MarketDataRequest{
			Symbol: c.String("symbol"),
			Open:   c.Float64("open"),
			High:   c.Float64("high"),
			Low:    c.Float64("low"),
			Close:  c.Float64("close"),
			Volume: c.Float64("volume"),
		}
		if c.IsSet("time") {
			ts, err := parseTime(c.String("time"))
			if err != nil {
				return nil, err
			}
			req.Timestamp = ts
		}
		return client.MarketDataUpdate(c.Context, req)
	}),
}
