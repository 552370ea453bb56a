// Package main is the entry point for the mail.tm poller.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/urfave/cli/v2"

	"github.com/shineum/tempmail-poller/internal/config"
	"github.com/shineum/tempmail-poller/internal/mailtm"
	"github.com/shineum/tempmail-poller/internal/poller"
	"github.com/shineum/tempmail-poller/internal/sink"
	"github.com/shineum/tempmail-poller/internal/sink/graph"
	"github.com/shineum/tempmail-poller/internal/sink/ses"
	"github.com/shineum/tempmail-poller/internal/sink/stdout"
)

const localPartAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:  "tempmail-poller",
		Usage: "watch a mail.tm inbox and report every new message once",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to YAML configuration file (optional)"},
			&cli.StringFlag{Name: "log-level", Usage: "override the configured log level"},
		},
		Writer: out,
		Commands: []*cli.Command{
			{
				Name:   "watch",
				Usage:  "poll the inbox until interrupted",
				Action: watchAction,
			},
			{
				Name:   "domains",
				Usage:  "list the domains accounts can be created on",
				Action: domainsAction,
			},
			{
				Name:  "create-account",
				Usage: "register a new mailbox",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "address", Usage: "full address; generated on the first active domain when empty"},
					&cli.StringFlag{Name: "password", Usage: "password; generated when empty"},
				},
				Action: createAccountAction,
			},
			{
				Name:  "token",
				Usage: "print a bearer token for an existing mailbox",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "address", Usage: "mailbox address (defaults to MAILTM_ADDRESS)"},
					&cli.StringFlag{Name: "password", Usage: "mailbox password (defaults to MAILTM_PASSWORD)"},
				},
				Action: tokenAction,
			},
		},
	}
}

// setup loads configuration, validates it for the running command and
// installs the global logger.
func setup(c *cli.Context) (*config.Config, error) {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if level := c.String("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	setupLogger(cfg.Logging.Level)

	if err := cfg.Validate(c.Command.Name); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output on stderr;
// stdout is reserved for reported messages.
func setupLogger(level string) {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newClient wires HTTPClient, Executor and Client from configuration.
func newClient(cfg *config.Config) *mailtm.Client {
	doer := mailtm.NewHTTPClient(mailtm.HTTPClientConfig{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
		Token:   cfg.Account.Token,
	})
	exec := mailtm.NewExecutor(doer, mailtm.ExecutorConfig{Budget: cfg.Poll.RetryBudget})
	return mailtm.NewClient(exec, cfg.Poll.RetryBudget)
}

// selectSink builds the sink named by cfg.Sink.Type. Validate has already
// checked that the selected sink is fully configured.
func selectSink(ctx context.Context, cfg *config.Config, out io.Writer) (sink.Sink, error) {
	switch cfg.Sink.Type {
	case "ses":
		slog.Info("using AWS SES sink",
			"region", cfg.SES.Region,
			"sender", cfg.SES.Sender,
			"forward_to", cfg.Sink.ForwardTo,
		)
		s, err := ses.New(ctx, ses.SESSinkConfig{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
			Sender:          cfg.SES.Sender,
			ForwardTo:       cfg.Sink.ForwardTo,
		})
		if err != nil {
			return nil, err
		}
		return s, nil

	case "graph":
		slog.Info("using Microsoft Graph sink",
			"sender", cfg.Graph.Sender,
			"forward_to", cfg.Sink.ForwardTo,
		)
		g, err := graph.New(graph.GraphSinkConfig{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			Sender:       cfg.Graph.Sender,
			ForwardTo:    cfg.Sink.ForwardTo,
		})
		if err != nil {
			return nil, err
		}
		return g, nil

	case "stdout", "":
		slog.Info("using stdout sink", "format", cfg.Sink.Format)
		return stdout.NewWithWriter(out, cfg.Sink.Format), nil

	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Sink.Type)
	}
}

func watchAction(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := selectSink(ctx, cfg, c.App.Writer)
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}

	p := poller.New(newClient(cfg), s, poller.Config{
		Interval:        cfg.Poll.Interval,
		ContinueOnError: cfg.Poll.ContinueOnError,
	})

	slog.Info("starting tempmail-poller",
		"base_url", cfg.API.BaseURL,
		"account_id", cfg.Account.ID,
		"interval", cfg.Poll.Interval,
		"retry_budget", cfg.Poll.RetryBudget,
	)

	if err := p.Run(ctx); err != nil {
		return err
	}
	slog.Info("tempmail-poller stopped")
	return nil
}

func domainsAction(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}

	domains, err := newClient(cfg).Domains(c.Context)
	if err != nil {
		return err
	}
	for _, d := range domains {
		if d.IsActive {
			fmt.Fprintln(c.App.Writer, d.Domain)
		}
	}
	return nil
}

func createAccountAction(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}
	client := newClient(cfg)

	address := c.String("address")
	if address == "" {
		address, err = generateAddress(c.Context, client)
		if err != nil {
			return err
		}
	}
	password := c.String("password")
	if password == "" {
		password, err = gonanoid.New(16)
		if err != nil {
			return fmt.Errorf("failed to generate password: %w", err)
		}
	}

	account, err := client.CreateAccount(c.Context, address, password)
	if err != nil {
		return err
	}

	slog.Info("account created", "account_id", account.ID, "address", account.Address)
	fmt.Fprintf(c.App.Writer, "address:  %s\npassword: %s\nid:       %s\n", account.Address, password, account.ID)
	return nil
}

// generateAddress picks a random local part on the first active domain.
func generateAddress(ctx context.Context, client *mailtm.Client) (string, error) {
	domains, err := client.Domains(ctx)
	if err != nil {
		return "", err
	}

	for _, d := range domains {
		if !d.IsActive {
			continue
		}
		local, err := gonanoid.Generate(localPartAlphabet, 12)
		if err != nil {
			return "", fmt.Errorf("failed to generate address: %w", err)
		}
		return local + "@" + d.Domain, nil
	}
	return "", errors.New("no active domain available")
}

func tokenAction(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}

	address := c.String("address")
	if address == "" {
		address = cfg.Account.Address
	}
	password := c.String("password")
	if password == "" {
		password = cfg.Account.Password
	}
	if address == "" || password == "" {
		return errors.New("token requires --address and --password (or MAILTM_ADDRESS and MAILTM_PASSWORD)")
	}

	tok, err := newClient(cfg).Token(c.Context, address, password)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, tok.Token)
	return nil
}
