package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/loykin/handover"
	"github.com/loykin/handover/internal/history"
	"github.com/loykin/handover/internal/restart"
	"github.com/loykin/handover/pkg/client"
	"github.com/loykin/handover/pkg/template"
)

// command binds CLI handlers; logic stays testable apart from cobra.
type command struct{}

// Restart connects to the coordination socket and asks the running
// daemon to hand over to a new generation.
func (c command) Restart(f RestartFlags) error {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pid, err := handover.Trigger(ctx, f.Socket)
	if err != nil {
		var nr *restart.NotRunningError
		if errors.As(err, &nr) {
			return fmt.Errorf("%w\n%s", err, nr.Guidance())
		}
		return err
	}
	fmt.Printf("restart complete: handed over to pid %d\n", pid)
	return nil
}

// Status fetches the daemon snapshot over the admin API.
func (c command) Status(f StatusFlags) error {
	api := c.apiClient(f.APIUrl, f.APITimeout, f.Token)
	ctx, cancel := context.WithTimeout(context.Background(), f.APITimeout+time.Second)
	defer cancel()

	if !api.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable at %s - is the admin API enabled?", c.apiURL(f.APIUrl))
	}
	st, err := api.Status(ctx)
	if err != nil {
		return err
	}
	printJSON(st)
	return nil
}

// History lists recent restart events, from the SQL sink or the API.
func (c command) History(f HistoryFlags) error {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.APIUrl != "" {
		return c.historyViaAPI(f)
	}

	dsn := f.DSN
	if dsn == "" && f.ConfigPath != "" {
		cfg, err := handover.LoadConfig(f.ConfigPath)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		dsn = cfg.History.DSN
	}
	if dsn == "" {
		return fmt.Errorf("no history source: pass --dsn, --api-url, or a config with [history] dsn")
	}

	sink, err := history.NewSQLSinkFromDSN(dsn)
	if err != nil {
		return fmt.Errorf("open history database: %w", err)
	}
	defer func() { _ = sink.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	events, err := sink.Recent(ctx, f.Limit)
	if err != nil {
		return err
	}
	printJSON(events)
	return nil
}

func (c command) historyViaAPI(f HistoryFlags) error {
	api := c.apiClient(f.APIUrl, f.APITimeout, f.Token)
	ctx, cancel := context.WithTimeout(context.Background(), f.APITimeout+time.Second)
	defer cancel()

	events, err := api.History(ctx, f.Limit)
	if err != nil {
		return err
	}
	printJSON(events)
	return nil
}

// TemplateCreate writes a starter config file for a deployment profile.
func (c command) TemplateCreate(f TemplateCreateFlags) error {
	name := f.Name
	if name == "" {
		name = f.Type + "-sample"
	}

	outputPath := f.Output
	if outputPath == "" {
		outputPath = name + ".toml"
	}

	if _, err := os.Stat(outputPath); err == nil && !f.Force {
		return fmt.Errorf("file '%s' already exists (use --force to overwrite)", outputPath)
	}

	generator := template.NewGenerator()
	content, err := generator.GenerateTOML(template.ProfileType(f.Type), name)
	if err != nil {
		return fmt.Errorf("failed to generate template: %w", err)
	}

	if err := os.WriteFile(outputPath, content, 0o644); err != nil {
		return fmt.Errorf("failed to write template file: %w", err)
	}

	fmt.Printf("Config '%s' created: %s\n", name, outputPath)
	fmt.Printf("Start the daemon with: handover serve %s\n", outputPath)
	return nil
}

// HashToken prints the bcrypt hash for the admin token.
func (c command) HashToken(f HashTokenFlags, out io.Writer) error {
	if f.Token == "" {
		return fmt.Errorf("token must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(f.Token), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash token: %w", err)
	}
	_, _ = fmt.Fprintln(out, string(hash))
	return nil
}

func (c command) apiURL(url string) string {
	if url == "" {
		return "http://127.0.0.1:8080"
	}
	return url
}

func (c command) apiClient(url string, timeout time.Duration, token string) *client.Client {
	return client.New(client.Config{
		BaseURL: c.apiURL(url),
		Timeout: timeout,
		Token:   token,
	})
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
