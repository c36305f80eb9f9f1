// Command retailctl bundles operator helpers: development tokens, ledger
// verification and manual job triggers.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/odyssey-erp/retailstock/cmd/retailctl/cli"
	"github.com/odyssey-erp/retailstock/internal/app"
)

const usage = `usage: retailctl <command> [flags]

commands:
  token      mint a bearer token for local testing
  verify     replay every ledger and compare it with the inventory records
  jobs       trigger a background job or show queue stats
`

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	switch args[0] {
	case "token":
		fs := flag.NewFlagSet("token", flag.ContinueOnError)
		fs.SetOutput(stderr)
		actor := fs.Int64("actor", 1, "actor id placed in the sub claim")
		perms := fs.String("perms", "", "comma separated permissions, empty for all")
		ttl := fs.Duration("ttl", 12*time.Hour, "token lifetime")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		return cli.TokenCommand(cli.TokenOptions{
			Secret: cfg.ActorTokenSecret, ActorID: *actor, Permissions: *perms, TTL: *ttl,
			Stdout: stdout, Stderr: stderr,
		})
	case "verify":
		fs := flag.NewFlagSet("verify", flag.ContinueOnError)
		fs.SetOutput(stderr)
		store := fs.Int64("store", 0, "limit to one store")
		asJSON := fs.Bool("json", false, "print a JSON summary")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		logger := slog.New(slog.NewTextHandler(stderr, nil))
		container, err := app.Build(ctx, cfg, logger, nil)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "verify: %v\n", err)
			return 1
		}
		defer container.Close()
		return cli.VerifyCommand(ctx, container.Inventory, cli.VerifyOptions{
			StoreID: *store, JSONOutput: *asJSON, Stdout: stdout, Stderr: stderr,
		})
	case "jobs":
		return runJobs(ctx, cfg, args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
}

func runJobs(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	fs.SetOutput(stderr)
	trigger := fs.String("trigger", "", "task type to enqueue, e.g. stock:revaluation")
	store := fs.Int64("store", 0, "store id for store scoped jobs")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()

	if *trigger != "" {
		info, err := jobsCLI.Trigger(ctx, *trigger, *store)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return 0
	}
	stats, err := jobsCLI.InspectQueue(ctx)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}
	_ = json.NewEncoder(stdout).Encode(stats)
	return 0
}
