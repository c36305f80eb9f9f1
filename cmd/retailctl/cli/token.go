package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/odyssey-erp/retailstock/internal/rbac"
	"github.com/odyssey-erp/retailstock/internal/shared"
)

// TokenOptions defines the flags of the token command.
type TokenOptions struct {
	Secret      string
	ActorID     int64
	Permissions string
	TTL         time.Duration
	Stdout      io.Writer
	Stderr      io.Writer
}

// TokenCommand mints a bearer token for local testing. An empty permission
// list grants every permission.
func TokenCommand(opts TokenOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Secret == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "token: ACTOR_TOKEN_SECRET is not set")
		return 1
	}
	if opts.ActorID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "token: --actor must be positive")
		return 1
	}
	if opts.TTL <= 0 {
		opts.TTL = 12 * time.Hour
	}
	perms := rbac.All()
	if strings.TrimSpace(opts.Permissions) != "" {
		perms = nil
		for _, p := range strings.Split(opts.Permissions, ",") {
			if p = strings.TrimSpace(p); p != "" {
				perms = append(perms, p)
			}
		}
	}
	token, err := rbac.NewAuthenticator(opts.Secret, nil).Issue(shared.Actor{ID: opts.ActorID, Permissions: perms}, opts.TTL)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "token: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(opts.Stdout, token)
	return 0
}
