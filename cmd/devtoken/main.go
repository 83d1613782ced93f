// Command devtoken issues access tokens for local testing against the
// gateway. It reads the same config as the gateway, so a token it prints
// validates against a gateway started from that config.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/caseportal/messaging/internal/config"
	"github.com/caseportal/messaging/pkg/jwt"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		userID     string
		role       string
		ttl        time.Duration
	)

	flagSet := pflag.NewFlagSet("devtoken", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "./config", "directory holding config.yaml")
	flagSet.StringVarP(&userID, "user", "u", "", "user id to issue the token for (required)")
	flagSet.StringVarP(&role, "role", "r", "client", "role claim: client, staff or admin")
	flagSet.DurationVar(&ttl, "ttl", 0, "token lifetime (default: auth.jwt.access_duration)")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if userID == "" {
		fmt.Fprintln(os.Stderr, "Usage: devtoken --user <id> [--role client|staff|admin] [--ttl 1h] [--config ./config]")
		os.Exit(2)
	}
	switch role {
	case "client", "staff", "admin":
	default:
		return fmt.Errorf("unknown role %q", role)
	}

	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if ttl > 0 {
		cfg.Auth.JWT.AccessDuration = ttl
	}

	manager, err := jwt.NewManager(cfg.Auth.JWT)
	if err != nil {
		return fmt.Errorf("init jwt manager: %w", err)
	}

	token, exp, err := manager.IssueAccessToken(userID, role)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.UTC().Format(time.RFC3339))
	return nil
}
