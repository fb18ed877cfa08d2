package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"

	"focusflow/internal/client/api"
	"focusflow/internal/client/session"
	"focusflow/internal/client/storage"
	"focusflow/internal/config"
	"focusflow/internal/logging"
	"focusflow/internal/model"
)

const usage = `usage: focusflow <command> [flags]

commands:
  login -u <username> [-p <password>]   sign in (password falls back to FOCUSFLOW_PASSWORD)
  logout                                forget the stored session
  status                                show the stored session
  me                                    fetch the signed-in user from the server
  users                                 list users (admin only)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string, out io.Writer) error {
	cfg := config.LoadClient()
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	log := logging.Must(level, config.EnvDevelopment)
	defer log.Sync() //nolint:errcheck

	store, err := storage.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	client := api.NewClient(cfg.APIURL, &http.Client{Timeout: cfg.Timeout})
	m := session.NewManager(store, client, log)
	m.Hydrate(ctx)

	switch command {
	case "login":
		return login(ctx, m, args, out)
	case "logout":
		m.Logout(ctx)
		fmt.Fprintln(out, "logged out")
		return nil
	case "status":
		return status(m, out)
	case "me":
		return get(ctx, m, client, "/api/me", out, model.RoleUser, model.RoleAdmin)
	case "users":
		return get(ctx, m, client, "/api/users", out, model.RoleAdmin)
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}

func login(ctx context.Context, m *session.Manager, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("u", "", "username")
	password := fs.String("p", os.Getenv("FOCUSFLOW_PASSWORD"), "password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	result := m.Login(ctx, *username, *password)
	if !result.OK {
		return fmt.Errorf("login failed: %s", result.Message)
	}
	state := m.State()
	fmt.Fprintf(out, "logged in as %s (%s)\n", state.User.Username, state.User.Role)
	return nil
}

func status(m *session.Manager, out io.Writer) error {
	state := m.State()
	if state.Status != session.Authenticated {
		fmt.Fprintln(out, "not logged in")
		return nil
	}
	fmt.Fprintf(out, "logged in as %s (%s), id %d\n", state.User.Username, state.User.Role, state.User.ID)
	return nil
}

func get(ctx context.Context, m *session.Manager, client *api.Client, path string, out io.Writer, roles ...model.Role) error {
	switch m.Guard(roles...) {
	case session.GuardRedirectLogin:
		return fmt.Errorf("not logged in, run: focusflow login -u <username>")
	case session.GuardRedirectHome:
		return fmt.Errorf("%s requires role %v", path, roles)
	}

	req, err := http.NewRequest(http.MethodGet, client.URL(path), nil)
	if err != nil {
		return err
	}
	resp, err := m.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := api.CheckStatus(resp); err != nil {
		if api.IsStatus(err, http.StatusUnauthorized) {
			return fmt.Errorf("session expired, log in again: %w", err)
		}
		return err
	}

	var body any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(body)
}

