package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/faucetdb/schemaguard/internal/model"
	"github.com/faucetdb/schemaguard/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long: `Create, list, and revoke API keys. Keys can validate files and read sources,
history and drift over the REST API; managing sources and keys needs an admin
session.`,
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		label string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a new API key. The raw key is shown once and cannot be retrieved again.",
		Example: `  schemaguard key create --label "CI pipeline"
  schemaguard key create --label nightly-import --ttl 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(cmd, label, ttl)
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "Human-readable label for the key")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Lifetime of the key (e.g. 24h); 0 never expires")

	return cmd
}

func runKeyCreate(cmd *cobra.Command, label string, ttl time.Duration) error {
	if ttl < 0 {
		return fmt.Errorf("--ttl must not be negative")
	}

	ctx := context.Background()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	authSvc := service.NewAuthService(e.store, e.cfg.Auth.JWTSecret)
	raw, key, err := authSvc.CreateAPIKey(ctx, label, ttl)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fields := []resultField{
		{Label: "Key", Value: raw},
		{Label: "Prefix", Value: key.KeyPrefix},
	}
	if label != "" {
		fields = append(fields, resultField{Label: "Label", Value: label})
	}
	if key.ExpiresAt != nil {
		fields = append(fields, resultField{Label: "Expires", Value: key.ExpiresAt.Local().Format(time.DateTime)})
	}
	printResult(cmd.OutOrStdout(), fields, "Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(cmd *cobra.Command, jsonOutput bool) error {
	ctx := context.Background()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	keys, err := e.store.ListAPIKeys(ctx)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, keys)
	}

	if len(keys) == 0 {
		fmt.Fprintln(out, "No API keys configured. Use 'schemaguard key create' to create one.")
		return nil
	}

	fmt.Fprintf(out, "%-14s %-24s %-8s %-20s\n", "PREFIX", "LABEL", "ACTIVE", "EXPIRES")
	fmt.Fprintf(out, "%-14s %-24s %-8s %-20s\n", "------", "-----", "------", "-------")
	for _, k := range keys {
		fmt.Fprintf(out, "%-14s %-24s %-8s %-20s\n", k.KeyPrefix, k.Label, keyState(k), expiry(k))
	}

	return nil
}

func keyState(k model.APIKey) string {
	switch {
	case !k.IsActive:
		return "revoked"
	case k.ExpiresAt != nil && time.Now().After(*k.ExpiresAt):
		return "expired"
	default:
		return "yes"
	}
}

func expiry(k model.APIKey) string {
	if k.ExpiresAt == nil {
		return "never"
	}
	return k.ExpiresAt.Local().Format(time.DateTime)
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <prefix>",
		Short: "Revoke an API key by its prefix",
		Long:  "Deactivate an API key, rejecting any further requests that use it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(cmd, args[0])
		},
	}
}

func runKeyRevoke(cmd *cobra.Command, prefix string) error {
	ctx := context.Background()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	keys, err := e.store.ListAPIKeys(ctx)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	// Accept a shortened prefix as long as it is unambiguous.
	var matches []string
	for _, k := range keys {
		if k.IsActive && strings.HasPrefix(k.KeyPrefix, prefix) {
			matches = append(matches, k.KeyPrefix)
		}
	}
	switch len(matches) {
	case 0:
		return fmt.Errorf("no active API key found with prefix %q", prefix)
	case 1:
	default:
		return fmt.Errorf("prefix %q matches %d keys: %s", prefix, len(matches), strings.Join(matches, ", "))
	}

	if err := e.store.RevokeAPIKeyByPrefix(ctx, matches[0]); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Revoked API key with prefix %q\n", matches[0])
	return nil
}
