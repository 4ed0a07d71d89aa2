package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aescanero/dago-sandbox-router/internal/config"
	"github.com/aescanero/dago-sandbox-router/internal/rules"
)

type rulesOptions struct {
	sandbox  string
	baseline bool
	asJSON   bool
}

// NewRulesCmd creates the rules command
func NewRulesCmd() *cobra.Command {
	opts := &rulesOptions{}

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Show the active routing keys",
		Long: `Fetch the routing rules from the routes API with the configured
baseline identity and print the active routing keys.

By default the query is made as the configured worker (SANDBOX_NAME);
--sandbox and --baseline override that.

Examples:
  sandboxctl rules
  sandboxctl rules --sandbox canary1
  sandboxctl rules --baseline --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRules(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.sandbox, "sandbox", "", "Query as this sandbox")
	cmd.Flags().BoolVar(&opts.baseline, "baseline", false, "Query as the baseline")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print JSON")
	cmd.MarkFlagsMutuallyExclusive("sandbox", "baseline")

	return cmd
}

func runRules(cmd *cobra.Command, opts *rulesOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	clientCfg := cfg.ClientConfig()
	switch {
	case opts.baseline:
		clientCfg.SandboxName = ""
	case opts.sandbox != "":
		clientCfg.SandboxName = opts.sandbox
	}

	client, err := rules.NewClient(clientCfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RoutesAPI.FetchTimeout+time.Second)
	defer cancel()

	keys, err := client.FetchRoutingKeys(ctx)
	if err != nil {
		return err
	}
	active := rules.NewKeySet(keys...)

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"url":  client.URL(),
			"keys": active.Keys(),
		})
	}

	fmt.Fprintf(out, "Source: %s\n", client.URL())
	if active.Len() == 0 {
		fmt.Fprintln(out, "No active routing keys")
		return nil
	}
	fmt.Fprintf(out, "Active routing keys (%d): %s\n", active.Len(), strings.Join(active.Keys(), ", "))
	return nil
}
