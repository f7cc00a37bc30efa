package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/faucetdb/schemaguard/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var (
		baseURL    string
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Generate the OpenAPI document",
		Long: `Generate the OpenAPI 3.1 document of the schemaguard REST API. Every table of
every reachable reference source is included as a component schema, and the
validate endpoint lists the known table names.`,
		Example: `  schemaguard openapi
  schemaguard openapi -o openapi.json --base-url https://schemaguard.example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpenAPI(cmd, baseURL, outputFile)
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Server URL to put in the document")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the document to a file instead of stdout")

	return cmd
}

func runOpenAPI(cmd *cobra.Command, baseURL, outputFile string) error {
	ctx := context.Background()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	e.connectAll(ctx)
	sources, err := openapi.CollectSources(ctx, e.registry, e.store, e.log)
	if err != nil {
		return fmt.Errorf("collect sources: %w", err)
	}

	if baseURL == "" {
		host := e.cfg.Server.Host
		if host == "" || host == "0.0.0.0" {
			host = "localhost"
		}
		baseURL = fmt.Sprintf("http://%s:%d", host, e.cfg.Server.Port)
	}

	doc := openapi.Generate(openapi.Options{
		BaseURL:      baseURL,
		Version:      versionString(),
		APIKeyHeader: e.cfg.Auth.APIKeyHeader,
		Sources:      sources,
	})

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if outputFile == "" {
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	}
	if err := os.WriteFile(outputFile, append(b, '\n'), 0644); err != nil {
		return fmt.Errorf("write %s: %w", outputFile, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%d sources)\n", outputFile, len(sources))
	return nil
}
