package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/connector/drivers"
	"github.com/faucetdb/schemaguard/internal/tabular"
)

// buildInfo describes the binary and what it can validate.
type buildInfo struct {
	Version   string   `json:"version"`
	Commit    string   `json:"commit"`
	Built     string   `json:"built"`
	GoVersion string   `json:"go_version"`
	Platform  string   `json:"platform"`
	Formats   []string `json:"file_formats"`
	Drivers   []string `json:"drivers"`
}

func newBuildInfo(version, commit, date string) buildInfo {
	reg := connector.NewRegistry()
	drivers.Register(reg)
	return buildInfo{
		Version:   version,
		Commit:    commit,
		Built:     date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Formats:   tabular.SupportedExtensions(),
		Drivers:   reg.Drivers(),
	}
}

func (b buildInfo) write(w io.Writer) {
	fmt.Fprintf(w, "schemaguard %s (%s, built %s)\n", b.Version, b.Commit, b.Built)
	fmt.Fprintf(w, "  go:       %s %s\n", b.GoVersion, b.Platform)
	fmt.Fprintf(w, "  formats:  %s\n", strings.Join(b.Formats, " "))
	fmt.Fprintf(w, "  drivers:  %s\n", strings.Join(b.Drivers, " "))
}

func newVersionCmd(version, commit, date string) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version, supported file formats and database drivers",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := newBuildInfo(version, commit, date)
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			info.write(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	return cmd
}
