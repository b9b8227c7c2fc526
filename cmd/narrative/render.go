package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CDLUC3/dmptool-narrative-generator/internal/app"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/config"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/export"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/observability"
)

// runRender is an operator tool: it reads the database directly and does
// not apply the permission gate.
func runRender(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetString("id")
	formatName, _ := cmd.Flags().GetString("format")
	out, _ := cmd.Flags().GetString("out")
	planVersion, _ := cmd.Flags().GetString("plan-version")
	rawOptions, err := cmd.Flags().GetStringToString("option")
	if err != nil {
		return fmt.Errorf("failed to read --option flag: %w", err)
	}

	format, err := parseFormat(formatName)
	if err != nil {
		return err
	}
	opts := export.ParseOptions(optionValues(rawOptions))

	cfg := config.Load()
	dmpID := app.NormalizeDMPID(id, cfg.DMPIDBaseURL)
	if dmpID == "" {
		return fmt.Errorf("--id is required")
	}
	logger := observability.InitLogger("narrative", cfg.LogLevel, cfg.LogPretty)
	ctx := cmd.Context()

	d, err := openDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	resolved, err := d.reconciler.ResolveVersion(ctx, dmpID, planVersion)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dmpID, err)
	}
	result, err := d.exporter.Render(ctx, resolved.Plan, format, opts)
	if err != nil {
		return fmt.Errorf("render %s: %w", format, err)
	}

	var w io.Writer = cmd.OutOrStdout()
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	if _, err := w.Write(result.Data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if out != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(result.Data), out)
	}
	return nil
}

func parseFormat(name string) (export.Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == string(export.FormatHTML) {
		return export.FormatHTML, nil
	}
	format, err := export.FormatFromExtension(name)
	if err != nil {
		return "", fmt.Errorf("invalid --format %q: must be html|csv|docx|json|pdf|txt", name)
	}
	return format, nil
}

func optionValues(raw map[string]string) url.Values {
	values := url.Values{}
	for k, v := range raw {
		values.Set(k, v)
	}
	return values
}
