package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pharmareach-cli/internal/export"
	"github.com/sells-group/pharmareach-cli/internal/store"
)

var (
	exportPath   string
	exportFormat string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the scored entity artifact for the dashboard",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path := exportPath
		if path == "" {
			path = cfg.Export.Path
		}
		format := exportFormat
		if format == "" {
			format = cfg.Export.Format
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entities, err := st.ListEntities(ctx, store.EntityFilter{})
		if err != nil {
			return eris.Wrap(err, "export: list entities")
		}
		if len(entities) == 0 {
			zap.L().Warn("no entities to export; run the pipeline first")
			return nil
		}

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return eris.Wrap(err, "export: create output dir")
		}

		switch strings.ToLower(format) {
		case "csv":
			err = export.WriteCSV(entities, path)
		case "xlsx":
			err = export.WriteXLSX(entities, path)
		default:
			return eris.Errorf("unknown export format %q (want csv or xlsx)", format)
		}
		if err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("path", path),
			zap.String("format", format),
			zap.Int("entities", len(entities)))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportPath, "out", "", "output path (default from config)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "output format: csv or xlsx (default from config)")
	rootCmd.AddCommand(exportCmd)
}
