package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"chipchip/internal/export"
	"chipchip/internal/registry"

	"github.com/spf13/cobra"
)

func (a *app) exportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a session as a PDF transcript",
		Long: `Export a session as a PDF transcript.

The file is named after the session and written to the export directory
(CHIPCHIP_EXPORT_DIR, default the current directory) unless -o is given.

Examples:
  chipchip export 3f0c...
  chipchip export 3f0c... -o weekly-sales.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			session, ok := a.registry.Get(id)
			if !ok {
				return fmt.Errorf("export %s: %w", id, registry.ErrNotFound)
			}

			path := output
			if path == "" {
				path = filepath.Join(a.cfg.ExportDir, export.FileName(session))
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("create export directory: %w", err)
			}

			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("create %s: %w", path, err)
			}
			err = a.ctrl.ExportChat(id, f)
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return fmt.Errorf("export %s: %w", id, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Exported: %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file")
	return cmd
}
