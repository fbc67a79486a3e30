package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/LandRegistry/internal/core"
)

// uploadedDir is where --move puts files that ingested successfully.
const uploadedDir = "Uploaded"

type ingestOptions struct {
	dir   string
	topic string
	move  bool
}

func newIngestCmd(e *env) *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Ingest .xlsx/.xls workbooks",
		Long: `Ingest the named workbooks and, with --dir, every .xlsx or .xls file directly
inside DIR. Each file is processed like an upload: every sheet with data becomes
a record set. A failing file is reported and the rest continue.

With --move, each file that ingested at least one sheet is moved into an
"Uploaded" directory next to it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := collectFiles(opts.dir, args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return errors.New("no workbooks to ingest; pass files or --dir")
			}
			return runIngest(cmd.Context(), e.app.Service, cmd.OutOrStdout(), files, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.dir, "dir", "d", "", "directory whose .xlsx/.xls files are ingested")
	cmd.Flags().StringVarP(&opts.topic, "topic", "t", "", "topic for the record sets (default from UPLOAD_DEFAULT_TOPIC)")
	cmd.Flags().BoolVar(&opts.move, "move", false, "move ingested files into an Uploaded directory")
	return cmd
}

// collectFiles returns args followed by the workbooks directly inside dir.
func collectFiles(dir string, args []string) ([]string, error) {
	files := append([]string(nil), args...)
	if dir == "" {
		return files, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := core.ContentTypeFor(entry.Name()); !ok {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

// runIngest ingests files one at a time, printing a line per file. It fails
// if any file failed.
func runIngest(ctx context.Context, svc *core.Service, out io.Writer, files []string, opts ingestOptions) error {
	failed := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("operation cancelled: %w", err)
		}

		result, err := ingestFile(ctx, svc, path, opts.topic)
		if err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %s\n", path, core.FormatUserError(err))
			continue
		}
		fmt.Fprintf(out, "OK   %s: %s\n", path, result.Message)
		for _, sh := range result.Sheets {
			if sh.Status != core.SheetSaved {
				fmt.Fprintf(out, "       sheet %q %s %s\n", sh.Name, sh.Status, sh.Error)
			}
		}

		if opts.move {
			dest, err := moveToUploaded(path)
			if err != nil {
				failed++
				fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
				continue
			}
			fmt.Fprintf(out, "       moved to %s\n", dest)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

func ingestFile(ctx context.Context, svc *core.Service, path, topic string) (*core.IngestResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMissingFile, err)
	}
	name := filepath.Base(path)
	if _, err := svc.ValidateUpload(name, "", info.Size()); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	contentType, _ := core.ContentTypeFor(name)
	return svc.Ingest(ctx, core.Upload{Filename: name, ContentType: contentType, Topic: topic, Data: data})
}

// moveToUploaded moves path into the Uploaded directory beside it.
func moveToUploaded(path string) (string, error) {
	dir, file := filepath.Split(path)
	if file == "" || strings.Contains(file, "..") {
		return "", fmt.Errorf("invalid filename: %q", path)
	}

	target := filepath.Join(dir, uploadedDir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", uploadedDir, err)
	}

	dest := filepath.Join(target, file)
	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("failed moving file %s: %w", file, err)
	}
	return dest, nil
}
