package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/moolinks/backend/internal/bookmarks"
	"github.com/moolinks/backend/internal/db"
	"github.com/moolinks/backend/internal/models"
	"github.com/moolinks/backend/internal/storage"
)

type folderLister interface {
	List(ctx context.Context, userID string) ([]models.Folder, error)
}

type linkLister interface {
	List(ctx context.Context, userID, folderID string) ([]models.Link, error)
}

type exportStore interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

type bookmarkImporter interface {
	Import(ctx context.Context, userID, folderID string, entries []bookmarks.Entry) (bookmarks.ImportResult, error)
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		userID string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a user's bookmarks as a Netscape bookmark file",
		Long: `Writes the folders and links of one user as a Netscape bookmark file.
With --out the file is written locally ("-" for stdout); otherwise it is
uploaded to the configured object store and its location is printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			pool, err := db.Connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc, err := buildDependencies(pool, cfg, logger)
			if err != nil {
				return err
			}
			defer svc.close(context.Background())

			switch output {
			case "":
				store, err := storage.NewS3ExportStore(ctx, cfg.ObjectStore)
				if err != nil {
					return err
				}
				location, err := publishExport(ctx, svc.folders, svc.links, store, userID, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), location)
				return nil
			case "-":
				return writeExport(ctx, svc.folders, svc.links, userID, cmd.OutOrStdout())
			default:
				var buf bytes.Buffer
				if err := writeExport(ctx, svc.folders, svc.links, userID, &buf); err != nil {
					return err
				}
				if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
					return fmt.Errorf("write export: %w", err)
				}
				logger.Info("bookmarks exported", "user_id", userID, "path", output)
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "id of the user to export")
	cmd.Flags().StringVarP(&output, "out", "o", "", `write to this path ("-" for stdout) instead of the object store`)
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	var (
		userID   string
		folderID string
		wait     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "import <bookmarks.html>",
		Short: "Import a Netscape bookmark file into one folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open bookmark file: %w", err)
			}
			defer file.Close()

			pool, err := db.Connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc, err := buildDependencies(pool, cfg, logger)
			if err != nil {
				return err
			}

			result, importErr := importFile(ctx, svc.importer, userID, folderID, file)

			// Queued metadata lookups finish before the pool closes.
			drainCtx, cancel := context.WithTimeout(context.Background(), wait)
			defer cancel()
			if err := svc.close(drainCtx); err != nil {
				logger.Warn("metadata backfill incomplete", "error", err)
			}

			if importErr != nil {
				return importErr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d, skipped %d, queued %d\n", result.Imported, result.Skipped, result.Queued)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "id of the owning user")
	cmd.Flags().StringVar(&folderID, "folder", "", "id of the destination folder")
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "how long to wait for queued metadata lookups")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("folder")

	return cmd
}

func writeExport(ctx context.Context, folders folderLister, links linkLister, userID string, w io.Writer) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("export: user id required")
	}

	folderList, err := folders.List(ctx, userID)
	if err != nil {
		return fmt.Errorf("export: list folders: %w", err)
	}
	linkList, err := links.List(ctx, userID, "")
	if err != nil {
		return fmt.Errorf("export: list links: %w", err)
	}

	return bookmarks.Export(w, folderList, linkList)
}

// publishExport uploads the export of userID and returns its location.
func publishExport(ctx context.Context, folders folderLister, links linkLister, store exportStore, userID string, now time.Time) (string, error) {
	var buf bytes.Buffer
	if err := writeExport(ctx, folders, links, userID, &buf); err != nil {
		return "", err
	}
	return store.Save(ctx, storage.ExportKey(strings.TrimSpace(userID), now), &buf)
}

func importFile(ctx context.Context, importer bookmarkImporter, userID, folderID string, r io.Reader) (bookmarks.ImportResult, error) {
	entries, err := bookmarks.Parse(r)
	if err != nil {
		return bookmarks.ImportResult{}, err
	}
	return importer.Import(ctx, strings.TrimSpace(userID), strings.TrimSpace(folderID), entries)
}
