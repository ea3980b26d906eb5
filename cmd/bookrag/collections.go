package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mike-a-ellis/bookrag/internal/app"
	"github.com/mike-a-ellis/bookrag/internal/storage"
)

var resetConfirmed bool

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List the collections in the configured store",
	Args:  cobra.NoArgs,
	RunE:  runCollections,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the configured collection and all of its chunks",
	Long: `Deletes the collection named by --collection (or the config) from the
configured backend. Other collections in the same store are kept. The next
"index" run starts from an empty collection.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetConfirmed, "yes", "y", false, "confirm the deletion")
}

func runCollections(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	backend, err := app.OpenBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	return listCollections(ctx, os.Stdout, backend, cfg.CollectionName)
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !resetConfirmed {
		return fmt.Errorf("reset deletes collection %q from the %s index; rerun with --yes", cfg.CollectionName, cfg.Backend)
	}

	backend, err := app.OpenBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	return resetCollection(ctx, os.Stdout, backend, cfg.CollectionName)
}

// listCollections prints one collection per line, marking current with "*".
func listCollections(ctx context.Context, w io.Writer, backend storage.Backend, current string) error {
	names, err := backend.Collections(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(w, "No collections")
		return nil
	}
	for _, name := range names {
		marker := " "
		if name == current {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s\n", marker, name)
	}
	return nil
}

// resetCollection drops the backend's collection. A missing collection is
// reported, not treated as an error.
func resetCollection(ctx context.Context, w io.Writer, backend storage.Backend, name string) error {
	count, err := backend.Count(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Fprintf(w, "Collection %s does not exist\n", name)
		return nil
	}
	if err != nil {
		return err
	}

	if err := backend.DropCollection(ctx); err != nil {
		return fmt.Errorf("reset %s: %w", name, err)
	}
	fmt.Fprintf(w, "Deleted collection %s (%d chunks)\n", name, count)
	return nil
}
