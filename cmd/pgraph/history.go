package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"projectgraph/internal/history"
	"projectgraph/internal/pipeline"
	"projectgraph/internal/settings"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the snapshot and event history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots (newest first) and event counts",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the history index from snapshot files and the event log",
	Args:  cobra.NoArgs,
	RunE:  runHistoryReindex,
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export snapshots and events as a tar.zst archive",
	Args:  cobra.NoArgs,
	RunE:  runHistoryExport,
}

func openHistory(cmd *cobra.Command) (*history.Store, func(), error) {
	layout, err := settings.NewLayout(rootDir)
	if err != nil {
		return nil, nil, err
	}
	store, closeStore := pipeline.OpenHistory(layout, newLogger(cmd.ErrOrStderr()))
	return store, closeStore, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	var snaps []history.SnapshotInfo
	counts := map[string]int{}
	if store.Index != nil {
		if snaps, err = store.Index.Snapshots(); err != nil {
			return err
		}
		if counts, err = store.Index.EventCounts(); err != nil {
			return err
		}
	}
	if len(snaps) == 0 {
		// Index empty or unavailable: fall back to the files.
		if snaps, err = store.ListSnapshots(); err != nil {
			return err
		}
		sort.Slice(snaps, func(i, j int) bool { return snaps[i].Name > snaps[j].Name })
		events, err := store.ReadEvents()
		if err != nil {
			return err
		}
		counts = map[string]int{}
		for _, e := range events {
			counts[e.Kind]++
		}
	}

	w := cmd.OutOrStdout()
	if len(snaps) == 0 {
		fmt.Fprintln(w, "No snapshots.")
	}
	for _, s := range snaps {
		fmt.Fprintf(w, "%s  %s  %s  %d bytes\n", s.Name, shortHash(s.Digest), s.CreatedAt.Format("2006-01-02 15:04:05"), s.Size)
	}

	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "%s: %s", k, plural(counts[k], "event"))
		if store.Index != nil {
			last, err := store.Index.LastEvent(k)
			if err != nil {
				return err
			}
			if last != nil {
				fmt.Fprintf(w, ", last %s", last.TS.UTC().Format("2006-01-02 15:04:05"))
				if last.RunID != "" {
					fmt.Fprintf(w, " (run %s)", last.RunID)
				}
			}
		}
		fmt.Fprintln(w)
	}
	return nil
}

func runHistoryReindex(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer closeStore()
	if store.Index == nil {
		return errors.New("history index unavailable")
	}
	snaps, events, err := store.Index.Reindex(store)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %s and %s.\n", plural(snaps, "snapshot"), plural(events, "event"))
	return nil
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	f, err := os.Create(historyOutput)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	n, err := store.Export(f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing archive: %w", cerr)
	}
	if err != nil {
		os.Remove(historyOutput)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", plural(n, "file"), historyOutput)
	return nil
}
