// Package main provides the pgraph CLI.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"projectgraph/internal/commitgroup"
	"projectgraph/internal/drift"
	"projectgraph/internal/pipeline"
	"projectgraph/internal/validate"
)

// Version is the current pgraph version
var Version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:   "pgraph",
	Short: "pgraph - keep a declared project graph in sync with the code",
	Long: `pgraph compiles the declared project graph, observes the source tree
through language adapters and reports drift between the two. It also keeps a
history of every run and splits staged changes into grouped commits.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Compile, validate and reconcile the project graph",
	Long: `Runs a full reconciliation:

  1. Compiles project_graph/project_graph.jsonnet
  2. Validates the compiled graph against its schema
  3. Runs the enabled source adapters to build the observed graph
  4. Audits the project files and computes entity drift
  5. Records a snapshot and an event in the history
  6. Renders the diagram, drift summary, README sections and plans`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit project files against the declared graph",
	Long: `Compares the files on disk with the entities declared in the graph.

By default every file under the audit directories is checked. With
--changed-only or --files only the given subset is audited.

Drift is reported but never fails the command.`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the compiled graph against its schema",
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit staged files grouped by commitGroups",
	Long: `Partitions the staged files by the commitGroups declared in the graph and
creates one commit per non-empty group. Files under project_graph/ and AI rule
directories always get their own commits.

Groups are matched in declaration order; the first match wins.`,
	Args: cobra.NoArgs,
	RunE: runCommit,
}

var syncAICommandsCmd = &cobra.Command{
	Use:   "sync-ai-commands",
	Short: "Append AI command mappings to assistant rule files",
	Args:  cobra.NoArgs,
	RunE:  runSyncAICommands,
}

var (
	rootDir       string
	verbose       bool
	keepCompiled  bool
	changedOnly   bool
	auditFiles    []string
	graphPath     string
	commitDryRun  bool
	historyOutput string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	generateCmd.Flags().BoolVar(&keepCompiled, "keep-compiled", false, "Keep the compiled graph at project_graph/.cache/graph.json")
	auditCmd.Flags().BoolVar(&changedOnly, "changed-only", false, "Audit only files changed since HEAD")
	auditCmd.Flags().StringSliceVar(&auditFiles, "files", nil, "Audit only these files (comma-separated)")
	validateCmd.Flags().StringVar(&graphPath, "graph", "", "Compiled graph to validate (default: project_graph/.cache/graph.json)")
	commitCmd.Flags().BoolVar(&commitDryRun, "dry-run", false, "Show the commit plan without committing")
	historyExportCmd.Flags().StringVarP(&historyOutput, "out", "o", "", "Archive file to write (required)")
	historyExportCmd.MarkFlagRequired("out")

	historyCmd.AddCommand(historyListCmd, historyReindexCmd, historyExportCmd)
	rootCmd.AddCommand(generateCmd, auditCmd, validateCmd, commitCmd, historyCmd, syncAICommandsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func baseOptions(cmd *cobra.Command) pipeline.Options {
	return pipeline.Options{
		Root:   rootDir,
		Logger: newLogger(cmd.ErrOrStderr()),
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	opts := baseOptions(cmd)
	opts.KeepCompiled = keepCompiled
	out, err := pipeline.Generate(cmd.Context(), opts)
	if err != nil {
		return reportError(cmd.OutOrStdout(), err)
	}
	w := cmd.OutOrStdout()
	printAudit(w, out.Audit)
	fmt.Fprintf(w, "\nDrift: %d observed not declared, %d declared not observed\n",
		len(out.Drift.ObservedNotDeclared), len(out.Drift.DeclaredNotObserved))
	for _, a := range out.Adapters {
		if a.Err != nil {
			fmt.Fprintf(w, "  adapter %s failed: %v\n", a.Name, a.Err)
		}
	}
	fmt.Fprintf(w, "Artifacts written: %d\n", len(out.Artifacts))
	return nil
}

func runAudit(cmd *cobra.Command, args []string) error {
	opts := baseOptions(cmd)
	opts.ChangedOnly = changedOnly
	if cmd.Flags().Changed("files") {
		opts.Files = auditFiles
		if opts.Files == nil {
			opts.Files = []string{}
		}
	}
	out, err := pipeline.Audit(cmd.Context(), opts)
	if err != nil {
		return reportError(cmd.OutOrStdout(), err)
	}
	printAudit(cmd.OutOrStdout(), out.Audit)
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	_, res, err := pipeline.Validate(cmd.Context(), baseOptions(cmd), graphPath)
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn.Message)
	}
	if err != nil {
		return reportError(w, err)
	}
	fmt.Fprintln(w, "Graph is valid.")
	return nil
}

func runCommit(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	out, err := pipeline.Commit(cmd.Context(), pipeline.CommitOptions{
		Options: baseOptions(cmd),
		DryRun:  commitDryRun,
	})
	if out != nil && len(out.Staged) == 0 && err == nil {
		fmt.Fprintln(w, "No staged files to commit.")
		return nil
	}
	if out != nil && commitDryRun {
		printPlan(w, out.Plan)
		return nil
	}
	if out != nil {
		for _, r := range out.Results {
			fmt.Fprintf(w, "%s  %s (%d files)\n", shortHash(r.Hash), r.Message, len(r.Files))
		}
	}
	if err != nil {
		var ce *commitgroup.CommitError
		if errors.As(err, &ce) {
			fmt.Fprintf(w, "\nStopped at group %s (%s). %d commit(s) above were kept.\n", ce.Bucket, ce.Step, len(ce.Committed))
		}
		return err
	}
	if out.Audit != nil {
		fmt.Fprintln(w)
		printAudit(w, *out.Audit)
	}
	return nil
}

func runSyncAICommands(cmd *cobra.Command, args []string) error {
	synced, err := pipeline.SyncAICommands(cmd.Context(), baseOptions(cmd))
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(synced) == 0 {
		fmt.Fprintln(w, "No platform config files found.")
		return nil
	}
	for _, s := range synced {
		fmt.Fprintf(w, "Synced commands to %s\n", s.Path)
	}
	return nil
}

// reportError prints validation issues one per line before returning err.
func reportError(w io.Writer, err error) error {
	var verr *validate.ValidationError
	if errors.As(err, &verr) {
		fmt.Fprintln(w, "Validation failed:")
		for _, line := range verr.Lines() {
			fmt.Fprintf(w, "- %s\n", line)
		}
		return fmt.Errorf("graph has %d validation issue(s)", len(verr.Issues))
	}
	return err
}

func printAudit(w io.Writer, r drift.Report) {
	fmt.Fprintf(w, "--- Project Graph Audit (%s) ---\n", r.Mode)
	if r.InSync() {
		fmt.Fprintln(w, "[OK] Graph is in sync with the audited files.")
		return
	}
	if len(r.ObservedNotDeclared) > 0 {
		fmt.Fprintln(w, "[WARNING] Files exist in project but are MISSING from the graph:")
		for _, f := range r.ObservedNotDeclared {
			fmt.Fprintf(w, "  - %s\n", f)
		}
	}
	if len(r.DeclaredNotObserved) > 0 {
		fmt.Fprintln(w, "[WARNING] Entities in graph but file does NOT EXIST in the audited scope:")
		for _, f := range r.DeclaredNotObserved {
			fmt.Fprintf(w, "  - %s\n", f)
		}
	}
	fmt.Fprintln(w, "Update project_graph/graph_parts/entities.jsonnet to resolve these discrepancies.")
}

func printPlan(w io.Writer, p commitgroup.Plan) {
	for _, b := range p.NonEmpty() {
		fmt.Fprintf(w, "%s  %q\n", b.ID, b.Message())
		for _, f := range b.Files {
			fmt.Fprintf(w, "    %s\n", f)
		}
	}
}

// shortHash safely truncates a commit hash to 12 characters.
func shortHash(s string) string {
	if len(s) >= 12 {
		return s[:12]
	}
	return s
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
