package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/sverka/internal/config"
	"github.com/kalambet/sverka/internal/corpus"
	"github.com/kalambet/sverka/internal/pipeline"
	"github.com/kalambet/sverka/internal/storage"
	"github.com/kalambet/sverka/internal/verify"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// --- checklist ---

var checklistCmd = &cobra.Command{
	Use:   "checklist",
	Short: "Verify checklist criteria against project documents",
	Long: `Verify every criterion of a checklist against the documents of a project.

Examples:
  sverka checklist --project Alpha --docs ./Alpha/documents --checklist ./Alpha/checklist_alpha.csv
  sverka checklist --project-root ./projects`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("project")
		docs, _ := cmd.Flags().GetString("docs")
		checklistPath, _ := cmd.Flags().GetString("checklist")
		out, _ := cmd.Flags().GetString("out")
		root, _ := cmd.Flags().GetString("project-root")

		if root == "" && (name == "" || docs == "" || checklistPath == "") {
			return errors.New("either --project-root or all of --project, --docs and --checklist are required")
		}

		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if root != "" {
			return runProjectRoot(ctx, a.checklist, root)
		}

		criteria, err := corpus.ReadChecklistFile(checklistPath)
		if err != nil {
			return err
		}
		report, err := a.checklist.Run(ctx, pipeline.Project{Name: name, DocsDir: docs, Criteria: criteria})
		if err != nil {
			return err
		}
		if err := writeJSON(out, report); err != nil {
			return err
		}
		printCounts(report)
		return nil
	},
}

func init() {
	checklistCmd.Flags().String("project", "", "project name")
	checklistCmd.Flags().String("docs", "", "folder with the project documents")
	checklistCmd.Flags().String("checklist", "", "CSV file with a criterion column")
	checklistCmd.Flags().String("out", "-", "report file, - for stdout")
	checklistCmd.Flags().String("project-root", "", "folder of projects laid out as <name>/documents and <name>/checklist_<name>.csv")
}

// discoverProjects lists the project folders under root. A project is any
// non-hidden sub-folder; its documents live in <name>/documents and its
// checklist in <name>/checklist_<lowercase name>.csv. A missing or
// unreadable checklist leaves the project without criteria.
func discoverProjects(root string) ([]pipeline.Project, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading project root: %w", err)
	}
	var projects []pipeline.Project
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := e.Name()
		dir := filepath.Join(root, name)
		p := pipeline.Project{Name: name, DocsDir: filepath.Join(dir, "documents")}
		criteria, err := corpus.ReadChecklistFile(checklistFile(dir, name))
		if err != nil {
			printWarning("project %s: %v", name, err)
		}
		p.Criteria = criteria
		projects = append(projects, p)
	}
	return projects, nil
}

func checklistFile(dir, project string) string {
	return filepath.Join(dir, "checklist_"+strings.ToLower(project)+".csv")
}

func reportFile(dir, project string) string {
	return filepath.Join(dir, "verification_report_"+project+".json")
}

type checklistRunner interface {
	RunAll(ctx context.Context, projects []pipeline.Project) []pipeline.Outcome
}

// runProjectRoot verifies every project under root and writes each report
// next to the project's documents. Skipped projects do not fail the run.
func runProjectRoot(ctx context.Context, c checklistRunner, root string) error {
	projects, err := discoverProjects(root)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		return fmt.Errorf("no projects found under %s", root)
	}

	var failed int
	for _, o := range c.RunAll(ctx, projects) {
		switch {
		case o.Skipped():
			printWarning("%s: skipped (%v)", o.Project, o.Err)
		case o.Err != nil:
			printError("%s: %v", o.Project, o.Err)
			failed++
		default:
			path := reportFile(filepath.Join(root, o.Project), o.Project)
			if err := writeJSON(path, o.Report); err != nil {
				printError("%s: %v", o.Project, err)
				failed++
				continue
			}
			printSuccess("%s: report written to %s", o.Project, path)
			printCounts(o.Report)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d project(s) failed", failed)
	}
	return nil
}

func printCounts(r *pipeline.VerificationReport) {
	counts := r.Counts()
	for _, s := range verify.Statuses {
		if n := counts[s]; n > 0 {
			printStatus(string(s), "%d", n)
		}
	}
}

// --- remarks ---

var remarksCmd = &cobra.Command{
	Use:   "remarks",
	Short: "Cluster, synthesize and classify a batch of remarks",
	Long: `Cluster near-duplicate remarks, synthesize one remark per cluster and
classify every group against the taxonomy.

The input is a JSON object:
  {"remarks": {"<category>": ["text", ...]}, "categories": ["name", ...]}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		out, _ := cmd.Flags().GetString("out")

		b, err := readBatch(input)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.remarks.Run(ctx, b)
		if err != nil {
			return err
		}
		if err := writeJSON(out, report); err != nil {
			return err
		}
		printSuccess("%d categories, %d synthesized keys", len(report.Classification), len(report.Synthesis))
		return nil
	},
}

func init() {
	remarksCmd.Flags().String("input", "-", "remark batch JSON file, - for stdin")
	remarksCmd.Flags().String("out", "-", "report file, - for stdout")
}

func readBatch(path string) (pipeline.Batch, error) {
	var r io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return pipeline.Batch{}, fmt.Errorf("opening remark batch: %w", err)
		}
		defer f.Close()
		r = f
	}
	var b pipeline.Batch
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return pipeline.Batch{}, fmt.Errorf("parsing remark batch: %w", err)
	}
	if len(b.Remarks) == 0 {
		return pipeline.Batch{}, errors.New("remark batch has no remarks")
	}
	return b, nil
}

// --- index ---

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage stored project indexes",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Rebuild and store the index of a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("project")
		docs, _ := cmd.Flags().GetString("docs")
		if name == "" || docs == "" {
			return errors.New("--project and --docs are required")
		}

		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		start := time.Now()
		ix, err := a.indexer.Rebuild(ctx, name, docs)
		if err != nil {
			return err
		}
		printSuccess("Indexed %s: %d chunks in %s", name, ix.Len(), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

var indexListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored project indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, s *storage.Store) error {
			infos, err := s.ListIndexes(ctx)
			if err != nil {
				return err
			}
			printIndexes(os.Stdout, infos)
			return nil
		})
	},
}

var indexRemoveCmd = &cobra.Command{
	Use:   "rm <project>",
	Short: "Delete the stored index of a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, s *storage.Store) error {
			if err := s.DeleteIndex(ctx, args[0]); err != nil {
				return err
			}
			printSuccess("Deleted index %s", args[0])
			return nil
		})
	},
}

func init() {
	indexBuildCmd.Flags().String("project", "", "project name")
	indexBuildCmd.Flags().String("docs", "", "folder with the project documents")
	indexCmd.AddCommand(indexBuildCmd, indexListCmd, indexRemoveCmd)
}

func withStore(fn func(ctx context.Context, s *storage.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer s.Close()
	ctx, stop := signalContext()
	defer stop()
	return fn(ctx, s)
}

func printIndexes(w io.Writer, infos []storage.IndexInfo) {
	if len(infos) == 0 {
		fmt.Fprintln(w, "no stored indexes")
		return
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Project < infos[j].Project })
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tCHUNKS\tDIM\tBUILT\tDOCS")
	for _, in := range infos {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", in.Project, in.ChunkCount, in.Dimension, in.BuiltAt.Format(time.RFC3339), in.DocsDir)
	}
	tw.Flush()
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "("+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
}

// writeJSON writes v indented to path, or to stdout when path is "-" or
// empty.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	data = append(data, '\n')
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
