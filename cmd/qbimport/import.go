package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/app"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/config"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/importer"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/logging"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/taxonomy"
)

func newImportCmd(v *viper.Viper) *cobra.Command {
	var (
		yes    bool
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a .docx, .txt, .md or .xlsx file",
		Long: `Parse a question document, validate it, reconcile its subjects and
knowledge points with the catalog and import every valid question.

Word-export documents use the layout

  1.题目【单选题】【简单】【学科】【知识点】【标签】
  A. 选项
  答案：（A）
  答案解析：{解析}

Spreadsheets use the columns: title, type, difficulty, subject, knowledge
point, answer, explanation, options (| separated), tags (, separated).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromViper(v)
			var c importer.Confirmer = importer.AutoConfirm{}
			if !yes {
				c = formConfirmer{out: cmd.ErrOrStderr()}
			}
			return runImport(cmd.Context(), cfg, args[0], c, dryRun, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "answer yes to every confirmation")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse, validate and reconcile only; write nothing")
	cmd.Flags().String("sheet", "", "worksheet to read from .xlsx files (default first sheet)")
	_ = v.BindPFlag("import_sheet", cmd.Flags().Lookup("sheet"))
	return cmd
}

func runImport(ctx context.Context, cfg config.Config, path string, c importer.Confirmer, dryRun bool, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	p, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer p.Close()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	name := filepath.Base(path)
	var s *importer.Session
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		s, err = p.Importer.ParseWorkbook(name, f, cfg.ImportSheet)
	default:
		s, err = p.Importer.ParseDocument(name, f)
	}
	if err != nil {
		return err
	}

	if dryRun {
		return dryRunReport(ctx, p.Importer, s, out)
	}

	_, err = p.Importer.Import(ctx, s, c, func(pct int) {
		fmt.Fprintf(out, "\rimporting... %3d%%", pct)
	})
	if s.State() == importer.StateCompleted {
		fmt.Fprintln(out)
	}
	printSummary(out, s.Status())
	if errors.Is(err, importer.ErrCancelled) {
		fmt.Fprintln(out, "import cancelled")
		return nil
	}
	return err
}

func dryRunReport(ctx context.Context, im *importer.Importer, s *importer.Session, out io.Writer) error {
	if s.State() == importer.StateAwaitingInvalidConfirmation {
		if err := im.ConfirmInvalid(s, true); err != nil {
			return err
		}
	}
	if err := im.Reconcile(ctx, s); err != nil {
		return err
	}
	st := s.Status()
	printSummary(out, st)
	printMissing(out, st.MissingSubjects, st.MissingKnowledgePoints)
	fmt.Fprintln(out, "dry run: nothing was written")
	return nil
}

func printSummary(out io.Writer, st importer.Status) {
	fmt.Fprintf(out, "parsed: %d  valid: %d  invalid: %d  duplicates: %d\n",
		st.ParsedCount, st.ValidCount, len(st.Invalid), len(st.Duplicates))
	for _, msg := range st.Invalid {
		fmt.Fprintln(out, "  invalid:", msg)
	}
	for _, t := range st.Duplicates {
		fmt.Fprintln(out, "  already in bank:", t)
	}
	if len(st.CreatedSubjects)+len(st.CreatedKnowledgePoints) > 0 {
		fmt.Fprintf(out, "created subjects: %s\n", strings.Join(st.CreatedSubjects, ", "))
		fmt.Fprintf(out, "created knowledge points: %s\n", strings.Join(st.CreatedKnowledgePoints, ", "))
	}
	for _, msg := range st.ProvisionFailures {
		fmt.Fprintln(out, "  taxonomy:", msg)
	}
	if st.Result != nil {
		fmt.Fprintf(out, "succeeded: %d  failed: %d\n", st.Result.SuccessCount, st.Result.FailedCount)
		for _, msg := range st.Result.Errors {
			fmt.Fprintln(out, "  error:", msg)
		}
	}
	if st.Error != "" {
		fmt.Fprintln(out, "error:", st.Error)
	}
}

func printMissing(out io.Writer, subjects []string, points map[string][]string) {
	if len(subjects) == 0 && len(points) == 0 {
		fmt.Fprintln(out, "taxonomy: everything exists")
		return
	}
	if len(subjects) > 0 {
		fmt.Fprintf(out, "missing subjects: %s\n", strings.Join(subjects, ", "))
	}
	keys := make([]string, 0, len(points))
	for k := range points {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "missing knowledge points in %s: %s\n", k, strings.Join(points[k], ", "))
	}
}

// missingSummary renders the taxonomy prompt body.
func missingSummary(snap *taxonomy.Snapshot) string {
	var b strings.Builder
	printMissing(&b, snap.MissingSubjects, snap.MissingKnowledgePoints)
	return strings.TrimRight(b.String(), "\n")
}
