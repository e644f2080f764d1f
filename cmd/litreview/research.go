// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/litreview-engine/internal/pipeline"
	"github.com/pdiddy/litreview-engine/internal/planner"
	"github.com/pdiddy/litreview-engine/pkg/types"
)

var (
	phaseStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

var researchCmd = &cobra.Command{
	Use:   "research <topic>",
	Short: "Run a literature review for a research topic",
	Long: `Research plans a PubMed query for the topic, fetches candidate articles,
ranks them with the configured AI model and streams a narrative synthesis.
Progress is printed as each phase starts. The finished report is saved to
the knowledge store as a new entry.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

func runResearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	req, err := researchRequest(cmd, args)
	if err != nil {
		return err
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")
	noSave, _ := cmd.Flags().GetBool("no-save")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		srv := serveMetrics(a, addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	out := os.Stdout
	report, err := pipeline.Collect(orch.Run(ctx, req), func(ev pipeline.Event) {
		if jsonOutput {
			return
		}
		printEvent(ev)
	})
	if err != nil {
		if !jsonOutput {
			fmt.Fprintln(os.Stderr, failStyle.Render("Failed: ")+err.Error())
		}
		return err
	}

	if !noSave {
		saved, err := a.store.AddEntry(ctx, types.NewResearchEntry(report))
		if err != nil {
			return fmt.Errorf("saving report: %w", err)
		}
		if !jsonOutput {
			fmt.Fprintln(os.Stderr, dimStyle.Render("Saved entry "+saved.ID))
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(report)
	return nil
}

// researchRequest builds the pipeline request from args and flags.
func researchRequest(cmd *cobra.Command, args []string) (pipeline.Request, error) {
	topic := strings.TrimSpace(strings.Join(args, " "))
	if topic == "" {
		return pipeline.Request{}, errors.New("topic must not be empty")
	}

	var f planner.Filters
	for _, d := range []struct {
		flag string
		dst  *time.Time
	}{
		{"from", &f.DateFrom},
		{"to", &f.DateTo},
	} {
		v, _ := cmd.Flags().GetString(d.flag)
		if v == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return pipeline.Request{}, fmt.Errorf("--%s: expected YYYY-MM-DD: %w", d.flag, err)
		}
		*d.dst = t
	}
	if !f.DateFrom.IsZero() && !f.DateTo.IsZero() && f.DateTo.Before(f.DateFrom) {
		return pipeline.Request{}, errors.New("--to is before --from")
	}
	f.ArticleTypes, _ = cmd.Flags().GetStringSlice("type")
	f.OpenAccessOnly, _ = cmd.Flags().GetBool("open-access")

	maxCandidates, _ := cmd.Flags().GetInt("max-candidates")
	topN, _ := cmd.Flags().GetInt("top")
	focus, _ := cmd.Flags().GetString("focus")

	return pipeline.Request{
		Topic:         topic,
		Filters:       f,
		MaxCandidates: maxCandidates,
		TopN:          topN,
		Focus:         focus,
	}, nil
}

func serveMetrics(a *app, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	a.log.Info("serving metrics", zap.String("addr", addr))
	return srv
}

// printEvent writes phase headers to stderr and synthesis text to stdout
// as it arrives.
func printEvent(ev pipeline.Event) {
	switch {
	case ev.Chunk != "":
		fmt.Fprint(os.Stdout, ev.Chunk)
	case ev.Phase == pipeline.PhaseFailed:
	case ev.Phase == pipeline.PhaseDone:
		fmt.Fprintln(os.Stdout)
		fmt.Fprintln(os.Stderr, doneStyle.Render(ev.Phase.Label()))
	case ev.Phase == pipeline.PhaseRanking && ev.Report != nil:
		fmt.Fprintln(os.Stderr, dimStyle.Render(fmt.Sprintf("  %d articles ranked", len(ev.Report.Articles))))
	default:
		fmt.Fprintln(os.Stderr, phaseStyle.Render(ev.Phase.Label()))
	}
}

func printReport(r *types.Report) {
	if len(r.Queries) > 0 {
		fmt.Fprintln(os.Stdout)
		fmt.Fprintln(os.Stdout, phaseStyle.Render("Query"))
		fmt.Fprintln(os.Stdout, r.Queries[0].Query)
	}

	fmt.Fprintln(os.Stdout)
	fmt.Fprintln(os.Stdout, phaseStyle.Render("Articles"))
	printArticleTable(r.Articles)

	if len(r.Insights) > 0 {
		fmt.Fprintln(os.Stdout)
		fmt.Fprintln(os.Stdout, phaseStyle.Render("Insights"))
		for _, in := range r.Insights {
			fmt.Fprintf(os.Stdout, "Q: %s\nA: %s %s\n\n", in.Question, in.Answer,
				dimStyle.Render("["+strings.Join(in.SupportingIdentifiers, ", ")+"]"))
		}
	}

	if len(r.KeywordFrequencies) > 0 {
		fmt.Fprintln(os.Stdout, phaseStyle.Render("Keywords"))
		for _, kf := range r.KeywordFrequencies {
			fmt.Fprintf(os.Stdout, "  %-30s %d\n", kf.Keyword, kf.Count)
		}
	}
}

func printArticleTable(articles []types.ArticleRecord) {
	fmt.Fprintf(os.Stdout, "%-10s  %5s  %4s  %s\n", "PMID", "Score", "Year", "Title")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 90))
	for _, a := range articles {
		fmt.Fprintf(os.Stdout, "%-10s  %5.0f  %4d  %s\n", a.Identifier, a.RelevanceScore, a.Year, truncate(a.Title, 64))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func addResearchFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", "publication date range start (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "publication date range end (YYYY-MM-DD)")
	cmd.Flags().StringSlice("type", nil, "restrict to publication types (e.g. Review, \"Clinical Trial\")")
	cmd.Flags().Bool("open-access", false, "only articles with free full text")
	cmd.Flags().Int("max-candidates", 0, "identifiers requested from PubMed (0 = pipeline.max_candidates)")
	cmd.Flags().Int("top", 0, "ranked articles kept (0 = pipeline.top_n)")
	cmd.Flags().String("focus", "", "emphasis for the synthesis")
	cmd.Flags().Bool("json", false, "print the final report as JSON")
	cmd.Flags().Bool("no-save", false, "do not save the report to the knowledge store")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address during the run")
}

func init() {
	addResearchFlags(researchCmd)
	rootCmd.AddCommand(researchCmd)
}
