package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rifflux/rifflux/internal/search"
)

func newSearchCmd(flags *globalFlags) *cobra.Command {
	var (
		topK       int
		mode       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed corpus",
		Long: `Search the indexed corpus with lexical (BM25), semantic (cosine over
embeddings), or fused hybrid (Reciprocal Rank Fusion) ranking.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			ctx, stop := interruptContext(cmd.Context())
			defer stop()

			eng, err := openEngine(ctx, flags)
			if err != nil {
				return err
			}
			defer closeEngine(eng)

			if err := eng.MaybeAutoReindex(ctx); err != nil {
				return fmt.Errorf("auto reindex: %w", err)
			}

			results, err := eng.Search.Search(ctx, query, search.Options{
				TopK: topK,
				Mode: search.Mode(mode),
			})
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if jsonOutput {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(results)
			}
			return printSearchResults(cmd, query, results)
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "n", search.DefaultTopK, "maximum number of results")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(search.ModeHybrid), "search mode: lexical, semantic, or hybrid")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output results as JSON")

	return cmd
}

func printSearchResults(cmd *cobra.Command, query string, results []search.Result) error {
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintf(out, "no results for %q\n", query)
		return nil
	}

	fmt.Fprintf(out, "%d result(s) for %q:\n\n", len(results), query)
	for i, r := range results {
		location := r.Path
		if r.HeadingPath != "" {
			location = fmt.Sprintf("%s § %s", r.Path, r.HeadingPath)
		}
		fmt.Fprintf(out, "%d. %s\n", i+1, location)
		fmt.Fprintf(out, "   %s\n", scoreLine(r))
		fmt.Fprintf(out, "   %s\n\n", firstLine(r.Content))
	}
	return nil
}

func scoreLine(r search.Result) string {
	var parts []string
	if r.ScoreBreakdown.BM25 != nil {
		parts = append(parts, fmt.Sprintf("bm25=%.3f", *r.ScoreBreakdown.BM25))
	}
	if r.ScoreBreakdown.Cosine != nil {
		parts = append(parts, fmt.Sprintf("cosine=%.3f", *r.ScoreBreakdown.Cosine))
	}
	if r.ScoreBreakdown.RRF != nil {
		parts = append(parts, fmt.Sprintf("rrf=%.5f", *r.ScoreBreakdown.RRF))
	}
	if len(parts) == 0 {
		return "score=n/a"
	}
	return strings.Join(parts, " ")
}

func firstLine(content string) string {
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		content = content[:i]
	}
	const maxLen = 120
	if len(content) > maxLen {
		return content[:maxLen] + "..."
	}
	return content
}
