package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rifflux/rifflux/internal/index"
)

func newIndexCmd(flags *globalFlags) *cobra.Command {
	var (
		force        bool
		noPrune      bool
		includeGlobs []string
		excludeGlobs []string
	)

	cmd := &cobra.Command{
		Use:   "index [path...]",
		Short: "Scan and index one or more directories",
		Long: `Scan the given directories (or the current directory, if none are
given), chunk every matching markdown file, embed its chunks, and persist
the result to the index database.

Unchanged files are skipped via mtime/size/hash change detection unless
--force is given, which rebuilds every file's chunks and embeddings
regardless of change detection.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if len(paths) == 0 {
				paths = []string{"."}
			}

			ctx, stop := interruptContext(cmd.Context())
			defer stop()

			eng, err := openEngine(ctx, flags)
			if err != nil {
				return err
			}
			defer closeEngine(eng)

			result, err := eng.Reindex(ctx, paths, index.Options{
				Force:        force,
				PruneMissing: !noPrune,
				IncludeGlobs: includeGlobs,
				ExcludeGlobs: excludeGlobs,
			})
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "indexed %d file(s), skipped %d, deleted %d\n", result.IndexedFiles, result.SkippedFiles, result.DeletedFiles)
			if result.GitFingerprint != "" {
				fmt.Fprintf(out, "git_fingerprint: %s\n", result.GitFingerprint)
			}
			fmt.Fprintf(out, "embedding_model: %s\n", eng.Embedder.ModelName())
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "rebuild every file's chunks and embeddings regardless of change detection")
	cmd.Flags().BoolVar(&noPrune, "no-prune", false, "do not delete stored files no longer observed on disk")
	cmd.Flags().StringSliceVar(&includeGlobs, "include", nil, "override the configured include globs")
	cmd.Flags().StringSliceVar(&excludeGlobs, "exclude", nil, "override the configured exclude globs")

	return cmd
}
