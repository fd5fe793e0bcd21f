package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/histtext/lexivec/loader"
)

func NewInspectCmd() *cobra.Command {
	var (
		formatHint string
		normalize  bool
		maxWords   int
	)

	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Load an embeddings file and print its statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelWarn,
			}))

			ldr := loader.New(loader.Config{
				MaxWords:         maxWords,
				NormalizeOnLoad:  normalize,
				SkipInvalidWords: true,
			}, func(o *loader.Options) {
				o.Logger = logger
			})

			format := loader.FormatAuto
			if formatHint != "" {
				f, err := loader.ParseFormat(formatHint)
				if err != nil {
					return err
				}
				format = f
			}

			_, stats, err := ldr.LoadWithFormat(cmd.Context(), args[0], format)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "file:          %s\n", args[0])
			fmt.Fprintf(out, "format:        %s\n", stats.Format)
			fmt.Fprintf(out, "compression:   %s\n", stats.Compression)
			fmt.Fprintf(out, "words:         %d\n", stats.WordCount)
			fmt.Fprintf(out, "dimension:     %d\n", stats.Dimension)
			fmt.Fprintf(out, "file size:     %d bytes\n", stats.FileSize)
			fmt.Fprintf(out, "table memory:  %d bytes\n", stats.MemoryUsage)
			fmt.Fprintf(out, "load time:     %s\n", stats.LoadTime)
			fmt.Fprintf(out, "normalized:    %t\n", stats.Normalized)
			fmt.Fprintf(out, "skipped:       %d records\n", stats.SkippedCount())
			return nil
		},
	}

	cmd.Flags().StringVar(&formatHint, "format", "", "Format hint (text, glove, binary, word2vec, fasttext)")
	cmd.Flags().BoolVar(&normalize, "normalize", false, "L2-normalize vectors while loading")
	cmd.Flags().IntVar(&maxWords, "max-words", 0, "Load at most this many words (0 = all)")
	return cmd
}
