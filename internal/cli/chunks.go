package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"video-digest/internal/app"
	"video-digest/internal/digest"
	"video-digest/internal/textgen"
)

var chunksCmd = &cobra.Command{
	Use:   "chunks [url]",
	Short: "Show how a video's transcript would be split into chapters",
	Long: `Fetch the captions of a video and print the chapter boundaries the
summarizer would use, without calling a language model.

Examples:
  digest chunks https://www.youtube.com/watch?v=dQw4w9WgXcQ
  digest chunks dQw4w9WgXcQ --preview 120`,
	Args: cobra.ExactArgs(1),
	RunE: runChunks,
}

func init() {
	rootCmd.AddCommand(chunksCmd)

	chunksCmd.Flags().
		Int("preview", 80, "Characters of chapter text to show (0 hides text)")
}

func runChunks(cmd *cobra.Command, args []string) error {
	noop := textgen.GeneratorFunc(func(context.Context, textgen.Request) (string, error) {
		return "", textgen.ErrEmptyResponse
	})

	a, err := app.New(cmd.Context(), settings, log, app.WithGenerator(noop))
	if err != nil {
		return err
	}
	defer a.Close()

	id, chunks, err := a.Service.Preview(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	preview, _ := cmd.Flags().GetInt("preview")
	writeChunks(cmd.OutOrStdout(), id, chunks, preview)
	return nil
}

func writeChunks(w io.Writer, id string, chunks []digest.Chunk, preview int) {
	long := len(chunks) > 0 && chunks[len(chunks)-1].EndMs >= 3_600_000

	printf(w, "%s: %d chapters\n", id, len(chunks))
	for _, c := range chunks {
		text := c.Text()
		printf(w, "%2d  %s - %s  %4d fragments  %5d words\n",
			c.Index+1,
			digest.FormatTimestamp(c.StartMs, long),
			digest.FormatTimestamp(c.EndMs, long),
			len(c.Fragments),
			wordCount(text),
		)
		if preview > 0 {
			printf(w, "    %s\n", truncate(text, preview))
		}
	}
}
