package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"video-digest/internal/app"
	"video-digest/internal/digest"
	"video-digest/internal/platform/config"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize [url]",
	Short: "Summarize a YouTube video",
	Long: `Summarize the video at the given URL (or bare video id).

The transcript is split into 3 to 10 chapters of about five minutes each and
the chapters are summarized in parallel.

Examples:
  digest summarize https://www.youtube.com/watch?v=dQw4w9WgXcQ
  digest summarize https://youtu.be/dQw4w9WgXcQ --provider openai --json
  digest summarize dQw4w9WgXcQ --progress --concurrency 5`,
	Args: cobra.ExactArgs(1),
	RunE: runSummarize,
}

func init() {
	rootCmd.AddCommand(summarizeCmd)

	summarizeCmd.Flags().
		StringP("provider", "p", "", "Text generation provider (gemini, openai, anthropic)")
	summarizeCmd.Flags().
		String("model", "", "Model name; defaults to the provider's default")
	summarizeCmd.Flags().
		StringP("api-key", "k", "", "Provider API key (or set LLM_API_KEY)")
	summarizeCmd.Flags().
		Int("concurrency", 0, "Number of chapters summarized in parallel")
	summarizeCmd.Flags().
		Bool("json", false, "Print the full result as JSON")
	summarizeCmd.Flags().
		Bool("progress", false, "Report each finished chapter on stderr")
	summarizeCmd.Flags().
		Bool("transcript", false, "Include the full transcript in text output")
}

func runSummarize(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	applyGenerationFlags(cmd, settings)

	a, err := app.New(ctx, settings, log)
	if err != nil {
		return err
	}
	defer a.Close()

	var opts []digest.Option
	if progress, _ := cmd.Flags().GetBool("progress"); progress {
		stderr := cmd.ErrOrStderr()
		opts = append(opts, digest.WithProgress(func(done, total int, res digest.ChunkResult) {
			status := "summarized"
			if res.IsFallback {
				status = "extract"
			}
			printf(stderr, "chapter %d done (%d/%d, %s, %d attempts)\n", res.Index+1, done, total, status, res.Attempts)
		}))
	}

	summary, err := a.Service.Summarize(ctx, args[0], opts...)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	withTranscript, _ := cmd.Flags().GetBool("transcript")
	writeSummary(cmd.OutOrStdout(), summary, withTranscript)
	return nil
}

// applyGenerationFlags overrides settings with flags the user set explicitly.
func applyGenerationFlags(cmd *cobra.Command, s *config.Settings) {
	flags := cmd.Flags()
	if flags.Changed("provider") {
		s.Generation.Provider, _ = flags.GetString("provider")
	}
	if flags.Changed("model") {
		s.Generation.Model, _ = flags.GetString("model")
	}
	if flags.Changed("api-key") {
		s.Generation.APIKey, _ = flags.GetString("api-key")
	}
	if flags.Changed("concurrency") {
		if n, _ := flags.GetInt("concurrency"); n > 0 {
			s.Pipeline.Concurrency = n
		}
	}
}

func writeSummary(w io.Writer, s *digest.Summary, withTranscript bool) {
	if s.Metadata != nil && s.Metadata.Title != "" {
		printf(w, "%s\n", s.Metadata.Title)
		if s.Metadata.Uploader != "" {
			printf(w, "by %s", s.Metadata.Uploader)
			if s.Metadata.PublishDate != "" {
				printf(w, ", %s", s.Metadata.PublishDate)
			}
			printf(w, "\n")
		}
		printf(w, "\n")
	}

	printf(w, "%s\n", s.Summary)

	if len(s.KeyPoints) > 0 {
		printf(w, "\nKey points:\n")
		for _, p := range s.KeyPoints {
			printf(w, "  - %s\n", p)
		}
	}
	if withTranscript {
		printf(w, "\nTranscript:\n%s\n", s.Transcript)
	}
	printf(w, "\n%s\n", s.Message)
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return fmt.Sprintf("%s...", strings.TrimSpace(string(r[:n])))
}
