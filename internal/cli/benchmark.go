package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"video-digest/internal/app"
	"video-digest/internal/platform/config"
	"video-digest/internal/textgen"
)

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark [text_file...]",
	Short: "Compare summarization models on sample texts",
	Long: `Summarize each text file with each model and report the time taken and
the summary length.

Models are given as provider or provider:model. Without --model every provider
with an API key in the environment is used with its default model.

Examples:
  digest benchmark short.txt medium.txt long.txt
  digest benchmark talk.txt -m gemini -m openai:gpt-5-mini -m anthropic`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBenchmark,
}

func init() {
	rootCmd.AddCommand(benchmarkCmd)

	benchmarkCmd.Flags().
		StringSliceP("model", "m", nil, "Model to compare, as provider or provider:model (repeatable)")
	benchmarkCmd.Flags().
		Duration("timeout", time.Minute, "Time limit for one summary")
}

type benchTarget struct {
	Name string
	Gen  textgen.Generator
}

type benchCase struct {
	Name string
	Text string
}

type benchResult struct {
	Model    string
	Case     string
	Duration time.Duration
	Chars    int
	Words    int
	Err      error
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cases := make([]benchCase, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read test text: %w", err)
		}
		cases = append(cases, benchCase{Name: filepath.Base(path), Text: string(data)})
	}

	specs, _ := cmd.Flags().GetStringSlice("model")
	if len(specs) == 0 {
		specs = availableProviders(settings.Generation)
	}
	if len(specs) == 0 {
		return fmt.Errorf("no provider API keys found: set GEMINI_API_KEY, OPENAI_API_KEY or ANTHROPIC_API_KEY")
	}

	targets := make([]benchTarget, 0, len(specs))
	for _, spec := range specs {
		g := benchSettings(settings.Generation, spec)
		gen, err := app.NewGenerator(ctx, g)
		if err != nil {
			return fmt.Errorf("model %s: %w", spec, err)
		}
		targets = append(targets, benchTarget{Name: spec, Gen: gen})
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	results := benchmark(ctx, targets, cases, timeout)
	writeBenchmark(cmd.OutOrStdout(), results)
	return nil
}

// benchSettings derives generation settings for a provider[:model] spec. The
// configured API key only applies to the configured provider.
func benchSettings(base config.GenerationSettings, spec string) config.GenerationSettings {
	provider, model, _ := strings.Cut(spec, ":")
	g := base
	if provider != base.Provider {
		g.APIKey = ""
		g.Model = ""
	}
	g.Provider = provider
	if model != "" {
		g.Model = model
	}
	return g
}

func availableProviders(g config.GenerationSettings) []string {
	var out []string
	for _, p := range []textgen.Provider{textgen.ProviderGemini, textgen.ProviderOpenAI, textgen.ProviderAnthropic} {
		if os.Getenv(app.APIKeyEnv(p)) != "" || (string(p) == g.Provider && g.APIKey != "") {
			out = append(out, string(p))
		}
	}
	return out
}

// benchmark runs every case against every target in turn. Failures are
// recorded and do not stop the run.
func benchmark(ctx context.Context, targets []benchTarget, cases []benchCase, timeout time.Duration) []benchResult {
	results := make([]benchResult, 0, len(targets)*len(cases))
	for _, t := range targets {
		for _, c := range cases {
			res := benchResult{Model: t.Name, Case: c.Name}

			cctx, cancel := context.WithTimeout(ctx, timeout)
			start := time.Now()
			out, err := t.Gen.Generate(cctx, textgen.Request{Text: c.Text, Index: 0, Total: 1})
			res.Duration = time.Since(start)
			cancel()

			if err != nil {
				res.Err = err
			} else {
				res.Chars = utf8.RuneCountInString(out)
				res.Words = wordCount(out)
			}
			results = append(results, res)
		}
	}
	return results
}

func writeBenchmark(w io.Writer, results []benchResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	printf(tw, "MODEL\tTEXT\tTIME\tCHARS\tWORDS\n")
	for _, r := range results {
		if r.Err != nil {
			printf(tw, "%s\t%s\t%s\terror: %v\t\n", r.Model, r.Case, r.Duration.Round(time.Millisecond), r.Err)
			continue
		}
		printf(tw, "%s\t%s\t%s\t%d\t%d\n", r.Model, r.Case, r.Duration.Round(time.Millisecond), r.Chars, r.Words)
	}
	_ = tw.Flush()
}
