package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"zarz/internal/changes"
	"zarz/internal/client"
	"zarz/internal/config"
	"zarz/internal/logging"
	"zarz/internal/security"
	"zarz/internal/ui"
)

const rewriteSystemPrompt = `You are Zarz, an automated refactoring agent.
Follow the user's instructions carefully.
Reply ONLY with updated file contents using code fences in this exact form:
` + "```file:relative/path.go" + `
<entire file content>
` + "```" + `
Do not include commentary before or after the fences. Always return complete file contents.
`

// defaultRewriteTemperature keeps rewrites close to deterministic.
const defaultRewriteTemperature = 0.1

var errRewriteAborted = errors.New("aborted; no files were modified")

// rewriteOptions describes one rewrite run.
type rewriteOptions struct {
	Files        []string // relative to the policy's working directory
	Instructions string
	Model        string
	MaxTokens    int
	Temperature  float64
	DryRun       bool

	// Confirm is asked before writing; nil applies without asking.
	Confirm func() bool
}

func newRewriteCmd() *cobra.Command {
	var (
		instructions     string
		instructionsFile string
		yes              bool
		dryRun           bool
		temperature      float64
	)

	cmd := &cobra.Command{
		Use:   "rewrite <file>...",
		Short: "Rewrite files in one shot according to instructions",
		Long: `Sends the files and the instructions to the model, shows the diff of every
file it returns and writes them together once confirmed. Instructions come
from --instructions, --instructions-file or standard input.`,
		Example: `  zarz rewrite -i "use errors.Join" internal/app/guard.go
  git diff | zarz rewrite --dry-run cmd/zarz/main.go`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := logging.EnableFileLogging(config.Dir(), logging.ParseLevel(cfg.Logging.Level)); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: file logging disabled: %v\n", err)
			}
			defer logging.Close()

			stdinTTY := term.IsTerminal(int(os.Stdin.Fd()))
			text, err := readInstructions(instructions, instructionsFile, os.Stdin, !stdinTTY)
			if err != nil {
				return err
			}

			workDir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
			files, err := relativeTargets(workDir, args)
			if err != nil {
				return err
			}

			llm, err := client.NewProvider(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to create %s provider: %w", cfg.Provider, err)
			}

			opts := rewriteOptions{
				Files:        files,
				Instructions: text,
				Model:        cfg.ResolvedModel(),
				MaxTokens:    cfg.MaxOutputTokens,
				Temperature:  temperature,
				DryRun:       dryRun,
			}
			if !yes && stdinTTY {
				opts.Confirm = func() bool { return confirm(os.Stdin, cmd.OutOrStdout(), "Apply these changes?") }
			}

			printer := newPrinter(term.IsTerminal(int(os.Stdout.Fd())))
			policy := security.NewPathPolicy(workDir, cfg.Tools.DeniedPaths)
			err = runRewrite(cmd.Context(), llm, policy, printer, opts)
			if errors.Is(err, errRewriteAborted) {
				printer.Info("Aborted; no files were modified.")
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&instructions, "instructions", "i", "", "what to change")
	cmd.Flags().StringVar(&instructionsFile, "instructions-file", "", "read the instructions from a file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "apply without asking")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the diff and write nothing")
	cmd.Flags().Float64Var(&temperature, "temperature", defaultRewriteTemperature, "sampling temperature for the rewrite")
	cmd.Flags().StringVar(&provider, "provider", "", "model provider: anthropic, openai, glm, gemini or ollama")
	cmd.Flags().StringVar(&model, "model", "", "model to use (default depends on the provider)")
	cmd.MarkFlagsMutuallyExclusive("instructions", "instructions-file")

	return cmd
}

// readInstructions takes inline text first, then a file, then piped stdin.
func readInstructions(inline, file string, stdin io.Reader, piped bool) (string, error) {
	if strings.TrimSpace(inline) != "" {
		return inline, nil
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read instructions: %w", err)
		}
		return string(data), nil
	}
	if piped {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read instructions from stdin: %w", err)
		}
		if strings.TrimSpace(string(data)) != "" {
			return string(data), nil
		}
	}
	return "", errors.New("rewrite instructions are required via --instructions, --instructions-file or stdin")
}

// relativeTargets turns command-line paths into slash-separated paths
// relative to workDir. Targets outside workDir are rejected.
func relativeTargets(workDir string, args []string) ([]string, error) {
	files := make([]string, 0, len(args))
	for _, arg := range args {
		rel := arg
		if filepath.IsAbs(arg) {
			r, err := filepath.Rel(workDir, arg)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", arg, err)
			}
			rel = r
		}
		rel = filepath.ToSlash(filepath.Clean(rel))
		if err := security.CheckRelative(rel); err != nil {
			return nil, err
		}
		files = append(files, rel)
	}
	return files, nil
}

func buildRewritePrompt(instructions string, files []changes.Change) string {
	var b strings.Builder
	b.WriteString("You will update the user's codebase according to the instructions.\n")
	b.WriteString("Return only the updated file contents as requested.\n\n")
	b.WriteString("## Instructions\n")
	b.WriteString(strings.TrimSpace(instructions))
	b.WriteString("\n\n## Files\n")
	for _, f := range files {
		fmt.Fprintf(&b, "<file path=\"%s\">\n%s\n</file>\n\n", f.Path, f.Original)
	}
	return b.String()
}

// runRewrite asks the model for new versions of opts.Files, prints the
// diff of each and writes them in one transaction.
func runRewrite(ctx context.Context, llm client.CompletionProvider, policy *security.PathPolicy, printer *ui.Printer, opts rewriteOptions) error {
	requested := make([]changes.Block, len(opts.Files))
	for i, f := range opts.Files {
		requested[i] = changes.Block{Path: f}
	}
	current, err := changes.Plan(policy, requested)
	if err != nil {
		return err
	}
	for _, c := range current {
		if !c.Exists {
			return fmt.Errorf("failed to read target file %s: file does not exist", c.Path)
		}
	}

	resp, err := llm.Complete(ctx, &client.CompletionRequest{
		Model:           opts.Model,
		SystemPrompt:    rewriteSystemPrompt,
		UserPrompt:      buildRewritePrompt(opts.Instructions, current),
		MaxOutputTokens: opts.MaxTokens,
		Temperature:     opts.Temperature,
	})
	if err != nil {
		return fmt.Errorf("%s completion failed: %w", llm.Name(), err)
	}

	proposed := make(map[string]string)
	for _, b := range changes.ParseBlocks(resp.Text) {
		proposed[b.Path] = b.Content
	}
	if len(proposed) == 0 {
		return errors.New("model response did not include any ```file:...``` blocks to apply")
	}

	plan := make([]changes.Change, 0, len(current))
	for _, c := range current {
		updated, ok := proposed[c.Path]
		if !ok {
			return fmt.Errorf("model response did not provide updated contents for %s", c.Path)
		}
		delete(proposed, c.Path)
		c.Updated = updated
		plan = append(plan, c)
	}
	for path := range proposed {
		logging.Warn("ignoring rewrite of a file that was not requested", "path", path)
	}

	changed := 0
	for _, c := range plan {
		if c.Unchanged() {
			continue
		}
		changed++
		printer.FileChange(c)
		printer.Diff(c.Diff())
		printer.Printf("\n")
	}
	switch {
	case changed == 0:
		printer.Info("No changes detected; files already match the model output.")
		return nil
	case opts.DryRun:
		printer.Info("Dry-run complete. No files were modified.")
		return nil
	case opts.Confirm != nil && !opts.Confirm():
		return errRewriteAborted
	}

	written, err := changes.Apply(policy, plan)
	if err != nil {
		return err
	}
	for _, c := range written {
		printer.Success("Updated " + c.Path)
	}
	return nil
}

// confirm asks a yes/no question; anything but y or yes is no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
