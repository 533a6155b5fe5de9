package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/medrag-cli/internal/llm"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify provider credentials with a one-token call",
	Long:  "Sends a single max_tokens=1 chat call. Exits 2 when credentials are missing and 1 when the call fails.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		provider, _ := cmd.Flags().GetString("llm-provider")
		w := cmd.OutOrStdout()

		name := cfg.ProviderName(provider)
		if err := cfg.Validate(name); err != nil {
			fmt.Fprintf(w, "[fail] %v\n", err)
			return &exitError{code: 2, msg: "check: configuration incomplete"}
		}
		p, err := llm.Select(cmd.Context(), cfg, name)
		if err != nil {
			fmt.Fprintf(w, "[fail] %v\n", err)
			return &exitError{code: 2, msg: "check: provider setup failed"}
		}
		if code := checkProvider(cmd.Context(), w, p); code != 0 {
			return &exitError{code: code, msg: "check: call failed"}
		}
		return nil
	},
}

// checkProvider makes the connectivity call and reports on w. It returns
// the process exit code.
func checkProvider(ctx context.Context, w io.Writer, p llm.Provider) int {
	resp, err := p.Chat(ctx, llm.ChatRequest{
		System:    "You are a connectivity test.",
		User:      "Reply with one character.",
		MaxTokens: 1,
	})
	if err != nil {
		_, _ = fmt.Fprintf(w, "[fail] %s chat call failed\n", p.Name())
		_, _ = fmt.Fprintf(w, "  model=%q\n", p.Model())
		_, _ = fmt.Fprintf(w, "  error=%v\n", err)
		return 1
	}

	_, _ = fmt.Fprintf(w, "[ok] %s connection good\n", p.Name())
	_, _ = fmt.Fprintf(w, "  model=%q\n", p.Model())
	if resp.ID != "" {
		_, _ = fmt.Fprintf(w, "  response_id=%s\n", resp.ID)
	}
	if resp.Text != "" {
		_, _ = fmt.Fprintf(w, "  sample=%q\n", resp.Text)
	}
	return 0
}

func init() {
	checkCmd.Flags().String("llm-provider", "", "provider to check; defaults to llm.provider")
	rootCmd.AddCommand(checkCmd)
}
