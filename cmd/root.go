package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sells-group/medrag-cli/internal/config"
)

var (
	cfg     *config.Config
	envFile string
)

// exitError carries a process exit code out of a command. Commands return
// it when the outcome is a reportable failure rather than a usage error.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

var rootCmd = &cobra.Command{
	Use:   "medrag",
	Short: "MedAgents baseline and RAG evaluation harness",
	Long: "Runs the MedAgents multi-expert pipeline over MedQA-style datasets, optionally " +
		"injecting pre-retrieved evidence, and scores, audits and records the results.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
}

// flagAliases maps short spellings onto their canonical flag names.
var flagAliases = map[string]string{
	"provider": "llm-provider",
}

// underscoreFlags accepts snake_case spellings (--start_pos) and aliases.
func underscoreFlags(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	name = strings.ReplaceAll(name, "_", "-")
	if canonical, ok := flagAliases[name]; ok {
		name = canonical
	}
	return pflag.NormalizedName(name)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration")
	rootCmd.SetGlobalNormalizationFunc(underscoreFlags)
}

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}
