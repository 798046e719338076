package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage application settings",
	Long: `View and change storage, LLM, pipeline and synthesis settings.

Settings live in ~/.kbsynth/config.toml.`,
	RunE: withSettings(runConfigShow),
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	Args:  cobra.NoArgs,
	RunE:  withSettings(runConfigShow),
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Change one setting",
	Long: `Change one setting by its dotted key, for example:

  kbsynth config set pipeline.workers 8
  kbsynth config set synthesis.timeout 2m
  kbsynth config set llm.base_url http://gpu-box:11434`,
	Args: cobra.ExactArgs(2),
	RunE: withSettings(runConfigSet),
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the setting keys accepted by 'config set'",
	Args:  cobra.NoArgs,
	RunE:  withSettings(runConfigKeys),
}

var configLLMCmd = &cobra.Command{
	Use:   "llm",
	Short: "Configure the LLM provider interactively",
	Long:  `Choose a provider and model, enter an API key when needed, and check the provider is reachable.`,
	Args:  cobra.NoArgs,
	RunE:  withSettings(runConfigLLM),
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the settings and ping the LLM provider",
	Args:  cobra.NoArgs,
	RunE:  withSettings(runConfigValidate),
}

// withSettings fails the command early when main wired no settings service.
func withSettings(run func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if settingsService == nil {
			return errors.New("settings service not configured")
		}
		return run(cmd, args)
	}
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configKeysCmd)
	configCmd.AddCommand(configLLMCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

// setting is one row of 'config show'.
type setting struct {
	key   string
	value string
}

// settingRows flattens settings into the dotted keys 'config set' accepts.
func settingRows(s *domain.AppSettings) []setting {
	orUnset := func(v string) string {
		if v == "" {
			return "(not set)"
		}
		return v
	}
	dataDir := s.Storage.DataDir
	if dataDir == "" {
		dataDir = "(default)"
	}
	apiKey := "(not set)"
	if s.LLM.APIKey != "" {
		apiKey = maskAPIKey(s.LLM.APIKey)
	}
	return []setting{
		{"storage.backend", string(s.Storage.Backend)},
		{"storage.data_dir", dataDir},
		{"llm.provider", orUnset(string(s.LLM.Provider))},
		{"llm.model", orUnset(s.LLM.Model)},
		{"llm.base_url", orUnset(s.LLM.BaseURL)},
		{"llm.api_key", apiKey},
		{"llm.rate_per_second", strconv.FormatFloat(s.LLM.RatePerSecond, 'g', -1, 64)},
		{"pipeline.workers", strconv.Itoa(s.Pipeline.Workers)},
		{"pipeline.queue_size", strconv.Itoa(s.Pipeline.QueueSize)},
		{"synthesis.max_suggestions", strconv.Itoa(s.Synthesis.MaxSuggestions)},
		{"synthesis.timeout", s.Synthesis.Timeout.String()},
		{"synthesis.max_retries", strconv.Itoa(s.Synthesis.MaxRetries)},
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("reading settings: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	section := ""
	for _, row := range settingRows(settings) {
		prefix, _, _ := strings.Cut(row.key, ".")
		if prefix != section {
			if section != "" {
				fmt.Fprintln(w)
			}
			section = prefix
		}
		fmt.Fprintf(w, "%s\t%s\n", row.key, row.value)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	cmd.Println()

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'kbsynth config llm' to fix configuration issues.")
		return nil
	}
	cmd.Println("Configuration is valid.")
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if err := settingsService.Set(args[0], args[1]); err != nil {
		return fmt.Errorf("setting %s: %w", args[0], err)
	}
	value := args[1]
	if strings.HasSuffix(args[0], "api_key") {
		value = maskAPIKey(value)
	}
	cmd.Printf("%s = %s\n", args[0], value)
	return nil
}

func runConfigKeys(cmd *cobra.Command, _ []string) error {
	for _, key := range settingsService.Keys() {
		cmd.Println(key)
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	if err := settingsService.Validate(); err != nil {
		return err
	}
	cmd.Print("Checking LLM provider... ")
	if err := settingsService.ProbeLLM(cmd.Context()); err != nil {
		cmd.Println("FAILED")
		return fmt.Errorf("probing LLM provider: %w", err)
	}
	cmd.Println("OK")
	return nil
}

// llmAnswers collects the responses of the interactive LLM prompt.
type llmAnswers struct {
	provider domain.AIProvider
	model    string
	apiKey   string
}

func askLLM(cmd *cobra.Command, reader *bufio.Reader) (llmAnswers, error) {
	providers := domain.AllLLMProviders()
	cmd.Println("Select LLM Provider")
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	a := llmAnswers{provider: providers[parseChoice(readLine(reader), len(providers), 1)-1]}

	def := domain.DefaultLLMModels()[a.provider]
	cmd.Printf("Enter model name [%s]: ", def)
	if a.model = readLine(reader); a.model == "" {
		a.model = def
	}

	if !a.provider.RequiresAPIKey() {
		return a, nil
	}
	cmd.Print("Enter API key: ")
	a.apiKey = readPassword(reader)
	cmd.Println()
	if a.apiKey == "" {
		return a, fmt.Errorf("API key is required for %s", a.provider)
	}
	return a, nil
}

func runConfigLLM(cmd *cobra.Command, _ []string) error {
	a, err := askLLM(cmd, bufio.NewReader(cmd.InOrStdin()))
	if err != nil {
		return err
	}
	if err := settingsService.SetLLMProvider(a.provider, a.model, a.apiKey); err != nil {
		return fmt.Errorf("saving LLM provider: %w", err)
	}

	cmd.Print("Validating configuration... ")
	if err := settingsService.ProbeLLM(cmd.Context()); err != nil {
		cmd.Println("FAILED")
		return fmt.Errorf("probing LLM provider: %w", err)
	}
	cmd.Println("OK")
	cmd.Printf("LLM provider configured: %s (%s)\n", a.provider.Description(), a.model)
	return nil
}

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

// readPassword reads without echo on a terminal and falls back to a plain
// line read otherwise.
func readPassword(reader *bufio.Reader) string {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return string(password)
		}
	}
	return readLine(reader)
}

// maskAPIKey keeps four characters at each end of keys long enough to
// hide the rest.
func maskAPIKey(key string) string {
	const keep = 4
	if len(key) <= 2*keep {
		return "****"
	}
	return key[:keep] + "..." + key[len(key)-keep:]
}
