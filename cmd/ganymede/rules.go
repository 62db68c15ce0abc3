package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/policy"
)

var rulesFlags struct {
	format   string
	expected string
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the policy rule artifact",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the rules in the configured artifact",
	Long: `Load the configured rule artifact and print its rules.

Examples:
  # List rules as text
  ganymede rules list

  # List rules as JSON
  ganymede rules list --format json`,
	RunE: listRules,
}

var rulesVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the rule artifact's integrity",
	Long: `Load the configured rule artifact and print its SHA-256 checksum.

With --expected, the computed checksum is compared against the given
value and a mismatch exits with the integrity code. Compare against the
checksum reported by a running core (GET /rules) to detect drift between
the artifact on disk and the rules a core actually enforces.

Exit codes:
  0  artifact valid (and checksum matches, when --expected is given)
  3  artifact unreadable, malformed, or checksum mismatch`,
	RunE: verifyRules,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesVerifyCmd)

	rulesListCmd.Flags().StringVar(&rulesFlags.format, "format", "text", "output format: text, json")
	rulesVerifyCmd.Flags().StringVar(&rulesFlags.expected, "expected", "", "expected SHA-256 checksum")
}

func loadConfiguredRules() *policy.RuleSet {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(cli.ExitIntegrity)
	}
	rules, err := policy.LoadRuleSet(cfg.Policy.RulesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load rules: %v\n", err)
		os.Exit(cli.ExitIntegrity)
	}
	return rules
}

func listRules(cmd *cobra.Command, args []string) error {
	rules := loadConfiguredRules()

	if rulesFlags.format == "json" {
		formatter := cli.NewFormatter(cli.FormatJSON)
		return formatter.FormatTo(os.Stdout, map[string]interface{}{
			"checksum": rules.Checksum(),
			"rules":    rules.Rules(),
		})
	}

	fmt.Printf("Rule artifact: %s\n", rules.Path())
	fmt.Printf("Checksum: %s\n", rules.Checksum())
	fmt.Printf("Rules: %d\n\n", rules.Len())
	for _, rule := range rules.Rules() {
		scope := "all actions"
		if len(rule.AppliesTo) > 0 {
			scope = fmt.Sprintf("%v", rule.AppliesTo)
		}
		fmt.Printf("  %-30s %-10s %-20s applies to %s\n", rule.Name, rule.Severity, rule.Category, scope)
	}
	return nil
}

func verifyRules(cmd *cobra.Command, args []string) error {
	rules := loadConfiguredRules()

	fmt.Printf("✓ Rule artifact valid (%d rules)\n", rules.Len())
	fmt.Printf("Checksum: %s\n", rules.Checksum())

	if rulesFlags.expected != "" && rulesFlags.expected != rules.Checksum() {
		fmt.Fprintf(os.Stderr, "✗ Checksum mismatch: expected %s\n", rulesFlags.expected)
		os.Exit(cli.ExitIntegrity)
	}
	return nil
}
