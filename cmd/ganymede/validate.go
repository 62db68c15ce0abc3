package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/policy"
)

var validateFlags struct {
	file   string
	kind   string
	agent  string
	params []string
	server string
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate an agent action against the policy rules",
	Long: `Validate a single agent action against the policy rule set.

The action is read as JSON from --file (or stdin with --file -), or
built inline from --type, --agent, and repeated --param k=v flags. It is
evaluated either locally against the configured rule artifact, or
through a running governance core when --server is given. Only remote
validation sees containment state: a halted core refuses the action.

Exit codes:
  0  action approved
  1  action rejected by policy
  2  system is emergency halted (remote only)
  3  configuration or rule artifact integrity error

Examples:
  # Validate against the local rule artifact
  ganymede validate --file action.json

  # Validate from stdin
  cat action.json | ganymede validate --file -

  # Build the action inline
  ganymede validate --type trade --agent trader-1 --param size=0.05 --param stop_loss=0.02

  # Validate through a running core
  ganymede validate --file action.json --server http://127.0.0.1:8750`,
	RunE: validateAction,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.file, "file", "f", "", "action JSON file (- for stdin)")
	validateCmd.Flags().StringVar(&validateFlags.kind, "type", "", "action type for an inline action")
	validateCmd.Flags().StringVar(&validateFlags.agent, "agent", "", "agent name for an inline action")
	validateCmd.Flags().StringArrayVar(&validateFlags.params, "param", nil, "action parameter k=v (repeatable)")
	validateCmd.Flags().StringVar(&validateFlags.server, "server", "", "validate through a running core instead of locally")
	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

func validateAction(cmd *cobra.Command, args []string) error {
	action, err := readAction()
	if err != nil {
		return cli.NewCommandError("validate", err)
	}

	if validateFlags.server != "" {
		return validateRemote(action)
	}
	return validateLocal(action)
}

// readAction builds the action from --file or the inline flags.
func readAction() (policy.Action, error) {
	var action policy.Action

	if validateFlags.file != "" {
		var (
			raw []byte
			err error
		)
		if validateFlags.file == "-" {
			raw, err = io.ReadAll(os.Stdin)
		} else {
			raw, err = os.ReadFile(validateFlags.file)
		}
		if err != nil {
			return action, fmt.Errorf("reading action: %w", err)
		}
		if err := json.Unmarshal(raw, &action); err != nil {
			return action, fmt.Errorf("parsing action: %w", err)
		}
		return action, nil
	}

	if validateFlags.kind == "" {
		return action, fmt.Errorf("either --file or --type is required")
	}
	action.Type = validateFlags.kind
	action.Agent = validateFlags.agent
	action.Parameters = make(map[string]interface{}, len(validateFlags.params))
	for _, pair := range validateFlags.params {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return action, fmt.Errorf("invalid --param %q, want k=v", pair)
		}
		action.Parameters[key] = parseParam(value)
	}
	return action, nil
}

// parseParam interprets a parameter value: bool, number, or string.
func parseParam(value string) interface{} {
	switch value {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return n
	}
	return value
}

func validateLocal(action policy.Action) error {
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

	engine := policy.NewEngine(rules, nil)
	decision := engine.Evaluate(action)

	printDecision(&decision)
	if !decision.Approved {
		os.Exit(cli.ExitRejected)
	}
	return nil
}

func validateRemote(action policy.Action) error {
	client := newAPIClient(validateFlags.server, "")

	status, payload, err := client.do(http.MethodPost, "/validate", action)
	if err != nil {
		return cli.NewCommandError("validate", err)
	}

	if status == http.StatusServiceUnavailable {
		fmt.Fprintf(os.Stderr, "system halted: %s\n", apiError(payload))
		os.Exit(cli.ExitHalted)
	}
	if status != http.StatusOK && status != http.StatusBadRequest {
		return cli.NewCommandError("validate", fmt.Errorf("%s", apiError(payload)))
	}

	var decision policy.Decision
	if err := json.Unmarshal(payload, &decision); err != nil {
		return cli.NewCommandError("validate", fmt.Errorf("decoding decision: %w", err))
	}

	printDecision(&decision)
	if !decision.Approved {
		os.Exit(cli.ExitRejected)
	}
	return nil
}

func printDecision(decision *policy.Decision) {
	if validateFlags.format == "json" {
		formatter := cli.NewFormatter(cli.FormatJSON)
		formatter.FormatTo(os.Stdout, decision)
		return
	}

	if decision.Approved {
		fmt.Println("✓ Action approved")
	} else {
		fmt.Println("✗ Action rejected")
	}
	fmt.Printf("Compliance score: %.3f\n", decision.ComplianceScore)
	fmt.Printf("Rules checked: %d\n", len(decision.RulesChecked))
	for _, v := range decision.Violations {
		fmt.Printf("  [%s] %s: %s\n", v.Severity, v.RuleName, v.Message)
	}
}
