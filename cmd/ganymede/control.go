package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"
	"mercator-hq/ganymede/pkg/cli"
)

var controlFlags struct {
	server string
	author string
	reason string
}

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Containment controls for a running governance core",
	Long: `Operate the containment surface of a running governance core:
isolate and restore individual agents, halt and resume the whole system.

Containment actions carry an author identity for the audit trail, and
resuming a halt requires a different author than the one who halted
(four-eyes rule).`,
}

var isolateCmd = &cobra.Command{
	Use:   "isolate AGENT",
	Short: "Isolate an agent",
	Long: `Quarantine an agent. Its actions are refused without evaluation
until it is restored.`,
	Args: cobra.ExactArgs(1),
	RunE: isolateAgent,
}

var restoreCmd = &cobra.Command{
	Use:   "restore AGENT",
	Short: "Restore an isolated agent",
	Args:  cobra.ExactArgs(1),
	RunE:  restoreAgent,
}

var haltCmd = &cobra.Command{
	Use:   "halt",
	Short: "Emergency halt the whole system",
	Long: `Stop all governance activity. Every validation is refused until
a different operator resumes.

Examples:
  ganymede control halt --author alice --reason "incident 4711"`,
	RunE: haltSystem,
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a halted system",
	Long: `Lift an emergency halt. The resuming author must differ from the
halting author.`,
	RunE: resumeSystem,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show containment status",
	Long: `Show the containment status of a running core.

Exit codes:
  0  system running
  2  system halted`,
	RunE: controlStatus,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.AddCommand(isolateCmd)
	controlCmd.AddCommand(restoreCmd)
	controlCmd.AddCommand(haltCmd)
	controlCmd.AddCommand(resumeCmd)
	controlCmd.AddCommand(statusCmd)

	controlCmd.PersistentFlags().StringVar(&controlFlags.server, "server", "http://127.0.0.1:8750", "governance core address")
	controlCmd.PersistentFlags().StringVar(&controlFlags.author, "author", "", "author identity for the audit trail")
	haltCmd.Flags().StringVar(&controlFlags.reason, "reason", "", "halt reason")
}

func controlPost(command, path string, body interface{}) error {
	if controlFlags.author == "" {
		return cli.NewConfigError("author", "containment actions require --author")
	}
	client := newAPIClient(controlFlags.server, controlFlags.author)

	status, payload, err := client.do(http.MethodPost, path, body)
	if err != nil {
		return cli.NewCommandError(command, err)
	}
	if status != http.StatusOK {
		return cli.NewCommandError(command, fmt.Errorf("%s", apiError(payload)))
	}
	printPayload(payload)
	return nil
}

func isolateAgent(cmd *cobra.Command, args []string) error {
	if err := controlPost("isolate", "/control/isolate/"+url.PathEscape(args[0]), nil); err != nil {
		return err
	}
	fmt.Printf("✓ Agent %s isolated\n", args[0])
	return nil
}

func restoreAgent(cmd *cobra.Command, args []string) error {
	if err := controlPost("restore", "/control/restore/"+url.PathEscape(args[0]), nil); err != nil {
		return err
	}
	fmt.Printf("✓ Agent %s restored\n", args[0])
	return nil
}

func haltSystem(cmd *cobra.Command, args []string) error {
	var body interface{}
	if controlFlags.reason != "" {
		body = map[string]string{"reason": controlFlags.reason}
	}
	if err := controlPost("halt", "/control/halt", body); err != nil {
		return err
	}
	fmt.Println("✓ System halted")
	return nil
}

func resumeSystem(cmd *cobra.Command, args []string) error {
	if err := controlPost("resume", "/control/resume", nil); err != nil {
		return err
	}
	fmt.Println("✓ System resumed")
	return nil
}

func controlStatus(cmd *cobra.Command, args []string) error {
	client := newAPIClient(controlFlags.server, "")

	status, payload, err := client.do(http.MethodGet, "/control/status", nil)
	if err != nil {
		return cli.NewCommandError("status", err)
	}
	if status != http.StatusOK {
		return cli.NewCommandError("status", fmt.Errorf("%s", apiError(payload)))
	}
	printPayload(payload)

	var parsed struct {
		Halted bool `json:"halted"`
	}
	if err := parsePayload(payload, &parsed); err == nil && parsed.Halted {
		os.Exit(cli.ExitHalted)
	}
	return nil
}
