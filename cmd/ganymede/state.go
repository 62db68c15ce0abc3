package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
	"mercator-hq/ganymede/pkg/cli"
)

var stateFlags struct {
	server   string
	author   string
	revision int64
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and roll back governed state",
	Long: `Read and roll back keys in the append-only state store of a
running governance core. Every key carries a full revision history;
rollback appends a new revision copying an earlier value, it never
deletes anything.`,
}

var stateGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get the latest (or a specific) revision of a key",
	Args:  cobra.ExactArgs(1),
	RunE:  getState,
}

var stateHistoryCmd = &cobra.Command{
	Use:   "history KEY",
	Short: "Show the full revision history of a key",
	Args:  cobra.ExactArgs(1),
	RunE:  getStateHistory,
}

var stateRollbackCmd = &cobra.Command{
	Use:   "rollback KEY",
	Short: "Roll a key back to an earlier revision",
	Long: `Append a new revision of KEY copying the value of the revision
given with --revision. Requires --author for the audit trail.

Examples:
  ganymede state rollback agent:trader-1:limits --revision 3 --author alice`,
	Args: cobra.ExactArgs(1),
	RunE: rollbackState,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateGetCmd)
	stateCmd.AddCommand(stateHistoryCmd)
	stateCmd.AddCommand(stateRollbackCmd)

	stateCmd.PersistentFlags().StringVar(&stateFlags.server, "server", "http://127.0.0.1:8750", "governance core address")
	stateGetCmd.Flags().Int64Var(&stateFlags.revision, "revision", 0, "specific revision (latest if omitted)")
	stateRollbackCmd.Flags().Int64Var(&stateFlags.revision, "revision", 0, "target revision to roll back to")
	stateRollbackCmd.Flags().StringVar(&stateFlags.author, "author", "", "author for the audit trail")
	stateRollbackCmd.MarkFlagRequired("revision")
	stateRollbackCmd.MarkFlagRequired("author")
}

func getState(cmd *cobra.Command, args []string) error {
	client := newAPIClient(stateFlags.server, "")

	path := "/state/" + url.PathEscape(args[0])
	if stateFlags.revision > 0 {
		path += fmt.Sprintf("?revision=%d", stateFlags.revision)
	}

	status, payload, err := client.do(http.MethodGet, path, nil)
	if err != nil {
		return cli.NewCommandError("state get", err)
	}
	if status != http.StatusOK {
		return cli.NewCommandError("state get", fmt.Errorf("%s", apiError(payload)))
	}
	printPayload(payload)
	return nil
}

func getStateHistory(cmd *cobra.Command, args []string) error {
	client := newAPIClient(stateFlags.server, "")

	status, payload, err := client.do(http.MethodGet, "/state/"+url.PathEscape(args[0])+"/history", nil)
	if err != nil {
		return cli.NewCommandError("state history", err)
	}
	if status != http.StatusOK {
		return cli.NewCommandError("state history", fmt.Errorf("%s", apiError(payload)))
	}
	printPayload(payload)
	return nil
}

func rollbackState(cmd *cobra.Command, args []string) error {
	client := newAPIClient(stateFlags.server, stateFlags.author)

	status, payload, err := client.do(http.MethodPost,
		"/state/"+url.PathEscape(args[0])+"/rollback",
		map[string]int64{"revision": stateFlags.revision})
	if err != nil {
		return cli.NewCommandError("state rollback", err)
	}
	if status != http.StatusOK {
		return cli.NewCommandError("state rollback", fmt.Errorf("%s", apiError(payload)))
	}
	fmt.Printf("✓ Rolled %s back to revision %d\n", args[0], stateFlags.revision)
	printPayload(payload)
	return nil
}
