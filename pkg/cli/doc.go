/*
Package cli provides command-line interface utilities for Ganymede.

The cli package includes output formatters, process exit codes, and common
CLI helpers used by the ganymede command.

Exit Codes:

Ganymede commands use a fixed exit code contract so that scripts and CI
pipelines can branch on the outcome of a validation:

	cli.ExitOK        (0) - command succeeded, action approved
	cli.ExitRejected  (1) - action rejected by policy
	cli.ExitHalted    (2) - system is emergency halted
	cli.ExitIntegrity (3) - configuration or rule-set integrity error

Output Formatting:

The cli package supports text and JSON output for displaying command
results:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, decision); err != nil {
		return err
	}

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx := cli.SetupSignalHandler()
	// Use ctx for operations that should be cancelled on shutdown
*/
package cli
