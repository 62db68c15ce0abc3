package main

import (
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion <shell>",
	Short: "Generate a shell completion script",
	Long: `Generate a completion script for the given shell and write it to
stdout. Supported shells: bash, zsh, fish, powershell.

Load it in the current session, for example:

  source <(ganymede completion bash)
  ganymede completion fish | source

or install it permanently where your shell picks completions up:

  ganymede completion bash > /etc/bash_completion.d/ganymede
  ganymede completion zsh > "${fpath[1]}/_ganymede"
  ganymede completion fish > ~/.config/fish/completions/ganymede.fish`,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletionV2(out, true)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		}
		return rootCmd.GenPowerShellCompletionWithDesc(out)
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
