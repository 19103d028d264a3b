package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/chatlog/internal/config"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteDefault(cfgPath); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Saved default config file to %q\n", cfgPath)
		return nil
	},
}
