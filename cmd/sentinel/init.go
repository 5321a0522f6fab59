package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fixharbor/sentinel/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented sample config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		if path == "" {
			path = config.DefaultPath
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := os.WriteFile(path, []byte(config.Example()), 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Wrote %s\n", green("✓"), path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
