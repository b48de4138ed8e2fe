package cmd

import (
	"fmt"

	"github.com/mailwright/mailwright/internal/services"
	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the output directory",
	RunE:  runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := services.NewBuildService(cfg, nil, newLogger(cmd, cfg)).Clean(contextOf(cmd)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", cfg.Paths.Output)
	return nil
}
