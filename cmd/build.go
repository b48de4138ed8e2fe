package cmd

import (
	"fmt"
	"time"

	"github.com/mailwright/mailwright/internal/services"
	"github.com/mailwright/mailwright/internal/styles"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Clean and build every email once",
	Long: `Remove the output directory, then render the pages, compile the styles,
optimize the images and inline the CSS. Exits non-zero when any stage fails.`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	compiler := styles.NewDartSass(cfg.Styles.DartSassBinary)
	defer compiler.Close()

	result, err := services.NewBuildService(cfg, compiler, logger).Build(contextOf(cmd))
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Built %s in %s\n", cfg.Paths.Output, result.Duration.Round(time.Millisecond))
	return nil
}
