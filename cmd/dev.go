package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mailwright/mailwright/internal/services"
	"github.com/mailwright/mailwright/internal/styles"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var devCmd = &cobra.Command{
	Use:     "dev",
	Aliases: []string{"serve", "s"},
	Short:   "Build, then watch the sources and serve with live reload",
	Long: `Clean and build every email once, then watch the sources and serve the
output directory. Template, style and image changes each re-run their own
build sequence and reload connected browsers.

Examples:
  mailwright dev                  # Serve on localhost:3000
  mailwright dev --port 8080      # Serve on another port
  mailwright dev --open           # Open the browser once serving`,
	RunE: runDev,
}

func init() {
	rootCmd.AddCommand(devCmd)
	addDevFlags(devCmd.Flags())
}

func addDevFlags(flags *pflag.FlagSet) {
	flags.IntP("port", "p", 3000, "Port to serve on")
	flags.String("host", "localhost", "Host to bind to")
	flags.Bool("open", false, "Open the browser once the server is up")
}

func runDev(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	compiler := styles.NewDartSass(cfg.Styles.DartSassBinary)
	defer compiler.Close()

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return services.NewServeService(cfg, compiler, logger).Serve(ctx, services.ServeOptions{
		OnReady: func(addr string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Serving emails at http://%s\n", addr)
		},
	})
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
