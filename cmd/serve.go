package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainaudit/chainaudit/pkg/app"
	"github.com/chainaudit/chainaudit/pkg/app/config"
	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and webhook receiver",
	PreRunE: func(cmd *cobra.Command, args []string) (err error) {
		flags := cmd.Flags()
		if err = bindFlag("http.addr", flags.Lookup("addr")); err != nil {
			return
		}
		return bindFlag("store.dir", flags.Lookup("store-dir"))
	},
	RunE: runServe,
}

func init() {
	initServeArgs()
	rootCmd.AddCommand(serveCmd)
}

func initServeArgs() {
	flags := serveCmd.Flags()

	flags.String(
		"addr",
		"",
		"Address to listen on, e.g. \":5001\".")

	flags.String(
		"store-dir",
		"",
		"Directory of the document store.")
}

func runServe(*cobra.Command, []string) (err error) {
	var appCfg *config.AppConfig
	if appCfg, err = config.Build(vpr); err != nil {
		return errors.WithMessage(err, "invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var application *app.App
	if application, err = app.New(ctx, appCfg); err != nil {
		return errors.WithMessage(err, "unable to build app")
	}

	if err = application.Execute(ctx); err != nil {
		return errors.WithMessage(err, "unable to execute app")
	}

	return
}
