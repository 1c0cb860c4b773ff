// Command datasage answers natural-language questions about CSV datasets.
// `serve` runs the HTTP boundary; `ask` runs one question from the shell.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datasage-io/datasage/internal/config"
	"github.com/datasage-io/datasage/internal/logger"
	"github.com/datasage-io/datasage/internal/server"
	"github.com/datasage-io/datasage/internal/session"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "datasage",
		Short:         "Ask questions about CSV data in plain language",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newAskCmd(&configPath))
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := logger.New(&cfg.Logging)

			sessions := session.NewManager(cfg, log)
			defer sessions.Close()

			srv := server.New(cfg, log, sessions)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				log.Info("shutting down")
				return srv.Shutdown(context.Background())
			}
		},
	}
}

func newAskCmd(configPath *string) *cobra.Command {
	var (
		csvPath  string
		useModel bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "ask --file data.csv <question...>",
		Short: "Answer one question about a CSV file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			// Keep one-shot output on stderr so result rows stay pipeable.
			cfg.Logging.Output = os.Stderr
			log := logger.New(&cfg.Logging)

			f, err := os.Open(csvPath)
			if err != nil {
				return err
			}
			defer f.Close()

			sess := session.New(cfg, log)
			defer sess.Close()

			ctx := cmd.Context()
			if _, err := sess.Upload(ctx, csvPath, f); err != nil {
				return err
			}

			answer, err := sess.Ask(ctx, strings.Join(args, " "), useModel)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(answer)
			}

			fmt.Printf("sql: %s\n", answer.SQL)
			for _, a := range answer.Assumptions {
				fmt.Printf("note: %s\n", a)
			}
			fmt.Println(strings.Join(answer.Result.Columns, "\t"))
			for _, row := range answer.Result.Rows {
				cells := make([]string, len(answer.Result.Columns))
				for i, col := range answer.Result.Columns {
					cells[i] = cellText(row[col])
				}
				fmt.Println(strings.Join(cells, "\t"))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&csvPath, "file", "f", "", "CSV file to query (required)")
	cmd.Flags().BoolVar(&useModel, "model", false, "use the model-assisted translator")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full answer as JSON")
	cmd.MarkFlagRequired("file")
	return cmd
}

func cellText(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}
