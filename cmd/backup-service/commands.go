package main

import (
	"backup-service/internal/core/domain"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// backupApp - то, что команды используют из собранного приложения
type backupApp interface {
	Run() error
	RunOnce(ctx context.Context) *domain.BackupRecord
	ValidateRestore(ctx context.Context, name string) (*domain.Snapshot, error)
	Close()
}

type appFactory func(envFile string) (backupApp, error)

// errCycleFailed - цикл отработал, но бэкап не опубликован
var errCycleFailed = errors.New("backup cycle failed")

func newRootCmd(factory appFactory, stdout, stderr io.Writer) *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:           "backup-service",
		Short:         "Periodic CRM database backups to a versioned remote store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file (default: ./.env if present)")

	build := func() (backupApp, error) {
		return factory(envFile)
	}

	cmd.AddCommand(newServeCmd(build))
	cmd.AddCommand(newRunOnceCmd(build, stdout))
	cmd.AddCommand(newValidateRestoreCmd(build, stdout))
	return cmd
}

func newServeCmd(build func() (backupApp, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the backup scheduler and the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := build()
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return app.Run()
		},
	}
}

func newRunOnceCmd(build func() (backupApp, error), stdout io.Writer) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "run-once",
		Short: "Run a single backup cycle and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := build()
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			record := app.RunOnce(ctx)
			if err := printRecord(stdout, output, record); err != nil {
				return err
			}
			if !record.Succeeded() {
				return fmt.Errorf("%w: %s", errCycleFailed, record.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}

func newValidateRestoreCmd(build func() (backupApp, error), stdout io.Writer) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "validate-restore <backup-name>",
		Short: "Check that a published backup can be restored, without restoring it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := build()
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer app.Close()

			snapshot, err := app.ValidateRestore(commandContext(cmd), args[0])
			if err != nil {
				return fmt.Errorf("backup %s is not restorable (%s): %w", args[0], domain.ErrorKind(err), err)
			}

			counts := snapshot.Counts()
			if output == "json" {
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"valid":     true,
					"path":      snapshot.Path(),
					"timestamp": snapshot.Timestamp,
					"counts":    counts,
				})
			}
			tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tTIMESTAMP\tPROPERTIES\tCLIENTS\tSHOWINGS\tADMIN_ACTIONS")
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n", snapshot.Path(), snapshot.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
				counts.Properties, counts.Clients, counts.Showings, counts.AdminActions)
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}

func printRecord(w io.Writer, output string, record *domain.BackupRecord) error {
	if output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CYCLE\tPATH\tSTATUS\tVERSION\tUNCHANGED\tERROR")
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n", record.CycleID, record.Path, record.Status, record.VersionToken, record.Unchanged, record.ErrorKind)
	return tw.Flush()
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// execute возвращает код выхода процесса
func execute(root *cobra.Command) int {
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}
