package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"dab/internal/platform/config"
	"dab/internal/platform/postgres"
	id "dab/pkg/domain"
	audit "dab/pkg/platform/audit"
	auditpostgres "dab/pkg/platform/audit/store/postgres"
)

var (
	auditDatabaseURL string
	auditDriver      string
	auditActor       string
	auditLimit       int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Read audit events recorded by a server on the Postgres store",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events for one caller or the most recent ones",
	RunE:  runAuditList,
}

func init() {
	auditListCmd.Flags().StringVar(&auditDatabaseURL, "database-url", envOr("DATABASE_URL", ""), "Postgres connection string")
	auditListCmd.Flags().StringVar(&auditDriver, "driver", envOr("DATABASE_DRIVER", "pgx"), "database/sql driver (pgx or postgres)")
	auditListCmd.Flags().StringVar(&auditActor, "actor", "", "only events by this caller")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 50, "most recent events to show when --actor is not set")
	auditCmd.AddCommand(auditListCmd)
	rootCmd.AddCommand(auditCmd)
}

// auditReader is the query side of the audit stores.
type auditReader interface {
	ListByActor(ctx context.Context, actor id.Identity) ([]audit.Event, error)
	ListRecent(ctx context.Context, limit int) ([]audit.Event, error)
}

func runAuditList(cmd *cobra.Command, _ []string) error {
	if auditDatabaseURL == "" {
		return fmt.Errorf("--database-url or DATABASE_URL is required")
	}
	var actor id.Identity
	if auditActor != "" {
		a, err := id.ParseIdentity(auditActor)
		if err != nil {
			return fmt.Errorf("--actor: %w", err)
		}
		actor = a
	}
	if actor.IsNil() && auditLimit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	db, err := postgres.Open(ctx, config.DatabaseConfig{URL: auditDatabaseURL, Driver: auditDriver})
	if err != nil {
		return err
	}
	defer db.Close()

	events, err := listAudit(ctx, auditpostgres.New(db), actor, auditLimit)
	if err != nil {
		return err
	}
	return printAudit(cmd.OutOrStdout(), events)
}

func listAudit(ctx context.Context, r auditReader, actor id.Identity, limit int) ([]audit.Event, error) {
	if !actor.IsNil() {
		return r.ListByActor(ctx, actor)
	}
	return r.ListRecent(ctx, limit)
}

func printAudit(out io.Writer, events []audit.Event) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCATEGORY\tACTOR\tACTION\tSUBJECT\tREASON\tREQUEST")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.UTC().Format(time.RFC3339), e.Category, e.Actor, e.Action, e.Subject, e.Reason, e.RequestID)
	}
	return tw.Flush()
}
