package main

import (
	"context"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/Veraticus/rexpenalty/internal/cli"
	"github.com/Veraticus/rexpenalty/internal/fixture"
	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/Veraticus/rexpenalty/internal/storage"
	"github.com/spf13/cobra"
)

// openStore opens the rule store and brings its schema up to date.
func openStore(ctx context.Context) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(databasePath())
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func closeStore(store *storage.SQLiteStorage) {
	if err := store.Close(); err != nil {
		slog.Error("Failed to close rule store", "error", err)
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the rule store schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			status, _ := cmd.Flags().GetBool("status")

			store, err := storage.NewSQLiteStorage(databasePath())
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer closeStore(store)

			if !status {
				slog.Info("Running database migrations", "database", store.Path())
				if err := store.Migrate(ctx); err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
			}

			current, err := store.SchemaVersion(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n",
				cli.FormatInfo(fmt.Sprintf("schema version %d of %d at %s", current, storage.ExpectedSchemaVersion, store.Path())))
			return err
		},
	}
	cmd.Flags().Bool("status", false, "Show the schema version without migrating")
	return cmd
}

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage the rule store",
	}
	cmd.AddCommand(rulesImportCmd())
	cmd.AddCommand(rulesListCmd())
	return cmd
}

func rulesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import a YAML rule library into the rule store",
		Long: `Import rule records, flat penalties, fare type tables, carrier tables
and currency rates from a YAML rule library. Records with the same item and
sequence number replace the stored ones.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			lib, err := fixture.LoadLibrary(args[0])
			if err != nil {
				return err
			}

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore(store)

			stats, err := lib.Import(ctx, store)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
				"Imported %d records, %d flat penalties, %d fare type tables, %d carrier tables, %d rates",
				stats.Records, stats.FlatPenalties, stats.FareTypes, stats.Carriers, stats.Rates)))
			return err
		},
	}
}

func rulesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored rule records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			carrier, _ := cmd.Flags().GetString("carrier")

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore(store)

			entries, err := store.ListRules(ctx, carrier)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				_, err = fmt.Fprintln(out, cli.InfoStyle.Render("No rule records found. Use 'rexpenalty rules import' to add some."))
				return err
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				cli.BoldStyle.Render("Rule"),
				cli.BoldStyle.Render("Category"),
				cli.BoldStyle.Render("Item/Seq"),
				cli.BoldStyle.Render("Pax"),
				cli.BoldStyle.Render("Penalty"),
				cli.BoldStyle.Render("Percent"),
				cli.BoldStyle.Render("Method"),
			); err != nil {
				return err
			}
			for _, e := range entries {
				rec := e.Record
				if _, err := fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\t%s\t%s\n",
					e.Rule, rec.Category, rec.ItemNo, rec.SeqNo, dash(rec.PaxType),
					amount(rec.Penalty1), rec.Percent.String(), rec.Method()); err != nil {
					return err
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().String("carrier", "", "Only list rules of this carrier")
	return cmd
}

func amount(m model.Money) string {
	if !m.IsPresent() {
		return "-"
	}
	return m.String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
