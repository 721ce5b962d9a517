package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/c360studio/semsolver/export"
	"github.com/c360studio/semsolver/graph"
	"github.com/c360studio/semsolver/storage"
)

func exportCmd(a *app) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export [id...]",
		Short: "Export stored descriptors as RDF",
		Long: `Export stored descriptors as RDF graph entities (Turtle, N-Triples or
JSON-LD). With no ids every stored descriptor is exported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, release, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer release()

			var records []*storage.Record
			if len(args) == 0 {
				if records, err = store.List(ctx); err != nil {
					return err
				}
			}
			for _, id := range args {
				rec, err := store.Get(ctx, id)
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("descriptor %s not found", id)
				}
				if err != nil {
					return err
				}
				records = append(records, rec)
			}

			exporter := export.NewRDFExporter()
			for _, rec := range records {
				exporter.AddEntity(graph.DescriptorEntity(rec, appName, rec.UpdatedAt))
			}
			rdf, err := exporter.Export(f)
			if err != nil {
				return err
			}

			if output == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), rdf)
				return err
			}
			if err := os.WriteFile(output, []byte(rdf), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d descriptor(s) to %s\n", len(records), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(export.FormatTurtle), "RDF format (turtle, ntriples, jsonld)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}
