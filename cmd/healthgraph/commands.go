package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/healthgraph-etl/internal/domain/portrait"
	"github.com/yungbote/healthgraph-etl/internal/ingestion/coordinator"
)

func ingestCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest one portrait document from disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}
			doc, err := portrait.DecodeAny(raw)
			if err != nil {
				return err
			}
			if doc == nil {
				return fmt.Errorf("%s: envelope carries no data", file)
			}

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			coord, err := a.Coordinator(ctx)
			if err != nil {
				return err
			}
			res, err := coord.Ingest(ctx, doc)
			if err != nil {
				return err
			}
			out := map[string]any{"patient_id": res.PatientID, "ops": res.Ops, "skips": res.Skips}
			if mem := a.Memory(); mem != nil {
				st, _ := mem.Stats(ctx)
				out["graph"] = st
			}
			return printJSON(out)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Document JSON (provider envelope or bare document)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// planCmd prints the graph operations for a document without connecting.
func planCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the graph operations a document would produce",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}
			doc, err := portrait.DecodeAny(raw)
			if err != nil {
				return err
			}
			if doc == nil {
				return fmt.Errorf("%s: envelope carries no data", file)
			}
			ops, mapped, err := coordinator.Plan(doc)
			if err != nil {
				return err
			}
			lines := make([]string, 0, len(ops))
			for _, op := range ops {
				lines = append(lines, op.String())
			}
			return printJSON(map[string]any{"ops": lines, "skips": mapped.Skips})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Document JSON (provider envelope or bare document)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func watermarkCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watermark",
		Short: "Inspect or change the incremental watermark",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the last successful load time",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			wm, err := a.Watermark(ctx)
			if err != nil {
				return err
			}
			t, ok, err := wm.Load(ctx)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("none (next run is a full load)")
				return nil
			}
			fmt.Println(t.UTC().Format(time.RFC3339))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <RFC3339>",
		Short: "Overwrite the watermark",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := time.Parse(time.RFC3339, args[0])
			if err != nil {
				return fmt.Errorf("invalid time %q: %w", args[0], err)
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			wm, err := a.Watermark(ctx)
			if err != nil {
				return err
			}
			if err := wm.Save(ctx, t); err != nil {
				return err
			}
			a.Log.Info("watermark set", "watermark", t.UTC().Format(time.RFC3339))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the watermark so the next run is a full load",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			wm, err := a.Watermark(ctx)
			if err != nil {
				return err
			}
			return wm.Clear(ctx)
		},
	})
	return cmd
}

func schemaCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create graph constraints and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			// Graph ensures the schema on first build.
			_, err = a.Graph(ctx)
			return err
		},
	}
}
