package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/nebula-ntuple/pkg/blobstore"
	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
	"github.com/ajitpratap0/nebula-ntuple/pkg/formats/columnar"
	"github.com/ajitpratap0/nebula-ntuple/pkg/rowstore"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		tree, format, codec, out string
		rowGroup                 int64
	)
	cmd := &cobra.Command{
		Use:   "export CONTAINER",
		Short: "Export a stored tree to a Parquet or Arrow file",
		Long: `Export writes one tree of a container to a local file that analysis tools can read.

Example:
  ntuple export skims/run2024A --tree Events --format parquet -o events.parquet`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if tree == "" {
				tree = a.cfg.Output.Tree
			}
			f, err := columnar.ParseFormat(format)
			if err != nil {
				return err
			}
			wc := columnar.DefaultWriterConfig()
			wc.Format = f
			if codec != "" {
				wc.Compression = codec
			} else if f == columnar.Arrow {
				wc.Compression = "zstd"
			}
			if rowGroup > 0 {
				wc.RowGroupSize = rowGroup
			}
			if out == "" {
				out = tree + columnar.GetFormatInfo(f).FileExtension
			}
			store, err := openStore(cmd.Context(), a.cfg.Storage)
			if err != nil {
				return err
			}
			stats, err := exportTree(cmd.Context(), store, args[0], tree, out, wc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d rows of %s written to %s (%d bytes)\n", stats.Rows, tree, out, stats.Bytes)
			return nil
		},
	}
	cmd.Flags().StringVarP(&tree, "tree", "t", "", "Tree to export; defaults to output.tree")
	cmd.Flags().StringVarP(&format, "format", "f", string(columnar.Parquet), "Output format (parquet, arrow)")
	cmd.Flags().StringVar(&codec, "compression", "", "Codec (parquet: none, snappy, gzip, zstd; arrow: none, lz4, zstd)")
	cmd.Flags().Int64Var(&rowGroup, "row-group-size", 0, "Maximum rows per Parquet row group")
	cmd.Flags().StringVarP(&out, "output", "o", "", "Output file; defaults to TREE.<ext>")
	return cmd
}

func exportTree(ctx context.Context, store blobstore.Store, container, tree, path string, wc *columnar.WriterConfig) (*columnar.Stats, error) {
	in, err := rowstore.Open(ctx, store, container)
	if err != nil {
		return nil, err
	}
	defer in.Close(ctx) //nolint:errcheck
	t, err := in.GetTree(tree)
	if err != nil {
		return nil, err
	}

	fh, err := os.Create(path) //nolint:gosec
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "create export file").WithDetail("path", path)
	}
	stats, err := columnar.Export(ctx, fh, t, wc)
	if cerr := fh.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, errors.ErrorTypeFile, "close export file").WithDetail("path", path)
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return stats, nil
}
