package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/nebula-ntuple/pkg/blobstore"
	"github.com/ajitpratap0/nebula-ntuple/pkg/rowstore"
)

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect CONTAINER",
		Short: "List the keys of a container and the branches of its trees",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), a.cfg.Storage)
			if err != nil {
				return err
			}
			return inspect(cmd.Context(), cmd.OutOrStdout(), store, args[0])
		},
	}
}

func inspect(ctx context.Context, w io.Writer, store blobstore.Store, name string) error {
	f, err := rowstore.Open(ctx, store, name)
	if err != nil {
		return err
	}
	defer f.Close(ctx) //nolint:errcheck

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tCLASS\tCODEC\tBYTES\tENTRIES")
	for _, k := range f.Keys() {
		entries := "-"
		if k.IsTree() {
			t, err := f.GetTree(k.Name)
			if err != nil {
				return err
			}
			entries = fmt.Sprint(t.Entries())
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", k.Name, k.Class, k.Codec, k.Size, entries)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, k := range f.Keys() {
		if !k.IsTree() {
			continue
		}
		t, err := f.GetTree(k.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%s", t.Name())
		if t.Title() != "" {
			fmt.Fprintf(w, " (%s)", t.Title())
		}
		fmt.Fprintln(w)
		for _, b := range t.Branches() {
			line := "  " + b.Descriptor().String()
			if b.Declared() == rowstore.Half {
				line += "  [half]"
			}
			if b.Title() != "" {
				line += "  " + b.Title()
			}
			fmt.Fprintln(w, line)
		}
	}
	return nil
}
