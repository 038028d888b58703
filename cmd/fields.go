package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/bimattr/internal/attr"
)

var fieldsCmd = &cobra.Command{
	Use:   "fields [type]",
	Short: "List entity types and their attribute descriptors",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		types, err := initTypes()
		if err != nil {
			return err
		}
		only := ""
		if len(args) == 1 {
			only = args[0]
		}
		return formatFields(os.Stdout, types, only)
	},
}

func init() {
	rootCmd.AddCommand(fieldsCmd)
}

func formatFields(out io.Writer, types *attr.Registry, only string) error {
	var selected []*attr.Type
	if only != "" {
		t, ok := types.Type(only)
		if !ok {
			return eris.Errorf("unknown type %q", only)
		}
		selected = []*attr.Type{t}
	} else {
		selected = types.Types()
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TYPE\tFIELD\tUNIT\tSOURCES\tDEFAULT")
	_, _ = fmt.Fprintln(w, "----\t-----\t----\t-------\t-------")
	for _, t := range selected {
		for _, d := range t.Fields() {
			sources := make([]string, 0, len(d.Sources()))
			for _, s := range d.Sources() {
				sources = append(sources, string(s))
			}
			def := ""
			if d.Default() != nil {
				def = fmt.Sprint(d.Default())
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				t.Name(),
				d.Name(),
				d.Unit().Symbol,
				strings.Join(sources, ">"),
				def,
			)
		}
	}
	return w.Flush()
}
