package flowscmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/studyflow/cmd/studyflow/output"
	"github.com/papercomputeco/studyflow/pkg/flow"
	"github.com/papercomputeco/studyflow/pkg/flows"
	"github.com/papercomputeco/studyflow/pkg/tool/search"
	"github.com/papercomputeco/studyflow/server"
)

const flowsLongDesc string = `List the available flows, or describe one.

The text format lists names, descriptions and input fields. The json and
yaml formats include the full input and output JSON Schemas.

Examples:
  studyflow flows
  studyflow flows generateMcqs --format yaml`

const flowsShortDesc string = "List and describe flows"

type flowsCommander struct {
	format string
}

func NewFlowsCmd() *cobra.Command {
	cmder := &flowsCommander{}

	cmd := &cobra.Command{
		Use:   "flows [name]",
		Short: flowsShortDesc,
		Long:  flowsLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args)
		},
	}

	cmd.Flags().StringVarP(&cmder.format, "format", "f", output.Text, "Output format: text, json or yaml")

	return cmd
}

func (c *flowsCommander) run(cmd *cobra.Command, args []string) error {
	if err := output.Check(c.format); err != nil {
		return err
	}

	// listing needs no model or search backend
	catalog, err := flows.NewCatalog(search.NewCanned(nil, ""))
	if err != nil {
		return err
	}

	defs := catalog.All()
	if len(args) == 1 {
		def, ok := catalog.Get(args[0])
		if !ok {
			return fmt.Errorf("unknown flow %q (available: %s)", args[0], strings.Join(catalog.Names(), ", "))
		}
		defs = []*flow.Definition{def}
	}

	infos := make([]server.FlowInfo, len(defs))
	for i, def := range defs {
		infos[i] = server.Describe(def)
	}

	if c.format != output.Text {
		if len(args) == 1 {
			return output.Write(cmd.OutOrStdout(), c.format, infos[0])
		}
		return output.Write(cmd.OutOrStdout(), c.format, infos)
	}

	w := cmd.OutOrStdout()
	width := output.Width(w) - 2
	for i, info := range infos {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, info.Name)
		for _, line := range strings.Split(output.Wrap(info.Description, width), "\n") {
			fmt.Fprintln(w, "  "+line)
		}

		fields := make([]string, 0, len(info.InputSchema.Properties))
		for _, f := range defs[i].InputSchema().Fields {
			fields = append(fields, f.Name)
		}
		fmt.Fprintf(w, "  input: %s\n", strings.Join(fields, ", "))
		if len(info.Tools) > 0 {
			fmt.Fprintf(w, "  tools: %s\n", strings.Join(info.Tools, ", "))
		}
		if info.MediaOutput != "" {
			fmt.Fprintf(w, "  media output: %s\n", info.MediaOutput)
		}
	}

	return nil
}
