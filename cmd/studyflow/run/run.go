package runcmder

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/studyflow/cmd/studyflow/output"
	"github.com/papercomputeco/studyflow/cmd/studyflow/setup"
	"github.com/papercomputeco/studyflow/pkg/flows"
	"github.com/papercomputeco/studyflow/pkg/media"
)

const runLongDesc string = `Run a single flow against the configured model.

The flow input is built from --input (a JSON object, or @file to read one),
then --set key=value pairs, then --media key=path pairs that encode a file
as a data URI. Values given to --set are parsed as JSON when they can be and
kept as strings otherwise.

Examples:
  studyflow run generateFlashcards --set text="Mitochondria make ATP."
  studyflow run generateMcqs --media documentMediaRef=notes.pdf --set numberOfQuestions=3
  studyflow run generateFlashcardsFromDocument --media documentMediaRef=notes.pdf --export cards.txt
  studyflow run cartoonifyImage --media imageMediaRef=me.jpg --save-media ./out
  studyflow run chatbot --input @question.json --format yaml`

const runShortDesc string = "Run a flow once"

type runCommander struct {
	globals   *setup.Globals
	input     string
	sets      []string
	medias    []string
	format    string
	export    string
	saveMedia string
}

func NewRunCmd(globals *setup.Globals) *cobra.Command {
	cmder := &runCommander{globals: globals}

	cmd := &cobra.Command{
		Use:   "run <flow>",
		Short: runShortDesc,
		Long:  runLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&cmder.input, "input", "i", "", "Flow input as a JSON object, or @path to a JSON file")
	cmd.Flags().StringArrayVarP(&cmder.sets, "set", "s", nil, "Input field as key=value (repeatable)")
	cmd.Flags().StringArrayVarP(&cmder.medias, "media", "m", nil, "Media input field as key=path (repeatable)")
	cmd.Flags().StringVarP(&cmder.format, "format", "f", output.Text, "Output format: text, json or yaml")
	cmd.Flags().StringVar(&cmder.export, "export", "", "Write flashcards in the plain text export format to this file")
	cmd.Flags().StringVar(&cmder.saveMedia, "save-media", "", "Directory to write media outputs to")

	return cmd
}

func (c *runCommander) run(cmd *cobra.Command, name string) error {
	if err := output.Check(c.format); err != nil {
		return err
	}

	cfg, err := c.globals.Load()
	if err != nil {
		return err
	}

	logger := c.globals.Logger(cmd, cfg)
	defer logger.Sync()

	svc, err := setup.Service(cfg, logger)
	if err != nil {
		return err
	}

	def, ok := svc.Catalog().Get(name)
	if !ok {
		return fmt.Errorf("unknown flow %q (available: %s)", name, strings.Join(svc.Catalog().Names(), ", "))
	}

	in, err := c.buildInput()
	if err != nil {
		return err
	}

	res, err := svc.Executor().Run(cmd.Context(), def, in)
	if err != nil {
		return err
	}

	if c.export != "" {
		if err := exportFlashcards(c.export, res.Output); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote flashcards to %s\n", c.export)
	}

	if c.saveMedia != "" {
		paths, err := saveMedia(c.saveMedia, res.RunID, res.Output)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", p)
		}
	}

	return output.Write(cmd.OutOrStdout(), c.format, res.Output)
}

func (c *runCommander) buildInput() (map[string]any, error) {
	in := map[string]any{}

	if c.input != "" {
		raw := []byte(c.input)
		if path, ok := strings.CutPrefix(c.input, "@"); ok {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("could not read input file: %w", err)
			}
			raw = data
		}
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("--input must be a JSON object: %w", err)
		}
	}

	for _, kv := range c.sets {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("--set %q: expected key=value", kv)
		}
		var parsed any
		if err := json.Unmarshal([]byte(val), &parsed); err == nil {
			in[key] = parsed
		} else {
			in[key] = val
		}
	}

	for _, kv := range c.medias {
		key, path, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("--media %q: expected key=path", kv)
		}
		ref, err := media.EncodeFile(path, "")
		if err != nil {
			return nil, fmt.Errorf("--media %s: %w", key, err)
		}
		in[key] = ref.String()
	}

	return in, nil
}

func exportFlashcards(path string, out map[string]any) error {
	raw, err := json.Marshal(out)
	if err != nil {
		return err
	}

	var cards flows.Flashcards
	if err := json.Unmarshal(raw, &cards); err != nil || cards.Flashcards == nil {
		return fmt.Errorf("--export: the flow did not return flashcards")
	}

	return os.WriteFile(path, []byte(flows.ExportFlashcards(cards.Flashcards)), 0o644)
}

// saveMedia writes every top-level media output to dir as
// <run id>-<field><ext>.
func saveMedia(dir, runID string, out map[string]any) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var paths []string
	for field, v := range out {
		ref, ok := v.(media.Reference)
		if !ok {
			continue
		}

		ext := ".bin"
		if exts, _ := mime.ExtensionsByType(ref.MediaType()); len(exts) > 0 {
			ext = exts[0]
		}

		path := filepath.Join(dir, runID+"-"+field+ext)
		if err := os.WriteFile(path, ref.Data(), 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}

	return paths, nil
}
