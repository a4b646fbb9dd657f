package mediacmder

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/studyflow/pkg/media"
)

const encodeLongDesc string = `Encode a file as a media reference (a base64 data URI).

The MIME type is taken from the file extension unless --mime is given. The
reference can be passed as any media field of a flow input.

Examples:
  studyflow encode notes.pdf
  studyflow encode recording --mime audio/webm > recording.ref`

const encodeShortDesc string = "Encode a file as a media reference"

const decodeLongDesc string = `Decode a media reference back into its bytes.

The reference is read from the argument, from a file when the argument
starts with @, or from stdin when it is -. The bytes go to --out, or to
stdout. The MIME type is reported on stderr.

Examples:
  studyflow decode @cartoon.ref --out cartoon.png
  studyflow run cartoonifyImage --media imageMediaRef=me.jpg --format json | jq -r .cartoonMediaRef | studyflow decode - --out cartoon.png`

const decodeShortDesc string = "Decode a media reference into a file"

type encodeCommander struct {
	mimeType string
}

type decodeCommander struct {
	out string
}

func NewEncodeCmd() *cobra.Command {
	cmder := &encodeCommander{}

	cmd := &cobra.Command{
		Use:   "encode <file>",
		Short: encodeShortDesc,
		Long:  encodeLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := media.EncodeFile(args[0], cmder.mimeType)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ref.String())
			return err
		},
	}

	cmd.Flags().StringVar(&cmder.mimeType, "mime", "", "MIME type (default: from the file extension)")

	return cmd
}

func NewDecodeCmd() *cobra.Command {
	cmder := &decodeCommander{}

	cmd := &cobra.Command{
		Use:   "decode <reference|@file|->",
		Short: decodeShortDesc,
		Long:  decodeLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&cmder.out, "out", "o", "", "File to write the decoded bytes to (default: stdout)")

	return cmd
}

func (c *decodeCommander) run(cmd *cobra.Command, arg string) error {
	raw, err := readReference(cmd.InOrStdin(), arg)
	if err != nil {
		return err
	}

	data, mimeType, err := media.Decode(raw)
	if err != nil {
		return err
	}

	if c.out == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	if err := os.WriteFile(c.out, data, 0o644); err != nil {
		return fmt.Errorf("could not write %s: %w", c.out, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d bytes of %s to %s\n", len(data), mimeType, c.out)

	return nil
}

func readReference(stdin io.Reader, arg string) (string, error) {
	switch {
	case arg == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("could not read stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil

	case strings.HasPrefix(arg, "@"):
		data, err := os.ReadFile(arg[1:])
		if err != nil {
			return "", fmt.Errorf("could not read reference file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil

	default:
		return arg, nil
	}
}
