package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/epithet-ssh/formdecode/pkg/urlencoded"
)

// DecodeCLI decodes a single form from the command line, a file, or stdin.
type DecodeCLI struct {
	Input        string `arg:"" optional:"" help:"Encoded form. Read from --file or stdin when omitted."`
	File         string `help:"Read the encoded form from a file" short:"f" type:"existingfile"`
	LowercaseHex bool   `help:"Accept lowercase hex digits in %XY escapes"`
	MaxLength    int    `help:"Reject input longer than this many bytes (0 means no limit)" default:"0"`

	Output `embed:""`
}

func (d *DecodeCLI) Run(logger *slog.Logger) error {
	return d.run(logger, os.Stdin, os.Stdout)
}

func (d *DecodeCLI) run(logger *slog.Logger, stdin io.Reader, stdout io.Writer) error {
	data, err := d.input(stdin)
	if err != nil {
		return err
	}
	logger.Debug("decoding", "bytes", len(data))

	form, err := urlencoded.Decode(data, d.options()...)
	if err != nil {
		return fmt.Errorf("%s: %w", urlencoded.Code(err), err)
	}

	return d.write(stdout, form)
}

func (d *DecodeCLI) input(stdin io.Reader) ([]byte, error) {
	switch {
	case d.Input != "" && d.File != "":
		return nil, fmt.Errorf("give either an INPUT argument or --file, not both")
	case d.Input != "":
		return []byte(d.Input), nil
	case d.File != "":
		data, err := os.ReadFile(d.File)
		if err != nil {
			return nil, fmt.Errorf("unable to read input: %w", err)
		}
		return trimNewline(data), nil
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("unable to read stdin: %w", err)
		}
		return trimNewline(data), nil
	}
}

func (d *DecodeCLI) options() []urlencoded.Option {
	var opts []urlencoded.Option
	if d.LowercaseHex {
		opts = append(opts, urlencoded.LowercaseHex())
	}
	if d.MaxLength > 0 {
		opts = append(opts, urlencoded.MaxLength(d.MaxLength))
	}
	return opts
}

// trimNewline drops one trailing "\n" or "\r\n", as left by echo or an editor.
func trimNewline(data []byte) []byte {
	data = bytes.TrimSuffix(data, []byte("\n"))
	return bytes.TrimSuffix(data, []byte("\r"))
}
