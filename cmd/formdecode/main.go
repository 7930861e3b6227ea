package main

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/epithet-ssh/formdecode/pkg/config"
	"github.com/epithet-ssh/formdecode/pkg/tlsconfig"
	"github.com/lmittmann/tint"
)

var version = "dev"

// CLI is the formdecode command line.
type CLI struct {
	Version   kong.VersionFlag `help:"Show version and exit"`
	Verbose   int              `short:"v" type:"counter" help:"Increase log verbosity (-v info, -vv debug)"`
	LogFormat string           `help:"Log output format" enum:"text,json" default:"text" env:"FORMDECODE_LOG_FORMAT"`
	Config    kong.ConfigFlag  `help:"Path to a YAML, JSON, or CUE config file" short:"c"`
	Insecure  bool             `help:"Allow plain http:// URLs"`
	TLSCACert string           `name:"cacert" help:"PEM file with extra CA certificates to trust" type:"path"`

	Decode DecodeCLI `cmd:"decode" help:"Decode a form-urlencoded string"`
	Serve  ServeCLI  `cmd:"serve" help:"Run the HTTP decoding service"`
	Lambda LambdaCLI `cmd:"lambda" help:"Run the decoding service as an AWS Lambda function"`
	Fetch  FetchCLI  `cmd:"fetch" help:"Fetch a URL and decode its form-urlencoded response"`
}

var cli CLI

func main() {
	ctx := kong.Parse(&cli, kongOptions()...)

	logger := newLogger(os.Stderr, cli.Verbose, cli.LogFormat)
	tlsCfg := tlsconfig.Config{
		Insecure:   cli.Insecure,
		CACertFile: cli.TLSCACert,
	}

	err := ctx.Run(logger, tlsCfg)
	ctx.FatalIfErrorf(err)
}

func kongOptions() []kong.Option {
	return []kong.Option{
		kong.Name("formdecode"),
		kong.Description("Decode application/x-www-form-urlencoded data."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.Configuration(config.KongLoader, "/etc/formdecode/config.yaml", "~/.config/formdecode/config.yaml"),
	}
}

// newLogger builds the process logger. Verbosity 0 logs warnings and
// errors, 1 adds info, 2 and up adds debug.
func newLogger(w io.Writer, verbose int, format string) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbose == 1:
		level = slog.LevelInfo
	case verbose >= 2:
		level = slog.LevelDebug
	}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    !isTerminal(w),
	}))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
