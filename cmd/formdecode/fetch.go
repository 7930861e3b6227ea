package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/epithet-ssh/formdecode/pkg/formclient"
	"github.com/epithet-ssh/formdecode/pkg/tlsconfig"
	"github.com/epithet-ssh/formdecode/pkg/urlencoded"
)

// FetchCLI fetches a URL, such as an OAuth token endpoint, and decodes its
// form-urlencoded response body.
type FetchCLI struct {
	URL            string        `arg:"" help:"URL to fetch"`
	Timeout        time.Duration `help:"Request timeout" default:"30s"`
	BodyLimit      int           `help:"Maximum response body size in bytes" default:"1048576"`
	AnyContentType bool          `help:"Decode the body whatever Content-Type the server sends"`
	LowercaseHex   bool          `help:"Accept lowercase hex digits in %XY escapes"`

	Output `embed:""`
}

func (f *FetchCLI) Run(logger *slog.Logger, tlsCfg tlsconfig.Config) error {
	return f.run(context.Background(), logger, tlsCfg, os.Stdout)
}

func (f *FetchCLI) run(ctx context.Context, logger *slog.Logger, tlsCfg tlsconfig.Config, stdout io.Writer) error {
	// Plain http:// requires --insecure.
	if err := tlsCfg.ValidateURL(f.URL); err != nil {
		return err
	}

	httpClient, err := tlsconfig.NewHTTPClientWithTimeout(tlsCfg, f.Timeout)
	if err != nil {
		return fmt.Errorf("failed to create HTTP client: %w", err)
	}

	opts := []formclient.Option{
		formclient.WithHTTPClient(httpClient),
		formclient.WithBodyLimit(f.BodyLimit),
	}
	if f.AnyContentType {
		opts = append(opts, formclient.WithAnyContentType())
	}
	if f.LowercaseHex {
		opts = append(opts, formclient.WithDecodeOptions(urlencoded.LowercaseHex()))
	}

	logger.Info("fetching", "url", f.URL)
	form, err := formclient.New(opts...).Fetch(ctx, f.URL)
	if err != nil {
		return err
	}
	logger.Debug("fetched", "url", f.URL, "keys", len(form))

	return f.write(stdout, form)
}
