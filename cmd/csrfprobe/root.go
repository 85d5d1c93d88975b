package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AmmannChristian/go-csrfx/config"
	"github.com/AmmannChristian/go-csrfx/csrfclient"
	"github.com/AmmannChristian/go-csrfx/httpclient"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 30 * time.Second
	maxPrintedBody = 64 << 10
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
)

// probe carries the dependencies of the commands. transport replaces the network in tests.
type probe struct {
	v         *viper.Viper
	transport http.RoundTripper
	logger    *zap.Logger
}

func newRootCmd(p *probe) *cobra.Command {
	p.v = config.New()
	var noColor bool

	root := &cobra.Command{
		Use:   "csrfprobe",
		Short: "Exercise the CSRF token flow of an API",
		Long: `csrfprobe fetches a CSRF token from an API and sends state-changing requests with it,
retrying once with a fresh token when the server rejects the token.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if noColor {
				color.NoColor = true
			}
			return p.initLogger()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if p.logger != nil {
				_ = p.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.String("origin", "", "API origin, e.g. https://app.example.com")
	flags.String("token-path", csrfclient.DefaultTokenPath, "Token endpoint path")
	flags.String("header", csrfclient.DefaultHeaderName, "Header carrying the token")
	flags.Int("max-retries", csrfclient.DefaultMaxRetries, "CSRF retries per token generation")
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("config", "", "Config file path")
	flags.BoolVar(&noColor, "no-color", false, "Disable colored output")

	for key, flag := range map[string]string{
		config.KeyOrigin:     "origin",
		config.KeyTokenPath:  "token-path",
		config.KeyHeaderName: "header",
		config.KeyMaxRetries: "max-retries",
		config.KeyDebug:      "debug",
		config.KeyConfigFile: "config",
	} {
		_ = p.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(newTokenCmd(p))
	root.AddCommand(newSendCmd(p))
	return root
}

func (p *probe) initLogger() error {
	if p.logger != nil {
		return nil
	}

	var (
		logger *zap.Logger
		err    error
	)
	if p.v.GetBool(config.KeyDebug) {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	p.logger = logger
	return nil
}

func (p *probe) manager() (*csrfclient.Manager, error) {
	cfg, err := config.FromViper(p.v)
	if err != nil {
		return nil, err
	}

	opts := []csrfclient.Option{csrfclient.WithZapLogger(p.logger)}
	if p.transport != nil {
		opts = append(opts, csrfclient.WithHTTPClient(&http.Client{Transport: p.transport, Timeout: defaultTimeout}))
	}
	return csrfclient.New(cfg, opts...)
}

func newTokenCmd(p *probe) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Fetch a token and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tm, err := p.manager()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			token, ok := tm.Acquire(ctx, false)
			if !ok {
				errorColor.Fprintf(cmd.ErrOrStderr(), "no token from %s\n", tm.TokenURL())
				return errors.New("token fetch failed")
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func newSendCmd(p *probe) *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "send METHOD PATH",
		Short: "Send a request with CSRF protection and print the response",
		Example: `  csrfprobe send POST /api/v1/jobs --data '{"name":"nightly"}'
  csrfprobe send DELETE /api/v1/jobs/42`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tm, err := p.manager()
			if err != nil {
				return err
			}

			client, err := httpclient.NewBuilder().
				WithTokenManager(tm).
				WithBaseTransport(p.transport).
				WithTimeout(defaultTimeout).
				Build()
			if err != nil {
				return err
			}

			method := strings.ToUpper(args[0])
			target := strings.TrimRight(tm.Config().Origin, "/") + "/" + strings.TrimLeft(args[1], "/")

			var body io.Reader
			if data != "" {
				body = strings.NewReader(data)
			}

			req, err := http.NewRequestWithContext(cmd.Context(), method, target, body)
			if err != nil {
				return fmt.Errorf("build request: %w", err)
			}
			if data != "" {
				req.Header.Set("Content-Type", "application/json")
			}

			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("send request: %w", err)
			}
			defer resp.Body.Close()

			out := cmd.OutOrStdout()
			status := successColor
			if resp.StatusCode >= http.StatusBadRequest {
				status = errorColor
			}
			status.Fprintf(out, "%d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
			if code, ok := csrfclient.CSRFFailureCode(resp); ok {
				infoColor.Fprintf(out, "CSRF rejection: %s\n", code)
			}

			respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxPrintedBody))
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			fmt.Fprintln(out, string(respBody))
			return nil
		},
	}

	cmd.Flags().StringVar(&data, "data", "", "Request body")
	return cmd
}
