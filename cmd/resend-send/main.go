// Package main is the entry point for the resend-send command. It loads a
// message from a YAML description or an .eml file, normalizes it and hands
// it to the configured delivery provider.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shineum/resend-lite/internal/config"
	"github.com/shineum/resend-lite/internal/emlimport"
	"github.com/shineum/resend-lite/internal/msgfile"
	"github.com/shineum/resend-lite/internal/provider"
	"github.com/shineum/resend-lite/internal/provider/resendapi"
	"github.com/shineum/resend-lite/internal/provider/ses"
	"github.com/shineum/resend-lite/internal/provider/stdout"
	clienttls "github.com/shineum/resend-lite/internal/tls"
	"github.com/shineum/resend-lite/resend"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	messagePath := flag.String("message", "", "path to YAML message file")
	emlPath := flag.String("eml", "", "path to RFC 5322 .eml file")
	dryRun := flag.Bool("dry-run", false, "print the normalized message instead of sending it")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Logs go to stderr so stdout only carries the response
	setupLogger(os.Stderr, cfg.Logging.Level)

	if *dryRun {
		cfg.Provider = config.ProviderStdout
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg, *messagePath, *emlPath, os.Stdout); err != nil {
		slog.Error("send failed", "error", err)
		os.Exit(1)
	}
}

// run loads the message, normalizes it, delivers it through the selected
// provider and writes the response JSON to out. A response carrying a remote
// error is written and then returned as an error.
func run(ctx context.Context, cfg *config.Config, messagePath, emlPath string, out io.Writer) error {
	req, release, err := loadRequest(messagePath, emlPath)
	if err != nil {
		return err
	}
	defer release()

	if req.From == "" {
		req.From = cfg.Message.DefaultFrom
	}

	prov, err := selectProvider(ctx, cfg, out)
	if err != nil {
		return err
	}

	payload, err := resend.Normalize(ctx, req, nil)
	if err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}

	resp, err := prov.Send(ctx, payload)
	if err != nil {
		return fmt.Errorf("%s: %w", prov.Name(), err)
	}

	slog.Info("message submitted",
		"provider", prov.Name(),
		"id", resp.ID,
		"to", len(payload.To),
		"attachments", len(payload.Attachments),
	)

	if err := writeResponse(out, resp); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return resp.Err()
}

// loadRequest reads the message from exactly one of messagePath and emlPath.
// The returned release func closes any attachment files the message opened.
func loadRequest(messagePath, emlPath string) (*resend.SendEmailRequest, func(), error) {
	switch {
	case messagePath != "" && emlPath != "":
		return nil, nil, errors.New("-message and -eml cannot be combined")

	case messagePath != "":
		msg, err := msgfile.Load(messagePath)
		if err != nil {
			return nil, nil, err
		}
		return msg.Request, func() {
			if err := msg.Close(); err != nil {
				slog.Warn("failed to close attachment files", "error", err)
			}
		}, nil

	case emlPath != "":
		raw, err := os.ReadFile(emlPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read eml file: %w", err)
		}
		req, err := emlimport.Parse(raw)
		if err != nil {
			return nil, nil, err
		}
		return req, func() {}, nil

	default:
		return nil, nil, errors.New("one of -message or -eml is required")
	}
}

// writeResponse writes the body the API returned, or the response itself
// for providers that do not produce one.
func writeResponse(w io.Writer, resp *resend.SendEmailResponse) error {
	if len(resp.Raw) > 0 {
		_, err := fmt.Fprintf(w, "%s\n", resp.Raw)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(w io.Writer, level string) {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// selectProvider chooses the delivery backend based on configuration. An
// empty provider setting resolves to resend when an API key is configured
// and to stdout otherwise. The stdout provider writes to out.
func selectProvider(ctx context.Context, cfg *config.Config, out io.Writer) (provider.Provider, error) {
	switch name := cfg.SelectedProvider(); name {
	case config.ProviderResend:
		if !cfg.ResendConfigured() {
			return nil, errors.New("resend provider selected but RESEND_API_KEY is not set")
		}
		hc, err := httpClient(cfg)
		if err != nil {
			return nil, err
		}
		slog.Info("using Resend API provider",
			"base_url", cfg.Resend.BaseURL,
			"tls", cfg.TLSConfigured(),
		)
		opts := []resend.Option{
			resend.WithHTTPClient(hc),
			resend.WithLogger(slog.Default()),
		}
		if cfg.Resend.BaseURL != "" {
			opts = append(opts, resend.WithBaseURL(cfg.Resend.BaseURL))
		}
		return resendapi.New(resend.New(cfg.Resend.APIKey, opts...)), nil

	case config.ProviderSES:
		if !cfg.SESConfigured() {
			return nil, errors.New("ses provider selected but SES_REGION is not set")
		}
		slog.Info("using AWS SES provider",
			"region", cfg.SES.Region,
			"configuration_set", cfg.SES.ConfigurationSet,
		)
		p, err := ses.New(ctx, ses.Config{
			Region:           cfg.SES.Region,
			AccessKeyID:      cfg.SES.AccessKeyID,
			SecretAccessKey:  cfg.SES.SecretAccessKey,
			ConfigurationSet: cfg.SES.ConfigurationSet,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SES provider: %w", err)
		}
		return p, nil

	case config.ProviderStdout:
		slog.Info("using stdout provider")
		return stdout.NewWithWriter(out), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// httpClient builds the HTTP client for the API connection: the configured
// timeout plus the client TLS settings when any are given.
func httpClient(cfg *config.Config) (*http.Client, error) {
	hc := &http.Client{Timeout: cfg.Resend.Timeout}

	tlsConfig, err := clienttls.LoadClientTLS(cfg.TLS.CAFile, cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to setup TLS: %w", err)
	}
	if tlsConfig != nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsConfig
		hc.Transport = transport
	}

	return hc, nil
}
