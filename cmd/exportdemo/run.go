package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	client "github.com/relativitydev/exportclient"
	"github.com/relativitydev/exportclient/transcript"
)

// runOptions holds the flags of the run command.
type runOptions struct {
	endpoint      string
	username      string
	password      string
	token         string
	workspace     int
	artifactType  int
	fields        []string
	condition     string
	maxChars      int
	blockSize     int
	streamWorkers int
	encoding      string
	format        string
	profile       string
	timeout       time.Duration
	rateLimit     float64
	logLevel      string
	logFile       string
	metricsAddr   string
}

// RunCommand creates the run command.
func RunCommand() *cobra.Command {
	return newRunCommand(&runOptions{})
}

func newRunCommand(opts *runOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an export and print its transcript",
		Example: `  exportdemo run --endpoint https://relativity.mycompany.com \
    --username me@mycompany.com --workspace 1234567 \
    --field "Control Number" --field "Extracted Text" --block-size 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.password == "" {
				opts.password = os.Getenv("EXPORT_PASSWORD")
			}
			if opts.token == "" {
				opts.token = os.Getenv("EXPORT_TOKEN")
			}
			return runExport(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.endpoint, "endpoint", "", "platform base URL")
	flags.StringVar(&opts.username, "username", "", "username for basic authentication")
	flags.StringVar(&opts.password, "password", "", "password (defaults to $EXPORT_PASSWORD)")
	flags.StringVar(&opts.token, "token", "", "bearer token (defaults to $EXPORT_TOKEN)")
	flags.IntVar(&opts.workspace, "workspace", 0, "workspace artifact ID")
	flags.IntVar(&opts.artifactType, "artifact-type", client.ArtifactTypeDocument, "artifact type ID of the exported objects")
	flags.StringArrayVar(&opts.fields, "field", nil, "field to export (repeatable, output order)")
	flags.StringVar(&opts.condition, "condition", "", "query condition")
	flags.IntVar(&opts.maxChars, "max-chars", 1024, "inline limit for long-text values")
	flags.IntVar(&opts.blockSize, "block-size", 0, "rows per block (required)")
	flags.IntVar(&opts.streamWorkers, "stream-workers", 1, "concurrent long-text streams per block")
	flags.StringVar(&opts.encoding, "encoding", string(client.EncodingUTF16LE), "long-text stream encoding (utf-16le, utf-8)")
	flags.StringVar(&opts.format, "format", string(transcript.FormatText), "output format (text, jsonl)")
	flags.StringVar(&opts.profile, "config", "", "export profile (YAML or JSON)")
	flags.DurationVar(&opts.timeout, "timeout", 0, "overall export timeout (0 = none)")
	flags.Float64Var(&opts.rateLimit, "rate-limit", 0, "maximum requests per second (0 = unlimited)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	flags.StringVar(&opts.logFile, "log-file", "", "write logs to a rotated file instead of stderr")
	flags.StringVar(&opts.metricsAddr, "metrics", "", "serve Prometheus metrics on this address while running")

	return cmd
}

// resolveProfile merges the profile file, if any, with explicit flags.
// Flags win over the file.
func resolveProfile(cmd *cobra.Command, opts *runOptions) (*client.ExportProfile, error) {
	profile := client.DefaultExportProfile()
	if opts.profile != "" {
		loaded, err := client.NewProfileLoader([]string{"."}).LoadFromFile(opts.profile)
		if err != nil {
			return nil, err
		}
		profile = loaded
	}

	flags := cmd.Flags()
	set := func(name string) bool { return opts.profile == "" || flags.Changed(name) }

	if set("endpoint") {
		profile.Connection.Endpoint = opts.endpoint
	}
	if set("workspace") {
		profile.Connection.WorkspaceID = opts.workspace
	}
	if opts.username != "" {
		profile.Connection.Username = opts.username
	}
	if opts.password != "" {
		profile.Connection.Password = opts.password
	}
	if opts.token != "" {
		profile.Connection.Token = opts.token
	}
	if set("rate-limit") {
		profile.Connection.RateLimit = opts.rateLimit
	}
	if set("artifact-type") {
		profile.Query.ObjectType.ArtifactTypeID = opts.artifactType
	}
	if set("field") {
		profile.Query.Fields = make([]client.FieldRef, len(opts.fields))
		for i, name := range opts.fields {
			profile.Query.Fields[i] = client.FieldRef{Name: name}
		}
	}
	if set("condition") {
		profile.Query.Condition = opts.condition
	}
	if set("max-chars") {
		profile.Query.MaxCharactersForLongTextValues = opts.maxChars
	}
	if set("block-size") {
		profile.Processing.BlockSize = opts.blockSize
	}
	if set("stream-workers") {
		profile.Processing.StreamWorkers = opts.streamWorkers
	}
	if set("encoding") {
		profile.Processing.Encoding = opts.encoding
	}
	if set("format") {
		profile.Output = opts.format
	}
	if set("timeout") {
		profile.Timeouts.Overall = client.Duration(opts.timeout)
	}

	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return profile, nil
}

func runExport(cmd *cobra.Command, opts *runOptions) error {
	logger, closer, err := newLogger(opts.logLevel, opts.logFile, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	defer closer.Close()

	profile, err := resolveProfile(cmd, opts)
	if err != nil {
		return err
	}

	config := client.DefaultConfig()
	profile.Apply(config)
	config.Logger = logger
	config.EnableMetrics = opts.metricsAddr != ""
	if config.Credentials == nil {
		return errors.New("credentials required: set --username/--password or --token")
	}

	c, err := client.New(config)
	if err != nil {
		return err
	}
	defer c.Close()

	if opts.metricsAddr != "" {
		srv := &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           promhttp.HandlerFor(c.MetricsRegistry(), promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Warn("metrics server stopped")
			}
		}()
		defer srv.Close()
	}

	session, err := c.NewSession(profile.SessionOptions())
	if err != nil {
		return err
	}

	emitter, err := transcript.New(profile.Output, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if profile.Timeouts.Overall > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(profile.Timeouts.Overall))
		defer cancel()
	}

	summary, err := session.Run(ctx, emitter)
	logger.WithFields(logrus.Fields{
		"run_id":          summary.RunID,
		"expected":        summary.ExpectedRecords,
		"blocks":          summary.Blocks,
		"rows":            summary.Rows,
		"streamed_values": summary.StreamedValues,
		"duration":        summary.Duration(),
	}).Info("export finished")

	return err
}
