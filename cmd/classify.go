package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	infracontext "github.com/Siriusbar/SlopedIn/infrastructure/context"
	"github.com/Siriusbar/SlopedIn/internal/bootstrap"
	"github.com/Siriusbar/SlopedIn/internal/domain"
	"github.com/Siriusbar/SlopedIn/internal/relay"
	"github.com/Siriusbar/SlopedIn/internal/telemetry"
)

const (
	outputText = "text"
	outputJSON = "json"
)

var errEmptyText = errors.New("no text to classify")

func newClassifyCommand(opts *rootOptions) *cobra.Command {
	var (
		timeout time.Duration
		output  string
	)

	cmd := &cobra.Command{
		Use:   "classify [text]",
		Short: "Classify a single text",
		Long: `Classify sends one text through the relay and prints the label. With no
argument, or "-", the text is read from standard input.`,
		Example: `  slopedin classify "I'm thrilled to announce..."
  pbpaste | slopedin classify --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			r := bootstrap.NewRelay(cfg, logger, telemetry.NewProvider(cfg.Service.Name), nil)
			defer func() { _ = r.Close() }()

			ctx, cancel := infracontext.WithCommandTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := r.Send(ctx, text)
			if err != nil {
				return fmt.Errorf("classify: %w", err)
			}
			return printResult(cmd.OutOrStdout(), output, text, result)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", infracontext.DefaultCommandTimeout,
		"give up after this long, including model loading")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text or json")
	return cmd
}

func readText(stdin io.Reader, args []string) (string, error) {
	var text string
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	} else {
		text = strings.Join(args, " ")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errEmptyText
	}
	return text, nil
}

func printResult(w io.Writer, format, text string, result domain.ClassificationResult) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(relay.ResultResponse("", result))
	case outputText:
		a := domain.Annotation{Result: result, TextLength: utf8.RuneCountInString(text)}
		_, err := fmt.Fprintf(w, "%s\n%s\n", a.BadgeText(), a.BadgeTitle())
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
