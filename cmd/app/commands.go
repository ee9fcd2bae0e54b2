package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yanqian/daily-advisor/internal/domain/advice"
	"github.com/yanqian/daily-advisor/pkg/util"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "advisor",
		Short: "Daily health advisory service",
		Long: `advisor serves personalized daily health advice generated from health
measurements, profile data and local environmental conditions.

Running it without a subcommand starts the HTTP server.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newSlotCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := initializeApp()
	if err != nil {
		return fmt.Errorf("failed to wire application: %w", err)
	}
	defer cleanup()

	if err := app.Run(ctx); err != nil {
		return fmt.Errorf("application stopped with error: %w", err)
	}
	return nil
}

func newGenerateCmd() *cobra.Command {
	var requestPath string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Produce one advisory for a request bundle and print it as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := readRequest(requestPath, cmd.InOrStdin())
			if err != nil {
				return err
			}

			svc, cleanup, err := initializeAdviceService()
			if err != nil {
				return fmt.Errorf("failed to wire advice service: %w", err)
			}
			defer cleanup()

			res, err := svc.GetAdvice(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&requestPath, "request", "-", "Path to the request bundle JSON (- reads stdin)")
	return cmd
}

func newSlotCmd() *cobra.Command {
	var (
		at       string
		timezone string
	)

	cmd := &cobra.Command{
		Use:   "slot",
		Short: "Print the day slot for a moment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			slot, moment, err := resolveSlot(at, timezone, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", slot, moment.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "RFC3339 timestamp (default: now)")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA timezone (default: local)")
	return cmd
}

func resolveSlot(at, timezone string, now time.Time) (advice.DaySlot, time.Time, error) {
	loc, err := util.LoadLocation(timezone, time.Local)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	moment := now
	if at != "" {
		moment, err = time.Parse(time.RFC3339, at)
		if err != nil {
			return "", time.Time{}, fmt.Errorf("invalid --at value: %w", err)
		}
	}
	moment = moment.In(loc)
	return advice.Classify(moment), moment, nil
}

func readRequest(path string, stdin io.Reader) (advice.Request, error) {
	var (
		raw []byte
		err error
	)
	if path == "" || path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return advice.Request{}, fmt.Errorf("read request bundle: %w", err)
	}

	var req advice.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return advice.Request{}, fmt.Errorf("decode request bundle: %w", err)
	}
	return req, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

