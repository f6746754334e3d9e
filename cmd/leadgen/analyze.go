package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/liliang-cn/leadgen/internal/domain"
	"github.com/liliang-cn/leadgen/internal/validate"
)

var urlCmd = &cobra.Command{
	Use:   "url <company-url>",
	Short: "Analyze a company website",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		state, err := a.analysis.AnalyzeURL(ctx, args[0])
		if err != nil {
			return err
		}
		return printState(cmd.OutOrStdout(), state)
	},
}

var pdfCmd = &cobra.Command{
	Use:   "pdf <file>",
	Short: "Analyze a PDF document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := validate.OpenFile(args[0])
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		state, err := a.analysis.AnalyzeDocument(ctx, file)
		if err != nil {
			return err
		}
		return printState(cmd.OutOrStdout(), state)
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Print this installation's session id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		fmt.Fprintln(cmd.OutOrStdout(), a.analysis.SessionID(ctx))
		return nil
	},
}

// failedError carries a failed analysis out of RunE after it was printed
type failedError struct {
	info *domain.ErrorInfo
}

func (e *failedError) Error() string {
	return e.info.Message
}

func printState(w io.Writer, state domain.State) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(state); err != nil {
			return err
		}
	} else {
		renderState(w, state)
	}

	if state.Phase == domain.PhaseFailed && state.Error != nil {
		return &failedError{info: state.Error}
	}
	return nil
}
