package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/colorsignal/session-controller/internal/history"
	"github.com/colorsignal/session-controller/internal/orchestrator"
	"github.com/colorsignal/session-controller/internal/patterns"
	"github.com/colorsignal/session-controller/internal/session"
)

const replHelp = `commands:
  big | small      add an outcome (ignored while the history is full and locked)
  next             allow one more outcome once the history is full
  undo             remove the most recent outcome
  clear            clear history and feedback
  predict | retry  request a prediction
  win | loss       judge the current prediction
  upload <text>    upload historical outcomes ("Big, Small, ...")
  reconnect        drop and re-acquire the backend handle
  status           print the session state
  quit`

// #region repl
func newReplCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Drive a session interactively from stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*configPath, true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go a.monitor.Watch(ctx)

			if err := a.session.Connect(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "backend %s unavailable: %v\n", a.cfg.Backend.Addr, err)
			}
			return runRepl(ctx, a.session, os.Stdin, os.Stdout)
		},
	}
}

func runRepl(ctx context.Context, s *session.Session, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Session controller ready. Type 'help' for commands.")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		cmd = strings.ToLower(cmd)
		if cmd == "quit" || cmd == "exit" {
			break
		}
		if err := replCommand(ctx, s, cmd, strings.TrimSpace(arg), out); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

func replCommand(ctx context.Context, s *session.Session, cmd, arg string, out io.Writer) error {
	switch cmd {
	case "big", "small":
		value := history.Big
		if cmd == "small" {
			value = history.Small
		}
		d, err := s.AddEntry(string(value))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s (%s)\n", d.Action, d.Reason)
	case "next":
		if !s.Next() {
			fmt.Fprintln(out, "history is not full; nothing to advance")
		}
	case "undo":
		if !s.RemoveLast() {
			fmt.Fprintln(out, "history is empty")
		}
	case "clear":
		s.ClearAll()
	case "predict", "retry":
		var err error
		if cmd == "retry" {
			err = s.RetryPrediction(ctx)
		} else {
			err = s.Predict(ctx)
		}
		var pe *orchestrator.PredictionError
		if errors.As(err, &pe) {
			fmt.Fprintf(out, "%s: %s\n", pe.Category.Title(), pe.Message)
			return nil
		}
		if err != nil {
			return err
		}
	case "win", "loss":
		if err := s.RecordFeedback(cmd == "win"); err != nil {
			return err
		}
	case "upload":
		n, err := s.UploadPatterns(ctx, arg)
		var ve *patterns.ValidationError
		if errors.As(err, &ve) {
			fmt.Fprintln(out, ve.Message)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "uploaded %d windows\n", n)
		return nil
	case "reconnect":
		if err := s.RetryConnection(ctx); err != nil {
			return err
		}
	case "status":
	case "help":
		fmt.Fprintln(out, replHelp)
		return nil
	default:
		return fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
	printSnapshot(out, s.Snapshot())
	return nil
}

// #endregion repl

// #region render
func printSnapshot(out io.Writer, snap session.Snapshot) {
	labels := make([]string, len(snap.History))
	for i, o := range snap.History {
		labels[i] = string(o.Result)
	}
	fmt.Fprintf(out, "[%d/%d] %s\n", snap.Count, snap.Capacity, strings.Join(labels, " "))
	fmt.Fprintf(out, "  gate=%s connection=%s feedback=%d\n", snap.Gate, snap.Connection, snap.FeedbackCount)
	switch {
	case snap.Loading:
		fmt.Fprintln(out, "  prediction: loading")
	case snap.Error != nil:
		fmt.Fprintf(out, "  prediction: %s: %s\n", snap.Error.Title, snap.Error.Message)
	case snap.Result != nil:
		judged := ""
		if snap.FeedbackRecorded {
			judged = " (judged)"
		}
		fmt.Fprintf(out, "  prediction: %s%s\n", snap.Result.Label, judged)
		if snap.Result.Explanation != "" {
			fmt.Fprintf(out, "    %s\n", snap.Result.Explanation)
		}
	}
}

// #endregion render
