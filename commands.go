package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chunk-quiz/config"
	"chunk-quiz/quiz"
	"chunk-quiz/webapp"
)

type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

type globalFlags struct {
	envFile string
	content string
	mode    string
}

// NewRootCmd builds the command tree. Flags override environment settings.
func NewRootCmd(v VersionInfo) *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "chunk-quiz",
		Short: "Practice semantic text chunking",
		Long: `chunk-quiz shows a passage of sentences and asks where it should be split
into chunks that each hold one idea. Place breaks yourself (authoring mode) or
pick one of several candidate chunkings (choice mode), then compare your answer
with the model's segmentation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "file to read environment settings from")
	cmd.PersistentFlags().StringVar(&flags.content, "content", "", "quiz content YAML file (default: built-in passage)")
	cmd.PersistentFlags().StringVarP(&flags.mode, "mode", "m", "", "quiz mode: authoring or choice")

	cmd.AddCommand(
		newPlayCmd(flags),
		newServeCmd(flags),
		newCheckCmd(),
		newVersionCmd(v),
	)
	return cmd
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.envFile)
	if err != nil {
		return nil, err
	}
	if flags.content != "" {
		cfg.ContentPath = flags.content
	}
	if flags.mode != "" {
		mode, err := quiz.ParseMode(flags.mode)
		if err != nil {
			return nil, err
		}
		cfg.Mode = mode
	}
	return cfg, nil
}

func newPlayCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Take the quiz in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			content, err := cfg.LoadContent()
			if err != nil {
				return err
			}
			session, err := quiz.NewSession(content, cfg.Mode)
			if err != nil {
				return err
			}
			return runTerminal(session, os.Stdin, cmd.OutOrStdout())
		},
	}
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the quiz as a web page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			logger := cfg.Logger(cmd.ErrOrStderr())
			content, err := cfg.LoadContent()
			if err != nil {
				return err
			}
			server, err := webapp.New(webapp.Options{
				Content:    content,
				Mode:       cfg.Mode,
				SessionTTL: cfg.SessionTTL,
				Fade:       cfg.Fade,
				Logger:     logger,
			})
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := webapp.Run(ctx, cfg.Addr, server); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("web server error: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from CHUNKQUIZ_ADDR or :8080)")
	return cmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <content.yaml>",
		Short: "Validate a quiz content file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := quiz.LoadContent(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: ok\n", args[0])
			fmt.Fprintf(out, "  sentences: %d\n", len(content.Passage))
			fmt.Fprintf(out, "  reference: %d chunks, breaks after %v\n", len(content.Reference), content.ReferenceBreaks)
			if content.HasOptions() {
				correct, _ := content.CorrectOption()
				fmt.Fprintf(out, "  options:   %d (correct: %s)\n", len(content.Options), correct.ID)
			} else {
				fmt.Fprintln(out, "  options:   none (authoring mode only)")
			}
			return nil
		},
	}
}

func newVersionCmd(v VersionInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chunk-quiz %s\n", v.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", v.Commit)
			fmt.Fprintf(cmd.OutOrStdout(), "Built:  %s\n", v.Date)
		},
	}
}
