package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"taskmesh/internal/bootstrap"
	"taskmesh/internal/platform/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dataDir string

	root := &cobra.Command{
		Use:           "taskmesh",
		Short:         "Serverless replicated task list",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dataDir, "data", ".taskmesh", "data directory")

	root.AddCommand(newTaskCmd(&dataDir))
	root.AddCommand(newLogCmd(&dataDir))
	root.AddCommand(newActivityCmd(&dataDir))
	root.AddCommand(newLinkCmd(&dataDir))
	root.AddCommand(newTUICmd(&dataDir))
	return root
}

func loadApp(dataDir string) (*bootstrap.App, error) {
	cfg, err := config.New(dataDir)
	if err != nil {
		return nil, err
	}
	return bootstrap.New(cfg)
}

func newTaskCmd(dataDir *string) *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Task commands"}

	task.AddCommand(&cobra.Command{
		Use:   "add <text>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()
			out, err := app.TaskCLI.TaskAdd(context.Background(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", out.Text, out.ID)
			return nil
		},
	})

	task.AddCommand(&cobra.Command{
		Use:   "edit <id> <text>",
		Short: "Replace a task's text",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()
			out, err := app.TaskCLI.TaskEdit(context.Background(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "edited %s (%s)\n", out.Text, out.ID)
			return nil
		},
	})

	task.AddCommand(&cobra.Command{
		Use:   "toggle <id>",
		Short: "Flip a task's done state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()
			out, err := app.TaskCLI.TaskToggle(context.Background(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s -> done=%t\n", out.Text, out.Done)
			return nil
		},
	})

	task.AddCommand(&cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.TaskCLI.TaskRemove(context.Background(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "removed")
			return nil
		},
	})

	task.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()
			tasks, err := app.TaskCLI.TaskList(context.Background())
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no tasks")
				return nil
			}
			for _, t := range tasks {
				mark := " "
				if t.Done {
					mark = "x"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\t%s\n", mark, t.ID, t.Text)
			}
			return nil
		},
	})

	return task
}

func newLogCmd(dataDir *string) *cobra.Command {
	logCmd := &cobra.Command{Use: "log", Short: "Operation log commands"}

	logCmd.AddCommand(&cobra.Command{
		Use:   "export",
		Short: "Print the serialized operation log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()
			out, err := app.TaskCLI.LogExport(context.Background())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), out.Payload)
			return nil
		},
	})

	logCmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Merge an exported operation log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			app, err := loadApp(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()
			out, err := app.TaskCLI.LogImport(context.Background(), string(payload))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "applied %d new ops\n", out.Applied)
			return nil
		},
	})

	return logCmd
}

func newActivityCmd(dataDir *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent sync activity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()
			events, err := app.TaskCLI.ActivityTail(context.Background(), limit)
			if err != nil {
				return err
			}
			for _, event := range events {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n",
					event.OccurredAt.Format("2006-01-02 15:04:05"), event.Type, event.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max events to show")
	return cmd
}

func newLinkCmd(dataDir *string) *cobra.Command {
	link := &cobra.Command{Use: "link", Short: "Link this replica with a peer"}

	link.AddCommand(&cobra.Command{
		Use:   "offer",
		Short: "Create an offer, then paste the peer's answer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			out, err := app.SessionCLI.LinkOffer(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "offer (session %s):\n%s\n\npaste answer:\n", out.SessionID, out.Blob)

			answer, err := readLine(cmd)
			if err != nil {
				return err
			}
			if err := app.SessionCLI.LinkAnswer(ctx, answer); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "linked; syncing until interrupted")
			return waitForInterrupt(ctx)
		},
	})

	link.AddCommand(&cobra.Command{
		Use:   "accept <offer-blob>",
		Short: "Accept an offer and print the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			out, err := app.SessionCLI.LinkAccept(ctx, args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "answer (session %s):\n%s\n\nsyncing until interrupted\n", out.SessionID, out.Blob)
			return waitForInterrupt(ctx)
		},
	})

	return link
}

func newTUICmd(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Run the taskmesh terminal UI",
		RunE: func(_ *cobra.Command, _ []string) error {
			app, err := loadApp(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()
			return bootstrap.RunTUI(app)
		},
	}
}

func readLine(cmd *cobra.Command) (string, error) {
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func waitForInterrupt(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	<-ctx.Done()
	return nil
}
