package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wurt83ow/gophnotes-client/pkg/client"
	"github.com/wurt83ow/gophnotes-client/pkg/config"
	"github.com/wurt83ow/gophnotes-client/pkg/models"
	"github.com/wurt83ow/gophnotes-client/pkg/netwatch"
	"github.com/wurt83ow/gophnotes-client/pkg/remoteserver"
	"github.com/wurt83ow/gophnotes-client/pkg/syncengine"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gophnotes",
		Short:         "Offline-first notes client",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		listCmd(),
		createCmd(),
		updateCmd(),
		deleteCmd(),
		statusCmd(),
		searchCmd(),
		syncCmd(),
		exportCmd(),
		shellCmd(),
		serveCmd(),
		markerCmd("online", "Lift the offline override", netwatch.MarkOnline),
		markerCmd("offline", "Hold every client offline until 'online' is run", netwatch.MarkOffline),
	)
	return root
}

// withApp loads the configuration, opens a session for the command and
// closes it afterwards.
func withApp(fn func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		opt, err := config.NewConfig(cmd.Flags())
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, opt)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := a.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		return fn(ctx, cmd, a, args)
	}
}

func printNotes(w io.Writer, a *app, notes []models.Note) {
	if len(notes) == 0 {
		fmt.Fprintln(w, "no notes")
		return
	}
	online := a.svc.IsOnline()
	for _, n := range notes {
		status := client.OfflineMarker
		if online {
			if st, err := a.svc.GetSyncStatus(context.Background(), n.ID); err == nil {
				status = string(st)
			}
		}
		fmt.Fprintf(w, "%-8s %-24s %-16s [%s]\n", n.ID, n.Title, client.FormatDate(n.UpdatedAt), status)
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Refresh from the server and list notes",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			notes, err := a.svc.ListNotes(ctx)
			if err != nil && !errors.Is(err, syncengine.ErrFetchFailed) {
				return err
			}
			if banner := a.svc.Banner(); banner != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), banner)
			}
			printNotes(cmd.OutOrStdout(), a, notes)
			return nil
		}),
	}
}

// patchFlags reads --title and --content, leaving unset flags out of the patch.
func patchFlags(cmd *cobra.Command) models.Patch {
	var p models.Patch
	if cmd.Flags().Changed("title") {
		v, _ := cmd.Flags().GetString("title")
		p.Title = &v
	}
	if cmd.Flags().Changed("content") {
		v, _ := cmd.Flags().GetString("content")
		p.Content = &v
	}
	return p
}

func createCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a note",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			n, err := a.svc.CreateNote(ctx, patchFlags(cmd))
			if err != nil {
				return err
			}
			if err := a.svc.Flush(ctx); err != nil {
				a.log.Warn("flush failed", "error", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.engine.State().Resolve(n.ID))
			return nil
		}),
	}
	cmd.Flags().String("title", "", "note title")
	cmd.Flags().String("content", "", "note content")
	return cmd
}

func updateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a note's title or content",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			p := patchFlags(cmd)
			if p.Empty() {
				return errors.New("nothing to update, use --title or --content")
			}
			if _, err := a.svc.UpdateNote(ctx, args[0], p); err != nil {
				return err
			}
			return a.svc.Flush(ctx)
		}),
	}
	cmd.Flags().String("title", "", "new title")
	cmd.Flags().String("content", "", "new content")
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, _ *cobra.Command, a *app, args []string) error {
			return a.svc.DeleteNote(ctx, args[0])
		}),
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show a note's sync status",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			st, err := a.svc.GetSyncStatus(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, st)
			if msg, ok := a.svc.SyncError(args[0]); ok {
				fmt.Fprintln(out, "last error:", msg)
			}
			info := a.info.GetSyncInfo()
			fmt.Fprintln(out, "last sync:", client.FormatDate(info.LastSync))
			fmt.Fprintln(out, "last fetch:", client.FormatDate(info.LastFetch))
			return nil
		}),
	}
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <term>",
		Short: "Search local notes by title or content",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			notes, err := a.svc.SearchNotes(ctx, args[0])
			if err != nil {
				return err
			}
			printNotes(cmd.OutOrStdout(), a, notes)
			return nil
		}),
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push queued changes and refresh from the server",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			if err := a.svc.Sync(ctx); err != nil {
				return err
			}
			if failed := a.svc.Failed(); len(failed) > 0 {
				for id, msg := range failed {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", id, msg)
				}
				return fmt.Errorf("%d notes failed to sync", len(failed))
			}
			return nil
		}),
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write the local notes as YAML",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			return a.svc.Export(ctx, cmd.OutOrStdout())
		}),
	}
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start the interactive shell",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, _ *cobra.Command, a *app, _ []string) error {
			sh, err := client.NewShell(ctx, a.svc)
			if err != nil {
				return err
			}
			defer sh.Close()
			sh.Start()
			return nil
		}),
	}
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an in-memory notes API for development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
			srv := &http.Server{
				Addr:              addr,
				Handler:           remoteserver.New(log).Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Error("shutdown", "error", err)
				}
			}()

			log.Info("notes API listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func markerCmd(use, short string, mark func(dir string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opt, err := config.NewConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return mark(opt.SignalDir)
		},
	}
}
