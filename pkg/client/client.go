// Package client is the interactive notes shell.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/wurt83ow/gophnotes-client/pkg/models"
	"github.com/wurt83ow/gophnotes-client/pkg/services"
	"github.com/wurt83ow/gophnotes-client/pkg/syncengine"
)

// DateLayout is how update times are shown.
const DateLayout = "Jan 2, 03:04 PM"

// OfflineMarker replaces per-note status while the remote is unreachable.
const OfflineMarker = "offline"

func promptFor(online bool) string {
	if online {
		return "> "
	}
	return "offline> "
}

// FormatDate renders t for display. The zero time renders as "Invalid date".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "Invalid date"
	}
	return t.Local().Format(DateLayout)
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("list"),
	readline.PcItem("show"),
	readline.PcItem("new"),
	readline.PcItem("title"),
	readline.PcItem("content"),
	readline.PcItem("edit"),
	readline.PcItem("delete"),
	readline.PcItem("status"),
	readline.PcItem("search"),
	readline.PcItem("select"),
	readline.PcItem("sync"),
	readline.PcItem("help"),
	readline.PcItem("exit"),
)

type Shell struct {
	ctx context.Context
	svc *services.Service
	rl  *readline.Instance
	out io.Writer
}

// NewShell opens a readline prompt bound to svc.
func NewShell(ctx context.Context, svc *services.Service) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          promptFor(svc.IsOnline()),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start shell: %w", err)
	}
	return &Shell{ctx: ctx, svc: svc, rl: rl, out: rl.Stdout()}, nil
}

func (s *Shell) Close() {
	s.rl.Close()
}

// Start reads commands until exit, EOF or interrupt.
func (s *Shell) Start() {
	unsubscribe := s.svc.Subscribe(s.onEvent)
	defer unsubscribe()
	s.svc.OnConnectivityChange(s.onConnectivity)

	fmt.Fprintln(s.out, "gophnotes shell, type help for commands")
	s.list()
	for {
		line, err := s.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			fmt.Fprintln(s.out, "Error:", err)
			return
		}
		if s.Execute(line) {
			return
		}
	}
}

func (s *Shell) onConnectivity(online bool) {
	if online {
		fmt.Fprintln(s.out, "back online, syncing queued changes")
	} else {
		fmt.Fprintln(s.out, "offline, changes are kept locally")
	}
	if s.rl != nil {
		s.rl.SetPrompt(promptFor(online))
	}
}

func (s *Shell) onEvent(ev syncengine.Event) {
	if ev.Kind == syncengine.EventRemapped {
		fmt.Fprintf(s.out, "note %s saved on the server as %s\n", ev.OldID, ev.NoteID)
	}
}

// Execute runs one command line and reports whether the shell should exit.
func (s *Shell) Execute(line string) bool {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "":
	case "exit", "quit":
		return true
	case "help":
		s.help()
	case "list":
		s.list()
	case "show":
		s.show(s.target(rest))
	case "new":
		n, err := s.svc.CreateNote(s.ctx, models.Patch{})
		if s.report(err) {
			fmt.Fprintf(s.out, "created %s\n", n.ID)
		}
	case "title", "content":
		id, text, _ := strings.Cut(rest, " ")
		s.patch(cmd, id, text)
	case "edit":
		s.edit(s.target(rest))
	case "delete":
		if s.report(s.svc.DeleteNote(s.ctx, s.target(rest))) {
			fmt.Fprintln(s.out, "deleted")
		}
	case "status":
		s.status(s.target(rest))
	case "search":
		notes, err := s.svc.SearchNotes(s.ctx, rest)
		if s.report(err) {
			s.print(notes)
		}
	case "select":
		s.svc.Select(rest)
		fmt.Fprintf(s.out, "selected %s\n", s.svc.Selected())
	case "sync":
		if s.report(s.svc.Sync(s.ctx)) {
			fmt.Fprintln(s.out, "synced")
		}
	default:
		fmt.Fprintf(s.out, "unknown command %q, type help\n", cmd)
	}
	return false
}

// target falls back to the selected note when no id is given.
func (s *Shell) target(id string) string {
	if id == "" {
		return s.svc.Selected()
	}
	return id
}

func (s *Shell) report(err error) bool {
	if err == nil {
		return true
	}
	fmt.Fprintln(s.out, "Error:", err)
	return false
}

func (s *Shell) help() {
	fmt.Fprint(s.out, `commands:
  list                  refresh and list notes
  show [id]             print a note
  new                   create a note and select it
  title <id> <text>     set the title
  content <id> <text>   set the content
  edit [id]             edit title and content interactively
  delete [id]           delete a note
  status [id]           show the sync status
  search <term>         search titles and content
  select <id>           select a note
  sync                  push queued changes and refresh
  exit
`)
}

func (s *Shell) list() {
	notes, err := s.svc.ListNotes(s.ctx)
	if banner := s.svc.Banner(); banner != "" && err != nil {
		fmt.Fprintln(s.out, banner)
	} else if err != nil {
		fmt.Fprintln(s.out, "Error:", err)
		return
	}
	s.print(notes)
}

func (s *Shell) print(notes []models.Note) {
	if len(notes) == 0 {
		fmt.Fprintln(s.out, "no notes")
		return
	}
	online := s.svc.IsOnline()
	selected := s.svc.Selected()
	for _, n := range notes {
		mark := " "
		if n.ID == selected {
			mark = "*"
		}
		status := OfflineMarker
		if online {
			if st, err := s.svc.GetSyncStatus(s.ctx, n.ID); err == nil {
				status = string(st)
			}
		}
		fmt.Fprintf(s.out, "%s %-8s %-24s %-16s [%s]\n", mark, n.ID, n.Title, FormatDate(n.UpdatedAt), status)
	}
}

func (s *Shell) show(id string) {
	n, err := s.svc.GetNote(s.ctx, id)
	if !s.report(err) {
		return
	}
	fmt.Fprintf(s.out, "%s\n%s\n\n%s\n", n.Title, FormatDate(n.UpdatedAt), n.Content)
}

func (s *Shell) status(id string) {
	st, err := s.svc.GetSyncStatus(s.ctx, id)
	if !s.report(err) {
		return
	}
	if msg, ok := s.svc.SyncError(id); ok {
		fmt.Fprintf(s.out, "%s: %s\n", st, msg)
		return
	}
	fmt.Fprintln(s.out, st)
}

func (s *Shell) patch(field, id, text string) {
	var p models.Patch
	if field == "title" {
		p.Title = &text
	} else {
		p.Content = &text
	}
	_, err := s.svc.UpdateNote(s.ctx, id, p)
	if s.report(err) {
		fmt.Fprintln(s.out, "saved")
	}
}

func (s *Shell) edit(id string) {
	n, err := s.svc.GetNote(s.ctx, id)
	if !s.report(err) {
		return
	}
	defer func() { s.rl.SetPrompt(promptFor(s.svc.IsOnline())) }()

	s.rl.SetPrompt("Title: ")
	title, err := s.rl.ReadlineWithDefault(n.Title)
	if err != nil {
		return
	}
	s.rl.SetPrompt("Content: ")
	content, err := s.rl.ReadlineWithDefault(n.Content)
	if err != nil {
		return
	}
	_, err = s.svc.UpdateNote(s.ctx, n.ID, models.Patch{Title: &title, Content: &content})
	if s.report(err) {
		fmt.Fprintln(s.out, "saved")
	}
}
