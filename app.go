package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"library-portal/config"
	"library-portal/library"
)

// errReported marks failures the session has already surfaced to the user.
var errReported = errors.New("reported")

func reported(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", errReported, err)
}

// app holds the wiring shared by every command. The session side is opened
// lazily so `serve` runs without a session database.
type app struct {
	in   *bufio.Scanner
	inFD int // terminal descriptor for masked input, or -1
	out  io.Writer
	err  io.Writer

	cfg      config.Client
	logger   *slog.Logger
	notifier library.Notifier

	store   *library.Store
	client  *library.Client
	session *library.Session
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	a := &app{
		in:       bufio.NewScanner(in),
		inFD:     -1,
		out:      out,
		err:      errOut,
		notifier: library.WriterNotifier{Out: out, Err: errOut},
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		a.inFD = int(f.Fd())
	}
	return a
}

func (a *app) rootCommand() *cobra.Command {
	var apiURL, sessionDB, logLevel string

	root := &cobra.Command{
		Use:           "library",
		Short:         "Library portal client",
		Long:          "Sign in to the library, browse the catalog, borrow books, and run staff and admin tasks.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("api") {
				cfg.APIBaseURL = apiURL
			}
			if cmd.Flags().Changed("session-db") {
				cfg.SessionDB = sessionDB
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			a.cfg = cfg
			a.logger = slog.New(slog.NewTextHandler(a.err, &slog.HandlerOptions{Level: config.Level(cfg.LogLevel)}))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&apiURL, "api", "", "API base URL (env LIBRARY_API_BASE_URL)")
	pf.StringVar(&sessionDB, "session-db", "", "session database file (env LIBRARY_SESSION_DB)")
	pf.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (env LIBRARY_LOG_LEVEL)")

	root.AddCommand(
		a.registerCommand(),
		a.loginCommand(),
		a.logoutCommand(),
		a.whoamiCommand(),
		a.profileCommand(),
		a.booksCommand(),
		a.loansCommand(),
		a.adminCommand(),
		a.serveCommand(),
	)
	return root
}

// open wires the persisted session and the API client on first use.
func (a *app) open() error {
	if a.session != nil {
		return nil
	}
	store, err := library.OpenStore(a.cfg.SessionDB)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	client := library.NewClient(a.cfg.APIBaseURL, store,
		library.WithTimeout(a.cfg.HTTPTimeout),
		library.WithLogger(a.logger),
	)
	session := library.NewSession(store, client, a.notifier, a.logger)
	if err := session.Load(); err != nil {
		store.Close()
		return err
	}
	a.store, a.client, a.session = store, client, session
	return nil
}

func (a *app) close() {
	if a.session != nil {
		a.session.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close session store", "error", err)
		}
	}
}

// run adapts a command body that needs the session. Any failure is shown
// as a notification under title before it reaches main.
func (a *app) run(title string, fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := a.open(); err != nil {
			return a.fail(title, err)
		}
		err := fn(cmd, args)
		if errors.Is(err, errCancelled) {
			fmt.Fprintln(a.out, "Cancelled.")
			return nil
		}
		return a.fail(title, err)
	}
}

// gated is run plus a minimum-role check against the signed-in identity.
func (a *app) gated(want library.Role, title string, fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return a.run(title, func(cmd *cobra.Command, args []string) error {
		if err := a.session.Require(want); err != nil {
			if errors.Is(err, library.ErrNotAuthenticated) {
				return fmt.Errorf("%w: run `library login` first", err)
			}
			return err
		}
		return fn(cmd, args)
	})
}

// fail notifies err under title and marks it reported. Errors the session
// already surfaced pass through unchanged.
func (a *app) fail(title string, err error) error {
	if err == nil || errors.Is(err, errReported) {
		return err
	}
	a.notifier.Notify(library.Notification{Kind: library.NotifyFailure, Title: title, Message: err.Error()})
	return reported(err)
}

func (a *app) ok(title, msg string) {
	a.notifier.Notify(library.Notification{Kind: library.NotifySuccess, Title: title, Message: msg})
}

// identity is the signed-in user. Callers run behind gated.
func (a *app) identity() library.Identity {
	id, _ := a.session.Current()
	return id
}
