// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package cli implements the libctl command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-core-stack/library-client/pkg/client"
	"github.com/go-core-stack/library-client/pkg/config"
	"github.com/go-core-stack/library-client/pkg/navigate"
	"github.com/go-core-stack/library-client/pkg/session"
)

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	cfg      config.Config
	store    session.Store
	location *navigate.Location
	closers  []io.Closer
}

// Execute runs libctl with the process arguments and exits non-zero on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	a := &app{in: os.Stdin, out: os.Stdout, errOut: os.Stderr}
	err := execute(ctx, a, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, a *app, args []string) error {
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "libctl",
		Short:         "Signed, session-aware client for the library API",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `libctl talks to the library API the way the web client does: every call
carries a timestamp, nonce and HMAC signature, and calls made after login
carry the stored bearer token. A 401 from the API clears the stored session.

Configuration is read from LIBRARY_* environment variables and an optional
.env file in the working directory. LIBRARY_API_URL is required.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	if a.in != nil {
		root.SetIn(a.in)
	}
	if a.out != nil {
		root.SetOut(a.out)
	}
	if a.errOut != nil {
		root.SetErr(a.errOut)
	}

	root.AddCommand(
		loginCmd(a),
		logoutCmd(a),
		whoamiCmd(a),
		requestCmd(a),
		signCmd(a),
		serveCmd(a),
	)
	return root
}

// setup loads configuration, configures logging and opens the session store.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	a.cfg = cfg

	logCloser, err := setupLogging(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.closers = append(a.closers, logCloser)

	store, err := session.Open(cfg.Session)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	a.store = store
	if closer, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, closer)
	}

	errOut := cmd.ErrOrStderr()
	a.location = navigate.NewLocation("/", func(from, to string) {
		if to == navigate.LoginPath {
			fmt.Fprintln(errOut, "session expired; run `libctl login` to sign in again")
		}
	})
	return nil
}

// newClient builds a Client whose invalidations move the location to the
// login route.
func (a *app) newClient(opts ...client.Option) (*client.Client, error) {
	opts = append(opts, client.WithListener(navigate.Listener(a.location)))
	c, err := client.New(a.cfg, a.store, opts...)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return c, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Error().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}
