// Package cli implements the chalkd command line.
package cli

import (
	"fmt"
	"net/url"
	"os"

	"golang.org/x/xerrors"

	"github.com/coder/serpent"

	"github.com/chalkboard/chalkboard/chalksdk"
)

type RootCmd struct{}

func (r *RootCmd) Command() *serpent.Command {
	cmd := &serpent.Command{
		Use:   "chalkd",
		Short: "School platform authorization and provisioning server.",
		Handler: func(inv *serpent.Invocation) error {
			return inv.Command.HelpHandler(inv)
		},
		Children: []*serpent.Command{
			r.Server(),
			r.BootstrapToken(),
		},
	}
	return cmd
}

// Run executes the CLI with OS arguments and environment.
func (r *RootCmd) Run() {
	err := r.Command().Invoke().WithOS().Run()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// client builds an SDK client against the configured server URL.
func (r *RootCmd) client(rawURL string) (*chalksdk.Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, xerrors.Errorf("parse server url: %w", err)
	}
	return chalksdk.New(parsed), nil
}
