package cli

import (
	"fmt"
	"time"

	"github.com/coder/serpent"

	"github.com/chalkboard/chalkboard/chalksdk"
)

// BootstrapToken asks a running server for the one-time platform
// bootstrap token. The server refuses once any site admin exists, so
// this is only useful on a fresh deployment.
func (r *RootCmd) BootstrapToken() *serpent.Command {
	var (
		serverURL string
		ttl       time.Duration
	)
	cmd := &serpent.Command{
		Use:   "bootstrap-token",
		Short: "Mint the one-time bootstrap token for the first site admin.",
		Options: serpent.OptionSet{
			{
				Flag:        "url",
				Env:         "CHALKD_URL",
				Description: "URL of the chalkd server.",
				Default:     "http://127.0.0.1:3000",
				Value:       serpent.StringOf(&serverURL),
			},
			{
				Flag:        "ttl",
				Env:         "CHALKD_BOOTSTRAP_TTL",
				Description: "Lifetime of the token. Defaults to a day, capped at a week.",
				Value:       serpent.DurationOf(&ttl),
			},
		},
		Handler: func(inv *serpent.Invocation) error {
			client, err := r.client(serverURL)
			if err != nil {
				return err
			}
			resp, err := client.Bootstrap(inv.Context(), chalksdk.BootstrapRequest{
				TTLMillis: ttl.Milliseconds(),
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(inv.Stdout, "token: %s\nexpires: %s\n",
				resp.Token, resp.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	return cmd
}
