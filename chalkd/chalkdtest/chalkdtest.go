// Package chalkdtest spins up in-memory chalkd servers for tests and
// carries helpers for the common setup steps: bootstrapping the first
// admin, creating schools and registering users off invite tokens.
package chalkdtest

import (
	"context"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/coder/quartz"

	"github.com/chalkboard/chalkboard/chalkd"
	"github.com/chalkboard/chalkboard/chalkd/audit"
	"github.com/chalkboard/chalkboard/chalkd/database"
	"github.com/chalkboard/chalkboard/chalkd/database/dbmem"
	"github.com/chalkboard/chalkboard/chalksdk"
	"github.com/chalkboard/chalkboard/testutil"
)

type Options struct {
	Database database.Store
	Auditor  audit.Auditor
	Clock    quartz.Clock
}

// New starts a chalkd API over an in-memory store and returns an
// unauthenticated client pointed at it. The server is torn down with
// the test.
func New(t testing.TB, options *Options) (*chalksdk.Client, *chalkd.API) {
	t.Helper()
	if options == nil {
		options = &Options{}
	}
	if options.Database == nil {
		options.Database = dbmem.New()
	}

	api := chalkd.New(chalkd.Options{
		Logger:   testutil.Logger(t),
		Database: options.Database,
		Auditor:  options.Auditor,
		Clock:    options.Clock,
	})
	srv := httptest.NewServer(api.Handler)
	t.Cleanup(srv.Close)

	serverURL, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return chalksdk.New(serverURL), api
}

// CreateFirstAdmin bootstraps the deployment and signs the client in as
// the resulting site admin.
func CreateFirstAdmin(t testing.TB, client *chalksdk.Client) chalksdk.User {
	t.Helper()
	ctx := context.Background()

	boot, err := client.Bootstrap(ctx, chalksdk.BootstrapRequest{})
	require.NoError(t, err)
	res, err := client.Register(ctx, chalksdk.CreateRegistrationRequest{
		ID:          uuid.New(),
		InviteToken: boot.Token,
		Email:       "admin@chalkboard.test",
		Username:    "admin",
	})
	require.NoError(t, err)
	client.SessionToken = res.SessionToken
	return res.User
}

// CreateSchool creates a tenant as the (site admin) client.
func CreateSchool(t testing.TB, client *chalksdk.Client, name string) chalksdk.School {
	t.Helper()
	school, err := client.CreateSchool(context.Background(), chalksdk.CreateSchoolRequest{Name: name})
	require.NoError(t, err)
	return school
}

// RegisterUser redeems the invite token as a brand-new identity and
// returns a signed-in client for it.
func RegisterUser(t testing.TB, base *chalksdk.Client, token, email string) (*chalksdk.Client, chalksdk.User) {
	t.Helper()
	client := chalksdk.New(base.URL)
	res, err := client.Register(context.Background(), chalksdk.CreateRegistrationRequest{
		ID:          uuid.New(),
		InviteToken: token,
		Email:       email,
	})
	require.NoError(t, err)
	client.SessionToken = res.SessionToken
	return client, res.User
}
