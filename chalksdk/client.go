package chalksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"golang.org/x/xerrors"
)

// SessionTokenHeader is the header the client sends the session secret
// in.
const SessionTokenHeader = "Chalkboard-Session-Token"

// Client interacts with the chalkd HTTP API.
type Client struct {
	HTTPClient   *http.Client
	SessionToken string
	URL          *url.URL
}

// New creates a client for the chalkd deployment at serverURL.
func New(serverURL *url.URL) *Client {
	return &Client{
		URL:        serverURL,
		HTTPClient: &http.Client{},
	}
}

// Request performs an HTTP request with the body provided. The request
// is JSON-encoded and the session token attached when present.
func (c *Client) Request(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	serverURL, err := c.URL.Parse(path)
	if err != nil {
		return nil, xerrors.Errorf("parse url: %w", err)
	}

	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, xerrors.Errorf("marshal request: %w", err)
		}
		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, serverURL.String(), buf)
	if err != nil {
		return nil, xerrors.Errorf("create request: %w", err)
	}
	if c.SessionToken != "" {
		req.Header.Set(SessionTokenHeader, c.SessionToken)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("do request: %w", err)
	}
	return resp, nil
}

// Error is an API error decoded from a non-2xx response.
type Error struct {
	Response
	StatusCode int
}

func (e *Error) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("%s (status %d): %s: %s", e.Message, e.StatusCode, e.Errors[0].Field, e.Errors[0].Detail)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// ReadBodyAsError decodes the error envelope from a failed response.
func ReadBodyAsError(resp *http.Response) error {
	defer resp.Body.Close()
	var response Response
	err := json.NewDecoder(resp.Body).Decode(&response)
	if err != nil {
		return xerrors.Errorf("decode error response (status %d): %w", resp.StatusCode, err)
	}
	return &Error{
		Response:   response,
		StatusCode: resp.StatusCode,
	}
}

func decode[T any](resp *http.Response) (T, error) {
	var value T
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return value, ReadBodyAsError(resp)
	}
	err := json.NewDecoder(resp.Body).Decode(&value)
	if err != nil {
		return value, xerrors.Errorf("decode response: %w", err)
	}
	return value, nil
}

// Bootstrap mints the one-time platform bootstrap token.
func (c *Client) Bootstrap(ctx context.Context, req BootstrapRequest) (BootstrapResponse, error) {
	resp, err := c.Request(ctx, http.MethodPost, "/api/v2/bootstrap", req)
	if err != nil {
		return BootstrapResponse{}, err
	}
	return decode[BootstrapResponse](resp)
}

// Register provisions a new identity by redeeming an invite token.
func (c *Client) Register(ctx context.Context, req CreateRegistrationRequest) (RegistrationResponse, error) {
	resp, err := c.Request(ctx, http.MethodPost, "/api/v2/register", req)
	if err != nil {
		return RegistrationResponse{}, err
	}
	return decode[RegistrationResponse](resp)
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (User, error) {
	resp, err := c.Request(ctx, http.MethodGet, "/api/v2/users/me", nil)
	if err != nil {
		return User{}, err
	}
	return decode[User](resp)
}

// CreateSchool creates a tenant. Site admins only.
func (c *Client) CreateSchool(ctx context.Context, req CreateSchoolRequest) (School, error) {
	resp, err := c.Request(ctx, http.MethodPost, "/api/v2/schools", req)
	if err != nil {
		return School{}, err
	}
	return decode[School](resp)
}

// Schools lists the schools visible to the caller.
func (c *Client) Schools(ctx context.Context) ([]School, error) {
	resp, err := c.Request(ctx, http.MethodGet, "/api/v2/schools", nil)
	if err != nil {
		return nil, err
	}
	return decode[[]School](resp)
}

// School fetches one school.
func (c *Client) School(ctx context.Context, id uuid.UUID) (School, error) {
	resp, err := c.Request(ctx, http.MethodGet, "/api/v2/schools/"+id.String(), nil)
	if err != nil {
		return School{}, err
	}
	return decode[School](resp)
}

// CreateInvite issues an invite token.
func (c *Client) CreateInvite(ctx context.Context, req CreateInviteRequest) (Invite, error) {
	resp, err := c.Request(ctx, http.MethodPost, "/api/v2/invites", req)
	if err != nil {
		return Invite{}, err
	}
	return decode[Invite](resp)
}

// SchoolInvites lists the invites of one school visible to the caller.
func (c *Client) SchoolInvites(ctx context.Context, schoolID uuid.UUID) ([]Invite, error) {
	resp, err := c.Request(ctx, http.MethodGet, "/api/v2/schools/"+schoolID.String()+"/invites", nil)
	if err != nil {
		return nil, err
	}
	return decode[[]Invite](resp)
}

// RevokeInvite invalidates the invite with the given token.
func (c *Client) RevokeInvite(ctx context.Context, token string) error {
	resp, err := c.Request(ctx, http.MethodDelete, "/api/v2/invites/"+token, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return ReadBodyAsError(resp)
	}
	return nil
}

// Users lists users visible to the caller.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	resp, err := c.Request(ctx, http.MethodGet, "/api/v2/users", nil)
	if err != nil {
		return nil, err
	}
	return decode[[]User](resp)
}

// User fetches one user.
func (c *Client) User(ctx context.Context, id uuid.UUID) (User, error) {
	resp, err := c.Request(ctx, http.MethodGet, "/api/v2/users/"+id.String(), nil)
	if err != nil {
		return User{}, err
	}
	return decode[User](resp)
}

// UpdateUserRole changes a user's role.
func (c *Client) UpdateUserRole(ctx context.Context, id uuid.UUID, req UpdateUserRoleRequest) (User, error) {
	resp, err := c.Request(ctx, http.MethodPatch, "/api/v2/users/"+id.String()+"/role", req)
	if err != nil {
		return User{}, err
	}
	return decode[User](resp)
}

// UpdateUserSchool moves a user between schools.
func (c *Client) UpdateUserSchool(ctx context.Context, id uuid.UUID, req UpdateUserSchoolRequest) (User, error) {
	resp, err := c.Request(ctx, http.MethodPatch, "/api/v2/users/"+id.String()+"/school", req)
	if err != nil {
		return User{}, err
	}
	return decode[User](resp)
}

// DeleteUser soft-deletes a user.
func (c *Client) DeleteUser(ctx context.Context, id uuid.UUID) error {
	resp, err := c.Request(ctx, http.MethodDelete, "/api/v2/users/"+id.String(), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return ReadBodyAsError(resp)
	}
	return nil
}

// RestoreUser clears a user's soft-delete marker.
func (c *Client) RestoreUser(ctx context.Context, id uuid.UUID) (User, error) {
	resp, err := c.Request(ctx, http.MethodPut, "/api/v2/users/"+id.String()+"/restore", nil)
	if err != nil {
		return User{}, err
	}
	return decode[User](resp)
}

// AuditLogs lists audit rows, optionally filtered to one school.
func (c *Client) AuditLogs(ctx context.Context, schoolID *uuid.UUID) ([]AuditLog, error) {
	path := "/api/v2/auditlogs"
	if schoolID != nil {
		path += "?school_id=" + schoolID.String()
	}
	resp, err := c.Request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return decode[[]AuditLog](resp)
}
