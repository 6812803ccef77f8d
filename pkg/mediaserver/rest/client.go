// Package rest implements mediaserver.Client against the host server's
// REST management API (Jellyfin/Emby dialect).
//
// Requests authenticate with an API key and are rate limited so bulk
// reconciliation passes never starve the media server's own clients.
// Differences between host versions are confined to a policyCodec chosen
// once at startup by capability probing; no per-call version switching.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/marmos91/langmirror/internal/logger"
	"github.com/marmos91/langmirror/internal/ratelimiter"
	"github.com/marmos91/langmirror/pkg/mediaserver"
)

// Client talks to the media server's REST API.
//
// Thread safety: safe for concurrent use; the underlying http.Client and
// rate limiter are both concurrency-safe.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *ratelimiter.RateLimiter
	codec   policyCodec
}

// Config contains configuration for the REST client.
type Config struct {
	// URL is the media server's base URL (e.g. "http://localhost:8096")
	URL string

	// APIKey is an admin API key
	APIKey string

	// Timeout bounds each individual HTTP request
	Timeout time.Duration

	// RateLimit is the sustained request rate against the server
	// (requests per second; 0 = unlimited)
	RateLimit uint

	// RateBurst is the burst capacity of the limiter
	RateBurst uint

	// ForceVersion skips capability probing and pins the server version
	// (e.g. "10.8"). Empty means probe at startup.
	ForceVersion string
}

// New creates a REST client and selects the policy codec for the server's
// version, probing the server unless ForceVersion is set.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("media server URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("media server API key is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	client := &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		limiter: ratelimiter.New(cfg.RateLimit, cfg.RateBurst),
	}

	version := cfg.ForceVersion
	if version == "" {
		probed, err := client.probeVersion(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to probe media server version: %w", err)
		}
		version = probed
	}

	client.codec = codecForVersion(version)
	logger.Info("media server client initialized",
		"url", client.baseURL,
		"version", version,
		"policy_codec", client.codec.name())

	return client, nil
}

// probeVersion asks the server for its version via the public info
// endpoint, which requires no authentication.
func (c *Client) probeVersion(ctx context.Context) (string, error) {
	var info struct {
		Version string `json:"Version"`
	}
	if err := c.get(ctx, "/System/Info/Public", &info); err != nil {
		return "", err
	}
	if info.Version == "" {
		return "", fmt.Errorf("media server reported no version")
	}
	return info.Version, nil
}

// virtualFolder is the wire shape of a library entry.
type virtualFolder struct {
	Name      string   `json:"Name"`
	ItemID    string   `json:"ItemId"`
	Locations []string `json:"Locations"`
}

// ListLibraries returns all libraries registered on the server.
func (c *Client) ListLibraries(ctx context.Context) ([]mediaserver.Library, error) {
	var folders []virtualFolder
	if err := c.get(ctx, "/Library/VirtualFolders", &folders); err != nil {
		return nil, err
	}

	libraries := make([]mediaserver.Library, 0, len(folders))
	for _, f := range folders {
		libraries = append(libraries, mediaserver.Library{
			ID:    f.ItemID,
			Name:  f.Name,
			Paths: f.Locations,
		})
	}
	return libraries, nil
}

// CreateLibrary registers a new library and returns its id.
//
// The creation endpoint does not return the new entry, so the client
// re-lists and resolves the id by name. Name collisions are rejected by
// the server itself.
func (c *Client) CreateLibrary(ctx context.Context, name string, paths []string) (string, error) {
	pathInfos := make([]map[string]string, 0, len(paths))
	for _, p := range paths {
		pathInfos = append(pathInfos, map[string]string{"Path": p})
	}
	body := map[string]any{
		"LibraryOptions": map[string]any{
			"PathInfos": pathInfos,
		},
	}

	endpoint := "/Library/VirtualFolders?name=" + url.QueryEscape(name) + "&refreshLibrary=false"
	if err := c.send(ctx, http.MethodPost, endpoint, body); err != nil {
		return "", err
	}

	var folders []virtualFolder
	if err := c.get(ctx, "/Library/VirtualFolders", &folders); err != nil {
		return "", fmt.Errorf("library created but listing failed: %w", err)
	}
	for _, f := range folders {
		if f.Name == name {
			return f.ItemID, nil
		}
	}

	return "", fmt.Errorf("library %q created but not found in listing", name)
}

// RemoveLibrary retires a library entry. The API addresses libraries by
// name for removal, so the id is resolved through a listing first.
func (c *Client) RemoveLibrary(ctx context.Context, id string) error {
	var folders []virtualFolder
	if err := c.get(ctx, "/Library/VirtualFolders", &folders); err != nil {
		return err
	}

	for _, f := range folders {
		if f.ItemID == id {
			endpoint := "/Library/VirtualFolders?name=" + url.QueryEscape(f.Name)
			return c.send(ctx, http.MethodDelete, endpoint, nil)
		}
	}

	return fmt.Errorf("library %q not found", id)
}

// apiUser is the wire shape of a user entry.
type apiUser struct {
	ID     string          `json:"Id"`
	Name   string          `json:"Name"`
	Policy json.RawMessage `json:"Policy"`
}

// ListUsers returns all user accounts.
func (c *Client) ListUsers(ctx context.Context) ([]mediaserver.User, error) {
	var raw []apiUser
	if err := c.get(ctx, "/Users", &raw); err != nil {
		return nil, err
	}

	users := make([]mediaserver.User, 0, len(raw))
	for _, u := range raw {
		users = append(users, mediaserver.User{ID: u.ID, Name: u.Name})
	}
	return users, nil
}

// UserLibraryPermissions returns the user's visible-library ids from
// their policy, decoded by the version-selected codec.
func (c *Client) UserLibraryPermissions(ctx context.Context, userID string) ([]string, bool, error) {
	var user apiUser
	if err := c.get(ctx, "/Users/"+url.PathEscape(userID), &user); err != nil {
		return nil, false, err
	}

	ids, allAccess, err := c.codec.decode(user.Policy)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode policy for user %q: %w", userID, err)
	}
	return ids, allAccess, nil
}

// SetUserLibraryPermissions installs the full visible set in a single
// policy update, fetching the current policy first so unrelated policy
// fields are preserved.
func (c *Client) SetUserLibraryPermissions(ctx context.Context, userID string, libraryIDs []string) error {
	var user apiUser
	if err := c.get(ctx, "/Users/"+url.PathEscape(userID), &user); err != nil {
		return err
	}

	policy, err := c.codec.encode(user.Policy, libraryIDs)
	if err != nil {
		return fmt.Errorf("failed to encode policy for user %q: %w", userID, err)
	}

	return c.send(ctx, http.MethodPost, "/Users/"+url.PathEscape(userID)+"/Policy", policy)
}

// get performs a rate-limited GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return httpError(http.MethodGet, endpoint, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: failed to decode response: %w", endpoint, err)
	}
	return nil
}

// send performs a rate-limited request with an optional JSON body,
// ignoring any response body.
func (c *Client) send(ctx context.Context, method, endpoint string, body any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return err
	}
	c.authorize(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return httpError(method, endpoint, resp)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("X-Emby-Token", c.apiKey)
}

func httpError(method, endpoint string, resp *http.Response) error {
	return fmt.Errorf("%s %s: unexpected status %d", method, endpoint, resp.StatusCode)
}
