// Package remote is the object-store client: named JSON documents in the
// app folder of a OneDrive-like drive API. It knows nothing about
// conversations; it moves bytes and classifies failures.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"chatsync/pkg/logger"
)

const defaultTimeout = 30 * time.Second

// Client resolves logical document paths to store item ids, caching the
// resolution. Two recoveries are local to this client: a fetch against a
// cached id that 404s invalidates the cache and falls back to a name
// search, and an upload that 409s is retried exactly once. Everything
// else propagates as a typed error for the orchestrator to interpret.
type Client struct {
	http *resty.Client
	base string

	mu  sync.Mutex
	ids map[string]string // logical path -> item id
}

// driveItem is the subset of the store's item metadata we consume.
type driveItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size,omitempty"`
}

type childListing struct {
	Value []driveItem `json:"value"`
}

// New builds a client for the drive API rooted at baseURL (e.g.
// "https://graph.example.com/v1.0/me/drive").
func New(baseURL string) *Client {
	h := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(defaultTimeout).
		SetRetryCount(0) // retry policy belongs to callers, not transport
	return &Client{http: h, base: baseURL, ids: make(map[string]string)}
}

// SetTimeout overrides the per-request timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.http.SetTimeout(d)
}

func (c *Client) cachedID(path string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.ids[path]
	return id, ok
}

func (c *Client) storeID(path, id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	c.ids[path] = id
	c.mu.Unlock()
}

func (c *Client) dropID(path string) {
	c.mu.Lock()
	delete(c.ids, path)
	c.mu.Unlock()
}

// Fetch downloads the document at the logical path. Returns ErrNotFound
// when the document does not exist anywhere under the app folder.
func (c *Client) Fetch(ctx context.Context, token, path string) ([]byte, error) {
	if id, ok := c.cachedID(path); ok {
		b, err := c.fetchByID(ctx, token, id)
		if err == nil {
			return b, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
		// cached id went stale (moved or recreated on another device):
		// invalidate and fall through to name resolution
		logger.Warn("remote_stale_item_id", "path", path, "id", id)
		c.dropID(path)
		if rid, rerr := c.resolve(ctx, token, path); rerr == nil {
			c.storeID(path, rid)
			return c.fetchByID(ctx, token, rid)
		}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetDoNotParseResponse(true).
		Get(contentURL(path))
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrTransient, path, err)
	}
	defer resp.RawBody().Close()
	if resp.StatusCode() >= 400 {
		return nil, statusError(classify(resp.StatusCode()), path, resp.StatusCode())
	}
	body, err := readAll(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrTransient, path, err)
	}
	return body, nil
}

// Put uploads the document, replacing any existing content. A conflict
// from the store is retried once immediately; a second conflict
// propagates as ErrConflict.
func (c *Client) Put(ctx context.Context, token, path string, body []byte) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			Put(contentURL(path))
		if err != nil {
			return fmt.Errorf("%w: put %s: %v", ErrTransient, path, err)
		}
		if resp.StatusCode() < 300 {
			var item driveItem
			if jerr := json.Unmarshal(resp.Body(), &item); jerr == nil && item.ID != "" {
				c.storeID(path, item.ID)
			}
			return nil
		}
		lastErr = statusError(classify(resp.StatusCode()), path, resp.StatusCode())
		if resp.StatusCode() != 409 && resp.StatusCode() != 412 {
			return lastErr
		}
		logger.Warn("remote_put_conflict_retry", "path", path, "attempt", attempt+1)
	}
	return lastErr
}

// Delete removes the document. Deleting a document that is already gone
// returns ErrNotFound; most callers treat that as success.
func (c *Client) Delete(ctx context.Context, token, path string) error {
	defer c.dropID(path)
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		Delete(itemPathURL(path))
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrTransient, path, err)
	}
	if resp.StatusCode() >= 400 {
		return statusError(classify(resp.StatusCode()), path, resp.StatusCode())
	}
	return nil
}

// ItemID returns the cached or freshly resolved item id for a path.
func (c *Client) ItemID(ctx context.Context, token, path string) (string, error) {
	if id, ok := c.cachedID(path); ok {
		return id, nil
	}
	id, err := c.resolve(ctx, token, path)
	if err != nil {
		return "", err
	}
	c.storeID(path, id)
	return id, nil
}

// fetchByID downloads content through the opaque item id.
func (c *Client) fetchByID(ctx context.Context, token, id string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetDoNotParseResponse(true).
		Get("/items/" + url.PathEscape(id) + "/content")
	if err != nil {
		return nil, fmt.Errorf("%w: fetch item %s: %v", ErrTransient, id, err)
	}
	defer resp.RawBody().Close()
	if resp.StatusCode() >= 400 {
		return nil, statusError(classify(resp.StatusCode()), id, resp.StatusCode())
	}
	body, err := readAll(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch item %s: %v", ErrTransient, id, err)
	}
	return body, nil
}

// resolve finds the item id for a logical path by listing the parent
// folder and matching the file name. This is the fallback when a cached
// id turns out to be stale.
func (c *Client) resolve(ctx context.Context, token, path string) (string, error) {
	dir, name := splitPath(path)
	var listing childListing
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&listing).
		Get(childrenURL(dir))
	if err != nil {
		return "", fmt.Errorf("%w: resolve %s: %v", ErrTransient, path, err)
	}
	if resp.StatusCode() >= 400 {
		return "", statusError(classify(resp.StatusCode()), path, resp.StatusCode())
	}
	for _, it := range listing.Value {
		if it.Name == name {
			return it.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, path)
}

func contentURL(path string) string {
	return "/special/approot:/" + escapePath(path) + ":/content"
}

func itemPathURL(path string) string {
	return "/special/approot:/" + escapePath(path)
}

func childrenURL(dir string) string {
	if dir == "" {
		return "/special/approot/children"
	}
	return "/special/approot:/" + escapePath(dir) + ":/children"
}

func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

func splitPath(p string) (dir, name string) {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[:i], p[i+1:]
	}
	return "", p
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func readAll(resp *resty.Response) ([]byte, error) {
	return io.ReadAll(resp.RawBody())
}
