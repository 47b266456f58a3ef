// Package shortcut provisions OneLake shortcuts through the Fabric items
// API. It is ancillary to session setup: the session manager calls
// CreateShortcuts best-effort after the first successful session creation.
package shortcut

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lakehouse-tools/livygo/internal/transport"
)

const defaultBaseURL = "https://api.fabric.microsoft.com/v1"

// deleteSettleWait gives the service time to finish removing a shortcut
// before a replacement is created at the same path.
const deleteSettleWait = 30 * time.Second

const httpTimeout = 60 * time.Second

// TokenSource supplies a raw bearer token. Satisfied by *auth.Cache.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Shortcut is one named pointer from a lakehouse path to a OneLake source.
type Shortcut struct {
	Path              string
	Name              string
	SourcePath        string
	SourceWorkspaceID string
	SourceItemID      string
}

func (s Shortcut) String() string {
	return s.Path + "/" + s.Name
}

type Client struct {
	tokens      TokenSource
	workspaceID string
	itemID      string
	baseURL     string
	http        *http.Client
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// New builds a shortcut client against the given workspace and item.
// An empty baseURL selects the public Fabric API endpoint.
func New(tokens TokenSource, workspaceID, itemID, baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		tokens:      tokens,
		workspaceID: workspaceID,
		itemID:      itemID,
		baseURL:     baseURL,
		http:        transport.New(httpTimeout, logger),
		logger:      logger,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// spec wire format: the shortcuts_json document from configuration.
type specFile struct {
	Shortcuts []specEntry `json:"shortcuts"`
}

type specEntry struct {
	Path              string `json:"path"`
	ShortcutName      string `json:"shortcut_name"`
	SourcePath        string `json:"source_path"`
	SourceWorkspaceID string `json:"source_workspace_id"`
	SourceItemID      string `json:"source_item_id"`
}

// target wire format used by both the create body and the GET response.
type targetBody struct {
	Type    string   `json:"type,omitempty"`
	OneLake *oneLake `json:"onelake"`
}

type oneLake struct {
	WorkspaceID string `json:"workspaceId"`
	ItemID      string `json:"itemId"`
	Path        string `json:"path"`
}

type shortcutBody struct {
	Path   string     `json:"path"`
	Name   string     `json:"name"`
	Target targetBody `json:"target"`
}

// CreateShortcuts parses a shortcuts JSON document and provisions every
// entry, skipping those that already exist with a matching target.
func (c *Client) CreateShortcuts(ctx context.Context, jsonSpec string) error {
	var spec specFile
	if err := json.Unmarshal([]byte(jsonSpec), &spec); err != nil {
		return fmt.Errorf("parsing shortcuts spec: %w", err)
	}
	for _, entry := range spec.Shortcuts {
		sc := Shortcut{
			Path:              entry.Path,
			Name:              entry.ShortcutName,
			SourcePath:        entry.SourcePath,
			SourceWorkspaceID: entry.SourceWorkspaceID,
			SourceItemID:      entry.SourceItemID,
		}
		if err := c.CreateShortcut(ctx, sc); err != nil {
			return fmt.Errorf("shortcut %s: %w", sc, err)
		}
	}
	return nil
}

// CreateShortcut provisions one shortcut unless an identical one already
// exists. A stale shortcut at the same path is deleted first.
func (c *Client) CreateShortcut(ctx context.Context, sc Shortcut) error {
	exists, err := c.checkAndReplace(ctx, sc)
	if err != nil {
		return err
	}
	if exists {
		c.logger.Debug("shortcut already exists, skipping", "shortcut", sc.String())
		return nil
	}

	body := shortcutBody{
		Path: sc.Path,
		Name: sc.Name,
		Target: targetBody{
			OneLake: &oneLake{
				WorkspaceID: sc.SourceWorkspaceID,
				ItemID:      sc.SourceItemID,
				Path:        sc.SourcePath,
			},
		},
	}
	resp, err := c.do(ctx, http.MethodPost, c.shortcutsURL(), body)
	if err != nil {
		return fmt.Errorf("creating shortcut: %w", err)
	}
	defer resp.Body.Close()
	if err := transport.CheckStatus(resp); err != nil {
		return fmt.Errorf("creating shortcut: %w", err)
	}
	c.logger.Debug("created shortcut", "shortcut", sc.String())
	return nil
}

// checkAndReplace reports whether an identical shortcut already exists.
// 404 means absent; an existing shortcut with a different OneLake target is
// deleted and reported absent so the caller recreates it.
func (c *Client) checkAndReplace(ctx context.Context, sc Shortcut) (bool, error) {
	url := c.shortcutsURL() + "/" + sc.Path + "/" + sc.Name
	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("checking shortcut: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err := transport.CheckStatus(resp); err != nil {
		return false, fmt.Errorf("checking shortcut: %w", err)
	}

	var existing shortcutBody
	if err := json.NewDecoder(resp.Body).Decode(&existing); err != nil {
		return false, fmt.Errorf("parsing shortcut response: %w", err)
	}

	if existing.Target.OneLake != nil &&
		existing.Target.OneLake.WorkspaceID == sc.SourceWorkspaceID &&
		existing.Target.OneLake.ItemID == sc.SourceItemID &&
		existing.Target.OneLake.Path == sc.SourcePath {
		return true, nil
	}

	c.logger.Debug("shortcut exists with a different target, replacing",
		"shortcut", sc.String())
	if err := c.DeleteShortcut(ctx, sc.Path, sc.Name); err != nil {
		return false, err
	}
	return false, nil
}

// DeleteShortcut removes a shortcut and waits for the deletion to settle.
func (c *Client) DeleteShortcut(ctx context.Context, path, name string) error {
	url := c.shortcutsURL() + "/" + path + "/" + name
	resp, err := c.do(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("deleting shortcut: %w", err)
	}
	defer resp.Body.Close()
	if err := transport.CheckStatus(resp); err != nil {
		return fmt.Errorf("deleting shortcut: %w", err)
	}
	c.logger.Debug("deleted shortcut", "path", path, "name", name)
	return c.sleep(ctx, deleteSettleWait)
}

func (c *Client) shortcutsURL() string {
	return fmt.Sprintf("%s/workspaces/%s/items/%s/shortcuts", c.baseURL, c.workspaceID, c.itemID)
}

func (c *Client) do(ctx context.Context, method, url string, body any) (*http.Response, error) {
	var rdr *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		rdr = bytes.NewReader(data)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return nil, err
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return c.http.Do(req)
}
