// Package rpcclient implements store.Client over the JSON RPC transport
// described in spec.md §6: one POST per call, bodies and responses shaped
// as plain JSON, with multi() carrying a batch of actions and one result
// slot per action. Grounded on the teacher's internal/rpc/http_client.go
// (baseURL + http.Client + one JSON-body-per-call Execute method),
// generalized from beads' Connect-RPC method routing to the flat
// method-name-in-path shape this spec's store RPC uses.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ankiops/ankiops/internal/ankierr"
	"github.com/ankiops/ankiops/internal/store"
)

// Client speaks the store RPC contract over HTTP, one call per method.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New returns a Client against baseURL (no trailing slash required).
// token, if non-empty, is sent as a Bearer token on every request.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    trimTrailingSlash(baseURL),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return ankierr.Wrap(ankierr.ErrStoreProtocol, fmt.Sprintf("marshal %s params", method), err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return ankierr.Wrap(ankierr.ErrStoreTransport, fmt.Sprintf("build request for %s", method), err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ankierr.Wrap(ankierr.ErrStoreTransport, fmt.Sprintf("call %s", method), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ankierr.Wrap(ankierr.ErrStoreTransport, fmt.Sprintf("read %s response", method), err)
	}
	if resp.StatusCode >= 500 {
		return ankierr.Wrap(ankierr.ErrStoreTransport, method, fmt.Errorf("store returned status %d: %s", resp.StatusCode, respBody))
	}
	if resp.StatusCode >= 400 {
		return ankierr.Wrap(ankierr.ErrStoreProtocol, method, fmt.Errorf("store rejected request (status %d): %s", resp.StatusCode, respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return ankierr.Wrap(ankierr.ErrStoreProtocol, fmt.Sprintf("decode %s response", method), err)
	}
	return nil
}

func (c *Client) DeckNameToIDMap(ctx context.Context) (map[string]int64, error) {
	var out map[string]int64
	if err := c.call(ctx, "deck_name_to_id_map", struct{}{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FindNotesByType(ctx context.Context, typeNames []string) ([]int64, error) {
	var out []int64
	params := struct {
		TypeNames []string `json:"type_names"`
	}{TypeNames: typeNames}
	if err := c.call(ctx, "find_notes_by_type", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) NotesInfo(ctx context.Context, ids []int64) (map[int64]store.NoteInfo, error) {
	var out map[int64]store.NoteInfo
	params := struct {
		IDs []int64 `json:"ids"`
	}{IDs: ids}
	if err := c.call(ctx, "notes_info", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CardsInfo(ctx context.Context, ids []int64) (map[int64]store.CardInfo, error) {
	var out map[int64]store.CardInfo
	params := struct {
		IDs []int64 `json:"ids"`
	}{IDs: ids}
	if err := c.call(ctx, "cards_info", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FindNotesByHiddenKey(ctx context.Context, key string) ([]int64, error) {
	var out []int64
	params := struct {
		Key string `json:"key"`
	}{Key: key}
	if err := c.call(ctx, "find_notes_by_hidden_key", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// wireAction mirrors store.Action for JSON transport: ActionKind is
// already a string type, so it encodes directly.
type wireAction struct {
	Kind   store.ActionKind `json:"kind"`
	Params map[string]any   `json:"params"`
}

// wireResult mirrors store.ActionResult; Err travels as a string since
// the wire format carries "null on success or a string/object on error"
// per spec.md §6.
type wireResult struct {
	Value any    `json:"value"`
	Error string `json:"error,omitempty"`
}

func (c *Client) Multi(ctx context.Context, actions []store.Action) ([]store.ActionResult, error) {
	wireActions := make([]wireAction, len(actions))
	for i, a := range actions {
		wireActions[i] = wireAction{Kind: a.Kind, Params: a.Params}
	}
	params := struct {
		Actions []wireAction `json:"actions"`
	}{Actions: wireActions}

	var out []wireResult
	if err := c.call(ctx, "multi", params, &out); err != nil {
		return nil, err
	}

	results := make([]store.ActionResult, len(out))
	for i, r := range out {
		results[i] = store.ActionResult{Value: r.Value}
		if r.Error != "" {
			results[i].Err = fmt.Errorf("%s", r.Error)
		}
	}
	return results, nil
}

func (c *Client) PushMedia(ctx context.Context, name string, data []byte) error {
	params := struct {
		Name string `json:"name"`
		Data []byte `json:"data"`
	}{Name: name, Data: data}
	return c.call(ctx, "push_media", params, nil)
}

func (c *Client) PullMedia(ctx context.Context, name string) ([]byte, error) {
	var out []byte
	params := struct {
		Name string `json:"name"`
	}{Name: name}
	if err := c.call(ctx, "pull_media", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) MediaDirPath(ctx context.Context) (string, error) {
	var out string
	if err := c.call(ctx, "media_dir_path", struct{}{}, &out); err != nil {
		return "", err
	}
	return out, nil
}

var _ store.Client = (*Client)(nil)
