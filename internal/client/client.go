// Package client is the provenance-aware Store client: every request
// carries the agent identity headers, transient failures retry with
// jittered backoff, and outcomes feed the host-wide coordination store.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/trinsiklabs/onelist/internal/coord"
	"github.com/trinsiklabs/onelist/pkg/protocol"
)

const (
	maxAttempts    = 3
	baseRetryDelay = 500 * time.Millisecond
)

// Client talks to the Store on behalf of one agent identity.
type Client struct {
	baseURL  string
	token    string
	identity Identity
	http     *http.Client
	coord    *coord.Store  // nil disables coordination accounting
	limiter  *rate.Limiter // outbound pacing, shared across calls
	sleep    func(time.Duration)
}

// New creates a Store client. coordStore may be nil (e.g. server-side use).
func New(baseURL, token string, id Identity, coordStore *coord.Store) *Client {
	return &Client{
		baseURL:  baseURL,
		token:    token,
		identity: id,
		http:     &http.Client{Timeout: 30 * time.Second},
		coord:    coordStore,
		// Half the cooperative window rate: leaves headroom for siblings.
		limiter: rate.NewLimiter(rate.Every(4*time.Second), 5),
		sleep:   time.Sleep,
	}
}

// Identity returns the identity this client stamps on requests.
func (c *Client) Identity() Identity { return c.identity }

// do issues one Store request with retries. mutating calls feed the
// coordination store's write window and circuit breaker.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, mutating bool) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, retryAfter, err := c.once(ctx, method, path, payload, out)
		if err == nil {
			if mutating && c.coord != nil {
				c.coord.RecordWrite(c.identity.Kind)
			}
			return nil
		}
		lastErr = err

		if apiErr, ok := err.(*APIError); ok && !retryable(status, nil) {
			// 4xx other than 429: the caller's problem, not an outage.
			return apiErr
		}
		if attempt == maxAttempts {
			break
		}

		delay := c.backoff(attempt)
		if retryAfter > 0 {
			delay = retryAfter
		}
		slog.Debug("store request retrying", "path", path, "attempt", attempt, "delay", delay, "error", err)
		c.sleep(delay)
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
	}

	if c.coord != nil {
		c.coord.RecordFailure()
	}
	return lastErr
}

// once performs a single HTTP exchange.
func (c *Client) once(ctx context.Context, method, path string, payload []byte, out interface{}) (status int, retryAfter time.Duration, err error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set(protocol.HeaderAgentID, c.identity.Kind)
	req.Header.Set(protocol.HeaderAgentVersion, c.identity.Version)
	req.Header.Set(protocol.HeaderAgentInstanceID, c.identity.InstanceID)
	if c.identity.SubagentID != "" {
		req.Header.Set(protocol.HeaderAgentSubagentID, c.identity.SubagentID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, perr := strconv.Atoi(ra); perr == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		var envelope protocol.ErrorBody
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if jerr := json.Unmarshal(data, &envelope); jerr == nil && envelope.Error.Code != "" {
			return resp.StatusCode, retryAfter, &APIError{
				Status: resp.StatusCode, Code: envelope.Error.Code, Message: envelope.Error.Message,
			}
		}
		return resp.StatusCode, retryAfter, &APIError{
			Status: resp.StatusCode, Code: codeForStatus(resp.StatusCode), Message: string(data),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, 0, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, 0, nil
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return protocol.CodeUnauthorized
	case http.StatusTooManyRequests:
		return protocol.CodeRateLimited
	case http.StatusNotFound:
		return protocol.CodeNotFound
	}
	return protocol.CodeInternal
}

// backoff returns the jittered exponential delay for the given attempt.
func (c *Client) backoff(attempt int) time.Duration {
	d := baseRetryDelay << uint(attempt-1)
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	return d + jitter
}

// CreateEntry creates an entry with this client's provenance.
func (c *Client) CreateEntry(ctx context.Context, req *protocol.CreateEntryRequest) (*protocol.EntryResponse, error) {
	var out protocol.EntryResponse
	if err := c.do(ctx, http.MethodPost, protocol.APIPrefix+"/entries", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateEntry mutates title/metadata/content. Type and provenance are immutable.
func (c *Client) UpdateEntry(ctx context.Context, id string, req *protocol.UpdateEntryRequest) (*protocol.EntryResponse, error) {
	var out protocol.EntryResponse
	if err := c.do(ctx, http.MethodPut, protocol.APIPrefix+"/entries/"+id, req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteEntry removes an entry.
func (c *Client) DeleteEntry(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, protocol.APIPrefix+"/entries/"+id, nil, nil, true)
}

// AppendChatMessage appends one message to a chat stream (10 s budget).
func (c *Client) AppendChatMessage(ctx context.Context, req *protocol.AppendRequest) (*protocol.AppendResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	var out protocol.AppendResponse
	if err := c.do(ctx, http.MethodPost, protocol.APIPrefix+"/chat-stream/append", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddReaction records an emoji reaction against a previously appended message.
func (c *Client) AddReaction(ctx context.Context, req *protocol.ReactionRequest) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.do(ctx, http.MethodPost, protocol.APIPrefix+"/chat-stream/reaction", req, nil, true)
}

// Search queries the Store (8 s budget). With neither include nor exclude
// sets, the calling agent kind is excluded to prevent self-retrieval
// feedback loops.
func (c *Client) Search(ctx context.Context, req *protocol.SearchRequest) (*protocol.SearchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()

	if len(req.IncludeAgents) == 0 && len(req.ExcludeAgents) == 0 {
		req.ExcludeAgents = []string{c.identity.Kind}
	}

	var out protocol.SearchResponse
	err := c.do(ctx, http.MethodPost, protocol.APIPrefix+"/search", req, &out, false)
	if c.coord != nil {
		c.coord.RecordSearch(err == nil && len(out.Results) > 0)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckDerivation runs the Store's pre-flight derivation probe.
func (c *Client) CheckDerivation(ctx context.Context, req *protocol.CheckDerivationRequest) (*protocol.CheckDerivationResponse, error) {
	var out protocol.CheckDerivationResponse
	if err := c.do(ctx, http.MethodPost, protocol.APIPrefix+"/memories/check-derivation", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateRelationship adds a typed edge between two entries.
func (c *Client) CreateRelationship(ctx context.Context, req *protocol.RelationshipRequest) error {
	return c.do(ctx, http.MethodPost, protocol.APIPrefix+"/relationships", req, nil, true)
}

// ClaimTask attempts an exclusive claim. Exactly one concurrent caller wins.
func (c *Client) ClaimTask(ctx context.Context, taskID string) (*protocol.ClaimResponse, error) {
	var out protocol.ClaimResponse
	err := c.do(ctx, http.MethodPost, protocol.APIPrefix+"/tasks/"+taskID+"/claim", nil, &out, true)
	if err != nil {
		if apiErr, ok := err.(*APIError); ok && apiErr.Code == protocol.CodeAlreadyClaimed {
			return &protocol.ClaimResponse{OK: false, Claimed: false, Reason: apiErr.Code}, nil
		}
		return nil, err
	}
	return &out, nil
}

// ImportPreview lists importable session files without ingesting.
func (c *Client) ImportPreview(ctx context.Context, req *protocol.ImportRequest) ([]protocol.ImportFileInfo, error) {
	q := url.Values{}
	q.Set("root", req.Root)
	if req.Filter.AgentKind != "" {
		q.Set("agent_kind", req.Filter.AgentKind)
	}
	var out struct {
		OK    bool                      `json:"ok"`
		Files []protocol.ImportFileInfo `json:"files"`
	}
	if err := c.do(ctx, http.MethodGet, protocol.APIPrefix+"/openclaw/import/preview?"+q.Encode(), nil, &out, false); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// ImportRun runs a bulk historical import on the Store.
func (c *Client) ImportRun(ctx context.Context, req *protocol.ImportRequest) (*protocol.ImportResponse, error) {
	var out protocol.ImportResponse
	if err := c.do(ctx, http.MethodPost, protocol.APIPrefix+"/openclaw/import", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyChain asks the Store to walk the owner's memory hash chain.
func (c *Client) VerifyChain(ctx context.Context) (*protocol.ChainVerifyResponse, error) {
	var out protocol.ChainVerifyResponse
	if err := c.do(ctx, http.MethodGet, protocol.APIPrefix+"/memories/chain/verify", nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}
