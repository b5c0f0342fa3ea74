package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/okian/evalboard/pkg/logger"
)

// sessionHeader names the upload session; it matches the server's header.
const sessionHeader = "X-Session-ID"

// Client talks to the evalboard HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// Health checks the metrics endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil)
}

// Leaderboard fetches up to limit ranked entries for mode; empty mode means
// all modes.
func (c *Client) Leaderboard(ctx context.Context, mode string, limit int) ([]Entry, error) {
	path := "/leaderboard?limit=" + strconv.Itoa(limit)
	if mode != "" {
		path += "&mode=" + url.QueryEscape(mode)
	}
	var entries []Entry
	if err := c.get(ctx, path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// History fetches every recorded result.
func (c *Client) History(ctx context.Context) ([]Record, error) {
	var recs []Record
	if err := c.get(ctx, "/history", &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// Submit uploads one prediction file. A non-nil response with a status
// other than 200 means the upload was refused.
func (c *Client) Submit(ctx context.Context, up Upload, modes []string) (int, *submitResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("user", up.User)
	for _, m := range modes {
		_ = mw.WriteField("mode", m)
	}
	fw, err := mw.CreateFormFile("file", up.File)
	if err != nil {
		return 0, nil, err
	}
	if _, err := fw.Write(up.Data); err != nil {
		return 0, nil, err
	}
	if err := mw.Close(); err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submissions", &body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(sessionHeader, up.Session)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil, nil
	}
	var out submitResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("decode submission response: %w", err)
	}
	return resp.StatusCode, &out, nil
}

// submitUploads sends uploads with cfg.Workers concurrent uploaders and
// returns the number of mode records each user got committed.
func submitUploads(ctx context.Context, cfg *Config, client *Client, uploads []Upload, stats *Stats) (map[string]int, error) {
	log := logger.Get()
	log.Info(ctx, "submitting uploads", logger.Int("uploads", len(uploads)), logger.Int("workers", cfg.Workers))

	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), max(1, int(cfg.RPS)))
	}

	var (
		submitted, recorded, duplicates, rejected, failed atomic.Int64
		perUser                                           = make([]atomic.Int64, len(uploads))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, up := range uploads {
		if limiter != nil {
			if err := limiter.Wait(gctx); err != nil {
				break
			}
		}
		g.Go(func() error {
			status, resp, err := client.Submit(gctx, up, cfg.Modes)
			submitted.Add(1)
			switch {
			case err != nil || status >= http.StatusInternalServerError:
				failed.Add(1)
				if cfg.Verbose {
					log.Warn(gctx, "upload failed", logger.String("user", up.User), logger.Int("status", status), logger.Error(err))
				}
				return nil
			case resp == nil:
				rejected.Add(1)
				if cfg.Verbose {
					log.Warn(gctx, "upload rejected", logger.String("user", up.User), logger.Int("status", status))
				}
				return nil
			}
			for _, out := range resp.Records {
				switch {
				case out.Recorded:
					recorded.Add(1)
					perUser[i].Add(1)
				case out.Duplicate:
					duplicates.Add(1)
				default:
					failed.Add(1)
				}
			}
			if cfg.Verbose {
				log.Info(gctx, "upload scored",
					logger.String("user", up.User),
					logger.Float64("score", resp.Evaluation.Score),
					logger.Bool("repeat", up.Repeat))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("submission interrupted: %w", err)
	}

	stats.Submitted = int(submitted.Load())
	stats.Recorded = int(recorded.Load())
	stats.Duplicates = int(duplicates.Load())
	stats.Rejected = int(rejected.Load())
	stats.Failed = int(failed.Load())

	byUser := make(map[string]int)
	for i, up := range uploads {
		byUser[up.User] += int(perUser[i].Load())
	}
	log.Info(ctx, "upload submission completed",
		logger.Int("recorded", stats.Recorded),
		logger.Int("duplicates", stats.Duplicates),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed))
	return byUser, nil
}
