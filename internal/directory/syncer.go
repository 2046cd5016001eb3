// Package directory mirrors the upstream resident directory into the local
// residents table, so unit lookups never leave the process.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"society-gate-backend/config"
	"society-gate-backend/internal/model"
	"society-gate-backend/internal/parse"
)

// ResidentWriter persists mirrored directory entries.
type ResidentWriter interface {
	UpsertResidents(ctx context.Context, residents []model.Resident) error
}

// Syncer periodically pulls the directory and upserts it.
type Syncer struct {
	cfg    config.DirectoryConfig
	store  ResidentWriter
	client *http.Client
}

// NewSyncer creates a directory syncer.
func NewSyncer(cfg config.DirectoryConfig, store ResidentWriter) *Syncer {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			slog.Warn("invalid directory proxy URL, not using a proxy", "proxy", cfg.HTTPProxy, "error", err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &Syncer{
		cfg:   cfg,
		store: store,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
	}
}

// Run syncs once immediately and then on every interval until ctx is done.
func (s *Syncer) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		slog.Info("directory sync is disabled")
		return
	}
	slog.Info("starting directory sync", "interval", s.cfg.Interval)

	if _, err := s.SyncOnce(ctx); err != nil {
		slog.Error("directory sync failed", "error", err)
	}

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("directory sync shutting down")
			return
		case <-timer.C:
			if _, err := s.SyncOnce(ctx); err != nil {
				slog.Error("directory sync failed", "error", err)
			}
			timer.Reset(s.cfg.Interval)
		}
	}
}

// SyncOnce pulls every page and upserts the entries it could normalize.
// It returns the number of entries written.
func (s *Syncer) SyncOnce(ctx context.Context) (int, error) {
	var users []apiUser
	total := 1
	for page := 1; (page-1)*s.cfg.PageSize < total; page++ {
		resp, err := s.fetchPage(ctx, page)
		if err != nil {
			// A partial directory would look like removed residents; keep the old mirror.
			return 0, fmt.Errorf("fetch page %d: %w", page, err)
		}
		if resp.Data.Total == 0 || len(resp.Data.Items) == 0 {
			break
		}
		total = resp.Data.Total
		users = append(users, resp.Data.Items...)
		slog.Debug("fetched directory page", "page", page, "total", total, "so_far", len(users))
	}

	residents := make([]model.Resident, 0, len(users))
	for _, u := range users {
		r, err := toResident(u)
		if err != nil {
			slog.Warn("skipping directory entry", "id", u.ID, "error", err)
			continue
		}
		residents = append(residents, r)
	}

	if err := s.store.UpsertResidents(ctx, residents); err != nil {
		return 0, err
	}
	slog.Info("directory sync finished", "fetched", len(users), "written", len(residents))
	return len(residents), nil
}

func toResident(u apiUser) (model.Resident, error) {
	if strings.TrimSpace(u.ID) == "" {
		return model.Resident{}, fmt.Errorf("missing id")
	}
	role, ok := model.ParseRole(strings.ToLower(u.Role))
	if !ok {
		return model.Resident{}, fmt.Errorf("unknown role %q", u.Role)
	}

	r := model.Resident{
		ID:             u.ID,
		Name:           strings.TrimSpace(u.Name),
		Role:           role,
		Phone:          strings.TrimSpace(u.Phone),
		PhoneSecondary: strings.TrimSpace(u.PhoneSecondary),
	}
	if role == model.RoleResident {
		unit, err := parse.UnitNumber(u.UnitNumber)
		if err != nil {
			return model.Resident{}, err
		}
		r.UnitNumber = unit
	}
	return r, nil
}

func (s *Syncer) fetchPage(ctx context.Context, page int) (*apiResponse, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid directory url: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(s.cfg.PageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range s.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal api response: %w", err)
	}
	if apiResp.Code != 0 {
		return nil, fmt.Errorf("directory returned non-zero application code: %d", apiResp.Code)
	}
	return &apiResp, nil
}
