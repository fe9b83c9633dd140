// Package catalog provides a client for the remote ambient-sound catalog
// and reminder service.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ambientbox/internal/app/playback"
	"github.com/osa030/ambientbox/internal/domain/reminder"
	"github.com/osa030/ambientbox/internal/domain/track"
)

// APIKeyHeader carries the fixed API key on every request.
const APIKeyHeader = "X-API-KEY"

// maxPictureBytes caps the size of a downloaded picture.
const maxPictureBytes = 16 << 20

// SortOrder is the release date order of the music list.
type SortOrder string

const (
	SortAscending  SortOrder = "ascending"
	SortDescending SortOrder = "descending"
)

// ParseSortOrder parses a sort order. Empty means ascending.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(strings.ToLower(s)) {
	case SortAscending, "":
		return SortAscending, nil
	case SortDescending:
		return SortDescending, nil
	default:
		return "", errors.Newf("invalid sort order: %s", s)
	}
}

// APIError is a non-2xx response of the catalog service.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("catalog API error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("catalog API error: status=%d detail=%s", e.StatusCode, e.Detail)
}

// IsNotFound reports whether err is a 404 from the catalog service.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401 or 403 from the catalog service.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
}

// Config represents catalog client configuration.
type Config struct {
	Endpoint     string
	APIKey       string
	Timeout      time.Duration // Per request, 10s when zero
	ListCacheTTL time.Duration // Music list cache lifetime, disabled when zero
}

// musicResponse is a /music/list entry.
type musicResponse struct {
	MusicID int    `json:"music_id"`
	Title   string `json:"title"`
	Date    string `json:"date"`
	Author  string `json:"author"`
}

// reminderResponse is a /reminders entry.
type reminderResponse struct {
	ReminderID int  `json:"reminder_id"`
	Hour       int  `json:"hour"`
	Minute     int  `json:"minute"`
	MusicID    int  `json:"music_id"`
	Enabled    bool `json:"enabled"`
}

// reminderPatchRequest only carries the fields being changed.
type reminderPatchRequest struct {
	Hour    *int  `json:"hour,omitempty"`
	Minute  *int  `json:"minute,omitempty"`
	Enabled *bool `json:"enabled,omitempty"`
}

// errorResponse is the error body of the catalog service.
type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// listCacheEntry represents a cached music list.
type listCacheEntry struct {
	tracks  []track.Track
	expires time.Time
}

// Client is a catalog service client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	ttl        time.Duration

	// Cache for music lists
	listCache map[string]listCacheEntry
	cacheMu   sync.RWMutex

	now        func() time.Time
	maxPicture int
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("catalog API key is required")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Newf("invalid catalog endpoint: %q", cfg.Endpoint)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.Endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
		ttl:        cfg.ListCacheTTL,
		listCache:  make(map[string]listCacheEntry),
		now:        time.Now,
		maxPicture: maxPictureBytes,
	}, nil
}

// ListMusic returns the catalog sorted by release date, optionally filtered
// by a case-insensitive title term.
func (c *Client) ListMusic(ctx context.Context, order SortOrder, filter string) ([]track.Track, error) {
	if order == "" {
		order = SortAscending
	}
	cacheKey := string(order) + "\x00" + filter

	if tracks, ok := c.cachedList(cacheKey); ok {
		zlog.Debug().Msgf("catalog: music list cache hit: order=%s filter=%q", order, filter)
		return tracks, nil
	}

	params := url.Values{}
	params.Set("sort_order", string(order))
	if filter != "" {
		params.Set("filter_term", filter)
	}

	var resp []musicResponse
	if err := c.doJSON(ctx, http.MethodGet, "/music/list?"+params.Encode(), nil, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to list music")
	}

	tracks := make([]track.Track, 0, len(resp))
	for _, m := range resp {
		tracks = append(tracks, track.Track{
			ID:     m.MusicID,
			Title:  m.Title,
			Author: m.Author,
			Date:   m.Date,
		})
	}

	if c.ttl > 0 {
		c.cacheMu.Lock()
		c.listCache[cacheKey] = listCacheEntry{tracks: tracks, expires: c.now().Add(c.ttl)}
		c.cacheMu.Unlock()
	}

	return copyTracks(tracks), nil
}

func (c *Client) cachedList(key string) ([]track.Track, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()

	entry, ok := c.listCache[key]
	if !ok || !c.now().Before(entry.expires) {
		return nil, false
	}
	return copyTracks(entry.tracks), true
}

// InvalidateCache drops cached music lists.
func (c *Client) InvalidateCache() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.listCache = make(map[string]listCacheEntry)
}

// Picture downloads the JPEG artwork of a track.
func (c *Client) Picture(ctx context.Context, trackID int) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/music/picture?music_id="+strconv.Itoa(trackID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/jpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, errors.Wrapf(err, "failed to fetch picture of track %d", trackID)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(c.maxPicture)+1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read picture")
	}
	if len(data) > c.maxPicture {
		return nil, errors.Newf("picture of track %d exceeds %d bytes", trackID, c.maxPicture)
	}
	return data, nil
}

// AudioSource returns the location of a track's audio. The API key travels
// in the source header.
func (c *Client) AudioSource(trackID int) playback.Source {
	header := http.Header{}
	header.Set(APIKeyHeader, c.apiKey)
	header.Set("Accept", "audio/mpeg")
	return playback.Source{
		URL:    c.baseURL + "/music/audio?music_id=" + strconv.Itoa(trackID),
		Header: header,
	}
}

// ListReminders returns all reminders, or those of one track when trackID
// is non-nil.
func (c *Client) ListReminders(ctx context.Context, trackID *int) ([]reminder.Reminder, error) {
	path := "/reminders/list"
	if trackID != nil {
		path += "?music_id=" + strconv.Itoa(*trackID)
	}

	var resp []reminderResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to list reminders")
	}

	reminders := make([]reminder.Reminder, 0, len(resp))
	for _, r := range resp {
		reminders = append(reminders, r.toDomain())
	}
	return reminders, nil
}

// PatchReminder updates the set fields of a reminder and returns the result.
func (c *Client) PatchReminder(ctx context.Context, id int, patch reminder.Patch) (reminder.Reminder, error) {
	if err := patch.Validate(); err != nil {
		return reminder.Reminder{}, err
	}

	body := reminderPatchRequest{Hour: patch.Hour, Minute: patch.Minute, Enabled: patch.Enabled}
	var resp reminderResponse
	if err := c.doJSON(ctx, http.MethodPatch, "/reminders/"+strconv.Itoa(id), body, &resp); err != nil {
		return reminder.Reminder{}, errors.Wrapf(err, "failed to update reminder %d", id)
	}
	return resp.toDomain(), nil
}

// ResetReminders restores the default reminders of this API key.
func (c *Client) ResetReminders(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/reminders", nil, nil); err != nil {
		return errors.Wrap(err, "failed to reset reminders")
	}
	return nil
}

func (r reminderResponse) toDomain() reminder.Reminder {
	return reminder.Reminder{
		ID:      r.ReminderID,
		Hour:    r.Hour,
		Minute:  r.Minute,
		TrackID: r.MusicID,
		Enabled: r.Enabled,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set(APIKeyHeader, c.apiKey)
	return req, nil
}

// doJSON sends in as JSON (when non-nil) and decodes the response into out
// (when non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

// checkResponse converts non-2xx responses to *APIError.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var er errorResponse
	if err := json.Unmarshal(data, &er); err == nil && len(er.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(er.Detail, &detail); err == nil {
			apiErr.Detail = detail
		} else {
			apiErr.Detail = string(er.Detail)
		}
	} else {
		apiErr.Detail = strings.TrimSpace(string(data))
	}
	return apiErr
}

func copyTracks(tracks []track.Track) []track.Track {
	out := make([]track.Track, len(tracks))
	copy(out, tracks)
	return out
}
