// Package savant reads Baseball Savant statcast search exports. The poll
// loop uses it to refine win-expectancy deltas; the clip renderer uses it to
// locate play video.
package savant

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const DefaultBase = "https://baseballsavant.mlb.com"

// ErrUnavailable wraps network and HTTP failures of the search endpoint.
var ErrUnavailable = errors.New("savant unavailable")

// Row is one pitch of the statcast export, keyed by CSV header.
type Row map[string]string

func (r Row) Get(k string) string { return strings.TrimSpace(r[k]) }

func (r Row) Int(k string) (int, bool) {
	n, err := strconv.Atoi(r.Get(k))
	return n, err == nil
}

func (r Row) Float(k string) (float64, bool) {
	v := r.Get(k)
	if v == "" || strings.EqualFold(v, "null") || strings.EqualFold(v, "nan") {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	return f, err == nil
}

type Client struct {
	base    string
	http    *http.Client
	timeout time.Duration
}

func New(base string, timeout time.Duration, hc *http.Client) *Client {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = DefaultBase
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{base: base, http: hc, timeout: timeout}
}

func (c *Client) Base() string { return c.base }

// Search returns every pitch row of one game. date is YYYY-MM-DD; the season
// filter is taken from its year.
func (c *Client) Search(ctx context.Context, gamePK int64, date string) ([]Row, error) {
	season := date
	if len(date) >= 4 {
		season = date[:4]
	}
	q := url.Values{}
	q.Set("all", "true")
	q.Set("type", "details")
	q.Set("player_type", "batter")
	q.Set("hfGT", "R|")
	q.Set("hfSea", season+"|")
	q.Set("game_date_gt", date)
	q.Set("game_date_lt", date)
	q.Set("game_pk", strconv.FormatInt(gamePK, 10))
	q.Set("min_pitches", "0")
	q.Set("min_results", "0")
	q.Set("min_pas", "0")
	q.Set("group_by", "name")
	q.Set("sort_col", "pitches")
	q.Set("sort_order", "desc")

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/statcast_search/csv?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: statcast search: status %d", ErrUnavailable, resp.StatusCode)
	}
	rows, err := ParseCSV(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rows, nil
}

// ParseCSV decodes a statcast export. An empty body yields no rows.
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, err
		}
		if len(rec) < len(header) {
			continue
		}
		row := make(Row, len(header))
		for i, h := range header {
			row[h] = rec[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}
