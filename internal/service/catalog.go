package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"bookshelf/internal/models"
	"bookshelf/internal/parser"
)

const (
	DefaultBaseURL    = "https://www.googleapis.com/books/v1"
	DefaultMaxResults = 20

	maxResponseBytes = 2 << 20
)

var ErrEmptyQuery = errors.New("empty search query")

// ErrorKind classifies catalog failures.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindStatus    ErrorKind = "status"
	KindDecode    ErrorKind = "decode"
	KindNotFound  ErrorKind = "not_found"
)

// CatalogError is returned for every failed catalog request.
type CatalogError struct {
	Op     string
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *CatalogError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("catalog %s: %s (HTTP %d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("catalog %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *CatalogError) Unwrap() error { return e.Err }

// KindOf returns the kind of a catalog error, or "" for other errors.
func KindOf(err error) ErrorKind {
	var ce *CatalogError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// CatalogClient talks to the Google Books volumes API.
type CatalogClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxResults int
	logger     *zap.Logger
}

type Option func(*CatalogClient)

func WithAPIKey(key string) Option {
	return func(c *CatalogClient) { c.apiKey = key }
}

func WithMaxResults(n int) Option {
	return func(c *CatalogClient) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *CatalogClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewCatalogClient(client *http.Client, baseURL string, opts ...Option) *CatalogClient {
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &CatalogClient{
		httpClient: client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxResults: DefaultMaxResults,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search looks up volumes matching a free-text query. No matches is an empty
// slice with a nil error.
func (c *CatalogClient) Search(ctx context.Context, query string) ([]models.BookSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("maxResults", strconv.Itoa(c.maxResults))
	targetURL := c.baseURL + "/volumes?" + c.withKey(params).Encode()

	body, err := c.get(ctx, "search", targetURL)
	if err != nil {
		c.logger.Warn("catalog search failed", zap.String("query", query), zap.Error(err))
		return nil, err
	}

	books, err := parser.ParseSearch(bytes.NewReader(body))
	if err != nil {
		err = &CatalogError{Op: "search", Kind: KindDecode, Err: err}
		c.logger.Warn("catalog search failed", zap.String("query", query), zap.Error(err))
		return nil, err
	}

	c.logger.Debug("catalog search", zap.String("query", query), zap.Int("results", len(books)))
	return books, nil
}

// FetchDetails loads the full record of one volume.
func (c *CatalogClient) FetchDetails(ctx context.Context, id string) (models.BookDetails, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.BookDetails{}, &CatalogError{Op: "details", Kind: KindNotFound, Err: errors.New("empty volume id")}
	}

	targetURL := c.baseURL + "/volumes/" + url.PathEscape(id)
	if c.apiKey != "" {
		targetURL += "?" + c.withKey(url.Values{}).Encode()
	}

	body, err := c.get(ctx, "details", targetURL)
	if err != nil {
		c.logger.Warn("catalog details failed", zap.String("id", id), zap.Error(err))
		return models.BookDetails{}, err
	}

	details, err := parser.ParseVolume(bytes.NewReader(body))
	if err != nil {
		err = &CatalogError{Op: "details", Kind: KindDecode, Err: err}
		c.logger.Warn("catalog details failed", zap.String("id", id), zap.Error(err))
		return models.BookDetails{}, err
	}
	return details, nil
}

func (c *CatalogClient) withKey(params url.Values) url.Values {
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	return params
}

func (c *CatalogClient) get(ctx context.Context, op string, targetURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, &CatalogError{Op: op, Kind: KindTransport, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &CatalogError{Op: op, Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		kind := KindStatus
		if resp.StatusCode == http.StatusNotFound {
			kind = KindNotFound
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, &CatalogError{Op: op, Kind: kind, Status: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, &CatalogError{Op: op, Kind: KindTransport, Err: fmt.Errorf("read response: %w", err)}
	}
	if n > maxResponseBytes {
		return nil, &CatalogError{Op: op, Kind: KindDecode, Err: errors.New("response too large")}
	}
	return buf.Bytes(), nil
}
