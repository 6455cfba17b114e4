package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPObjectStore talks to a remote storage element exposing
// PUT/GET/DELETE {endpoint}/objects/{key}.
type HTTPObjectStore struct {
	endpoint   string
	publicURL  string
	token      string
	httpClient *http.Client
}

// NewHTTPObjectStore builds a client for the remote store. publicURL is the
// prefix handed back to callers; it defaults to the endpoint.
func NewHTTPObjectStore(endpoint, publicURL, token string, timeout time.Duration) (*HTTPObjectStore, error) {
	endpoint = strings.TrimRight(endpoint, "/")
	if endpoint == "" {
		return nil, fmt.Errorf("storage endpoint required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("parse storage endpoint: %w", err)
	}
	if publicURL == "" {
		publicURL = endpoint + "/objects"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPObjectStore{
		endpoint:  endpoint,
		publicURL: publicURL,
		token:     token,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{MaxIdleConnsPerHost: 10},
		},
	}, nil
}

// Put uploads r under key.
func (s *HTTPObjectStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	req, err := s.newRequest(ctx, http.MethodPut, key, r)
	if err != nil {
		return "", err
	}
	if size >= 0 {
		req.ContentLength = size
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return "", fmt.Errorf("put object %s: unexpected status %d", key, resp.StatusCode)
	}
	return joinURL(s.publicURL, key), nil
}

// Delete removes key. A 404 counts as success.
func (s *HTTPObjectStore) Delete(ctx context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	req, err := s.newRequest(ctx, http.MethodDelete, key, http.NoBody)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("delete object %s: unexpected status %d", key, resp.StatusCode)
	}
}

// Open streams key. The caller must close the returned body.
func (s *HTTPObjectStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	req, err := s.newRequest(ctx, http.MethodGet, key, http.NoBody)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, nil
	case http.StatusNotFound:
		drain(resp)
		return nil, ErrObjectNotFound
	default:
		drain(resp)
		return nil, fmt.Errorf("get object %s: unexpected status %d", key, resp.StatusCode)
	}
}

func (s *HTTPObjectStore) newRequest(ctx context.Context, method, key string, body io.Reader) (*http.Request, error) {
	reqURL := s.endpoint + "/objects/" + escapeKey(key)
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return req, nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
