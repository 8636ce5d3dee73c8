package buzzheavier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// APIError carries the HTTP status of a failed call so callers can
// distinguish conflicts and auth failures from transient transport errors.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("buzzheavier API error (status %d): %s", e.StatusCode, e.Message)
}

func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type AccountInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	RootID string `json:"rootId"`
}

type StorageQuota struct {
	Used      int64 `json:"storageUsed"`
	Total     int64 `json:"storageTotal"`
	Available int64 `json:"storageAvailable"`
}

// Entry is one child of a remote container.
type Entry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	IsDirectory bool   `json:"isDirectory"`
}

type UploadResult struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type Client struct {
	apiBase    *url.URL
	uploadBase *url.URL
	httpClient *http.Client
	token      string
}

// NewClientFromConfig builds the client from the buzzheavier config block.
func NewClientFromConfig(conf *viper.Viper) (*Client, error) {
	return NewClient(
		conf.GetString("buzzheavier.api_url"),
		conf.GetString("buzzheavier.upload_url"),
		conf.GetString("buzzheavier.token"),
		time.Duration(conf.GetInt("sync.timeout_seconds"))*time.Second,
	)
}

func NewClient(apiURL, uploadURL, token string, timeout time.Duration) (*Client, error) {
	apiBase, err := url.Parse(apiURL)
	if err != nil {
		return nil, err
	}
	uploadBase, err := url.Parse(uploadURL)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiBase:    apiBase,
		uploadBase: uploadBase,
		httpClient: &http.Client{Timeout: timeout},
		token:      token,
	}, nil
}

func (c *Client) Request(ctx context.Context, req *http.Request, result interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		var errResp struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Message}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	if result != nil {
		var apiResp struct {
			Data json.RawMessage `json:"data"`
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if json.Unmarshal(body, &apiResp) == nil && len(apiResp.Data) > 0 {
			return json.Unmarshal(apiResp.Data, result)
		}
		return json.Unmarshal(body, result)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, path string, result interface{}) error {
	endpoint := c.apiBase.JoinPath(path).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.Request(ctx, req, result)
}

func (c *Client) Post(ctx context.Context, path string, body, result interface{}) error {
	endpoint := c.apiBase.JoinPath(path).String()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.Request(ctx, req, result)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	endpoint := c.apiBase.JoinPath(path).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	return c.Request(ctx, req, nil)
}

// GetAccountInfo validates the bearer token and returns account metadata,
// including the id of the account's root container.
// GET /account/me
func (c *Client) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	var info AccountInfo
	if err := c.Get(ctx, "/account/me", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetStorageQuota returns used/total/available bytes for the account.
// GET /account/storage
func (c *Client) GetStorageQuota(ctx context.Context) (*StorageQuota, error) {
	var quota StorageQuota
	if err := c.Get(ctx, "/account/storage", &quota); err != nil {
		return nil, err
	}
	if quota.Available == 0 && quota.Total > quota.Used {
		quota.Available = quota.Total - quota.Used
	}
	return &quota, nil
}

// ListChildren lists the direct children of a container.
// GET /fs/{id}
func (c *Client) ListChildren(ctx context.Context, containerID string) ([]Entry, error) {
	var listing struct {
		Children []Entry `json:"children"`
	}
	if err := c.Get(ctx, fmt.Sprintf("/fs/%s", containerID), &listing); err != nil {
		return nil, err
	}
	return listing.Children, nil
}

// CreateDirectory creates a child directory and returns its id. A 409 from
// the server surfaces as an APIError for which IsConflict reports true;
// callers recover the id by re-listing the parent.
// POST /fs/{parentId}
func (c *Client) CreateDirectory(ctx context.Context, parentID, name string) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	body := map[string]string{"name": name, "type": "directory"}
	if err := c.Post(ctx, fmt.Sprintf("/fs/%s", parentID), body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// CheckExists reports whether a container already holds an object with the
// given name, returning its size when present.
func (c *Client) CheckExists(ctx context.Context, containerID, name string) (bool, int64, error) {
	children, err := c.ListChildren(ctx, containerID)
	if err != nil {
		return false, 0, err
	}
	for _, child := range children {
		if !child.IsDirectory && child.Name == name {
			return true, child.Size, nil
		}
	}
	return false, 0, nil
}

// UploadTarget builds the endpoint the object body is PUT to:
// {uploadBase}/{dirId}/{urlencoded filename}
func (c *Client) UploadTarget(containerID, filename string) string {
	return c.uploadBase.JoinPath(containerID, url.PathEscape(filename)).String()
}

// PutObject streams the object body to an upload endpoint.
func (c *Client) PutObject(ctx context.Context, endpoint string, body io.Reader, size int64) (*UploadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")

	var result UploadResult
	if err := c.Request(ctx, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ConfirmUpload verifies the object landed in the container after a PUT.
// The hash is advisory: the server does not expose digests, so the check is
// by name and non-zero size.
func (c *Client) ConfirmUpload(ctx context.Context, containerID, filename, hash string) (bool, error) {
	exists, size, err := c.CheckExists(ctx, containerID, filename)
	if err != nil {
		return false, err
	}
	return exists && size > 0, nil
}

// DeleteObject removes a named object from a container.
func (c *Client) DeleteObject(ctx context.Context, containerID, filename string) error {
	children, err := c.ListChildren(ctx, containerID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if !child.IsDirectory && child.Name == filename {
			return c.Delete(ctx, fmt.Sprintf("/fs/%s", child.ID))
		}
	}
	return &APIError{StatusCode: http.StatusNotFound, Message: fmt.Sprintf("object %s not found", filename)}
}
