package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL   = "https://www.googleapis.com/drive/v3"
	DefaultUploadURL = "https://www.googleapis.com/upload/drive/v3"

	folderMimeType = "application/vnd.google-apps.folder"
)

type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Client is a thin hand client over the Drive v3 folder and upload surface.
type Client struct {
	BaseURL   string
	UploadURL string
	Tokens    TokenProvider
	HTTP      *http.Client
}

func NewClient(tokens TokenProvider) *Client {
	return &Client{
		BaseURL:   DefaultBaseURL,
		UploadURL: DefaultUploadURL,
		Tokens:    tokens,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateFolder creates a folder under parentID and returns its id and
// browser link.
func (c *Client) CreateFolder(ctx context.Context, parentID, name string) (string, string, error) {
	body := map[string]any{
		"name":     name,
		"mimeType": folderMimeType,
		"parents":  []string{parentID},
	}

	var created struct {
		ID          string `json:"id"`
		WebViewLink string `json:"webViewLink"`
	}
	err := c.doJSON(ctx, http.MethodPost, c.BaseURL+"/files?fields=id,webViewLink", body, &created)
	if err != nil {
		return "", "", fmt.Errorf("create folder: %w", err)
	}
	if created.ID == "" {
		return "", "", fmt.Errorf("create folder: response missing id")
	}
	return created.ID, created.WebViewLink, nil
}

// AllowLinkReading opens the folder to anyone holding the link.
func (c *Client) AllowLinkReading(ctx context.Context, folderID string) error {
	body := map[string]any{"type": "anyone", "role": "reader"}
	err := c.doJSON(ctx, http.MethodPost, c.BaseURL+"/files/"+url.PathEscape(folderID)+"/permissions", body, nil)
	if err != nil {
		return fmt.Errorf("set permission: %w", err)
	}
	return nil
}

// FindChildFolder returns the id of a non-trashed folder named name directly
// under parentID, or "" when no such folder exists.
func (c *Client) FindChildFolder(ctx context.Context, parentID, name string) (string, error) {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
		escapeQueryValue(name), escapeQueryValue(parentID), folderMimeType)

	u := c.BaseURL + "/files?pageSize=1&fields=files(id,name)&q=" + url.QueryEscape(query)

	var listing struct {
		Files []struct {
			ID string `json:"id"`
		} `json:"files"`
	}
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &listing); err != nil {
		return "", fmt.Errorf("list folders: %w", err)
	}
	if len(listing.Files) == 0 {
		return "", nil
	}
	return listing.Files[0].ID, nil
}

// Upload stores data as a named file under parentID using a multipart
// related upload and returns the new file id.
func (c *Client) Upload(ctx context.Context, parentID, name, mimeType string, data []byte) (string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := w.CreatePart(metaHeader)
	if err != nil {
		return "", err
	}
	meta := map[string]any{"name": name, "parents": []string{parentID}}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return "", err
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", mimeType)
	mediaPart, err := w.CreatePart(mediaHeader)
	if err != nil {
		return "", err
	}
	if _, err := mediaPart.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.UploadURL+"/files?uploadType=multipart&fields=id", buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+w.Boundary())

	var uploaded struct {
		ID string `json:"id"`
	}
	if err := c.do(req, &uploaded); err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	return uploaded.ID, nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := c.newRequest(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	token, err := c.Tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("status %d: %s", res.StatusCode, snippet)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// escapeQueryValue escapes single quotes inside Drive query literals.
func escapeQueryValue(v string) string {
	return strings.ReplaceAll(v, "'", `\'`)
}
