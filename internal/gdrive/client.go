// Package gdrive wraps the two Google APIs the pipeline consumes: Drive v3
// file metadata (files.get) and the Drive Activity v2 query endpoint. It
// also hosts the path resolver that turns item ids into absolute logical
// paths by walking parent pointers.
package gdrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	driveBaseURL    = "https://www.googleapis.com/drive/v3"
	activityBaseURL = "https://driveactivity.googleapis.com/v2"
	scopeBaseURL    = "https://www.googleapis.com/auth/"

	// fileFields is the metadata subset the resolver needs per hop.
	fileFields = "id,name,parents,mimeType,webViewLink,size"
)

// Token is the stored OAuth2 user credential from the settings file.
// Credential acquisition is out of scope; the refresh token must already
// exist.
type Token struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	AccessToken  string
}

// File is the metadata record returned by files.get. Size arrives as a
// JSON string in Drive v3 and is normalised to an integer on decode.
type File struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Parents     []string `json:"parents"`
	MimeType    string   `json:"mimeType"`
	WebViewLink string   `json:"webViewLink"`
	Size        int64    `json:"size,string"`
}

// UnmarshalJSON tolerates the size field being absent, a string, or a bare
// number, which varies across item kinds.
func (f *File) UnmarshalJSON(data []byte) error {
	type alias struct {
		ID          string      `json:"id"`
		Name        string      `json:"name"`
		Parents     []string    `json:"parents"`
		MimeType    string      `json:"mimeType"`
		WebViewLink string      `json:"webViewLink"`
		Size        json.Number `json:"size"`
	}

	var a alias

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := dec.Decode(&a); err != nil {
		return err
	}

	f.ID = a.ID
	f.Name = a.Name
	f.Parents = a.Parents
	f.MimeType = a.MimeType
	f.WebViewLink = a.WebViewLink
	f.Size = 0

	if a.Size != "" {
		n, err := a.Size.Int64()
		if err == nil {
			f.Size = n
		}
	}

	return nil
}

// QueryRequest is the activity.query POST body.
type QueryRequest struct {
	PageSize     int    `json:"pageSize"`
	AncestorName string `json:"ancestorName"`
	PageToken    string `json:"pageToken,omitempty"`
	Filter       string `json:"filter"`
}

// QueryResponse keeps each activity as raw JSON: the pipeline's event
// equality is defined over the raw payload, so decoding happens downstream
// without losing the original bytes.
type QueryResponse struct {
	Activities    []json.RawMessage `json:"activities"`
	NextPageToken string            `json:"nextPageToken"`
}

// APIError is a non-2xx reply from either Google API.
type APIError struct {
	StatusCode int
	Body       string
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gdrive: %s returned %d: %s", e.URL, e.StatusCode, e.Body)
}

// Client talks to both Google APIs with one auto-refreshing credential.
type Client struct {
	hc     *http.Client
	logger *slog.Logger

	driveBase    string
	activityBase string
}

// NewClient builds a client whose transport injects and refreshes the
// Bearer token. Scopes are short names from the settings file, joined onto
// the Google auth prefix unless already absolute.
func NewClient(ctx context.Context, token Token, scopes []string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := &oauth2.Config{
		ClientID:     token.ClientID,
		ClientSecret: token.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       expandScopes(scopes),
	}

	source := cfg.TokenSource(ctx, &oauth2.Token{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	})

	return &Client{
		hc:           oauth2.NewClient(ctx, source),
		logger:       logger,
		driveBase:    driveBaseURL,
		activityBase: activityBaseURL,
	}
}

// expandScopes joins short scope names onto the Google auth URL prefix.
func expandScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		if strings.Contains(scope, "://") {
			out = append(out, scope)
			continue
		}

		out = append(out, scopeBaseURL+scope)
	}

	return out
}

// QueryActivities executes one activity.query page.
func (c *Client) QueryActivities(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("gdrive: encoding activity query: %w", err)
	}

	var resp QueryResponse
	if err := c.do(ctx, http.MethodPost, c.activityBase+"/activity:query", body, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// GetFile fetches the resolver's metadata subset for one item.
func (c *Client) GetFile(ctx context.Context, itemID string) (*File, error) {
	if itemID == "" {
		return nil, fmt.Errorf("gdrive: empty item id")
	}

	query := url.Values{
		"fields":            {fileFields},
		"supportsAllDrives": {"true"},
	}

	target := c.driveBase + "/files/" + url.PathEscape(itemID) + "?" + query.Encode()

	var file File
	if err := c.do(ctx, http.MethodGet, target, nil, &file); err != nil {
		return nil, err
	}

	return &file, nil
}

// do executes one request and decodes the JSON reply into out.
func (c *Client) do(ctx context.Context, method, target string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("gdrive: creating request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("gdrive: %s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gdrive: reading response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Error("google api error",
			slog.String("url", target),
			slog.Int("status", resp.StatusCode),
		)

		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload)), URL: target}
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("gdrive: decoding response: %w", err)
	}

	return nil
}
