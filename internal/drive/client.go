// Package drive implements the provider capabilities on top of the Google
// Drive v3 and OAuth2 APIs.
package drive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/entro314-labs/drivepurge/internal/logging"
	"github.com/entro314-labs/drivepurge/internal/provider"
)

const (
	listQuery  = "trashed = false and mimeType != 'application/vnd.google-apps.folder'"
	listFields = "nextPageToken, files(id, name, mimeType, size, createdTime, md5Checksum, thumbnailLink)"
)

// Options configures the API clients. Zero values talk to Google.
type Options struct {
	// Endpoint overrides the API base URL, e.g. for a test server. It must
	// end with a slash.
	Endpoint string
	// HTTPClient is the transport the bearer token is layered on.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client lists and trashes Drive files. It is safe for concurrent use; each
// call builds its service for the credential it was given.
type Client struct {
	endpoint string
	base     *http.Client
	log      *zap.Logger
}

var (
	_ provider.Lister  = (*Client)(nil)
	_ provider.Trasher = (*Client)(nil)
)

func NewClient(opts Options) *Client {
	return &Client{
		endpoint: opts.Endpoint,
		base:     opts.HTTPClient,
		log:      logging.OrNop(opts.Logger).Named("drive"),
	}
}

func (c *Client) ListPage(ctx context.Context, token, pageToken string, pageSize int) (provider.Page, error) {
	srv, err := c.service(ctx, token)
	if err != nil {
		return provider.Page{}, err
	}

	call := srv.Files.List().
		PageSize(int64(pageSize)).
		Q(listQuery).
		Fields(googleapi.Field(listFields)).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Do()
	if err != nil {
		return provider.Page{}, classify(err)
	}

	page := provider.Page{NextPageToken: res.NextPageToken}
	for _, f := range res.Files {
		if f == nil {
			continue
		}
		page.Files = append(page.Files, provider.File{
			ID:            f.Id,
			Name:          f.Name,
			MimeType:      f.MimeType,
			Size:          f.Size,
			CreatedTime:   parseTime(f.CreatedTime),
			Checksum:      f.Md5Checksum,
			ThumbnailLink: f.ThumbnailLink,
		})
	}
	return page, nil
}

// Trash sets the trashed flag. Files stay recoverable from the Drive trash.
func (c *Client) Trash(ctx context.Context, token, id string) error {
	srv, err := c.service(ctx, token)
	if err != nil {
		return err
	}
	_, err = srv.Files.Update(id, &drivev3.File{Trashed: true}).
		Fields("id, trashed").
		Context(ctx).
		Do()
	if err != nil {
		c.log.Debug("trash failed", zap.String("id", id), zap.Error(err))
		return classify(err)
	}
	return nil
}

func (c *Client) service(ctx context.Context, token string) (*drivev3.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(bearerClient(ctx, c.base, token))}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	srv, err := drivev3.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return srv, nil
}

func bearerClient(ctx context.Context, base *http.Client, token string) *http.Client {
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
}

// classify maps an API error onto the provider taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", provider.ErrCredentialInvalid, err)
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: %w", provider.ErrCredentialInvalid, err)
	}
	return fmt.Errorf("%w: %w", provider.ErrTransport, err)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
