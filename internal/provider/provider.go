// Package provider declares the capabilities drivepurge needs from a cloud
// storage provider, independent of any SDK.
package provider

import (
	"context"
	"time"
)

// Identity is the displayable account behind a credential.
type Identity struct {
	Name    string
	Picture string
}

// File is one listing entry as the provider returns it.
type File struct {
	ID            string
	Name          string
	MimeType      string
	Size          int64
	CreatedTime   time.Time
	Checksum      string
	ThumbnailLink string
}

// Page is one page of a listing. NextPageToken is empty on the last page.
type Page struct {
	Files         []File
	NextPageToken string
}

// Authorizer obtains and revokes bearer credentials interactively.
type Authorizer interface {
	RequestToken(ctx context.Context) (string, error)
	Revoke(ctx context.Context, token string) error
}

// IdentityResolver maps a credential to the account it belongs to.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}

// Lister pages through non-trashed, non-folder files.
type Lister interface {
	ListPage(ctx context.Context, token, pageToken string, pageSize int) (Page, error)
}

// Trasher moves a single file to the provider's trash.
type Trasher interface {
	Trash(ctx context.Context, token, id string) error
}
