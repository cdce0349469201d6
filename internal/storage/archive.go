package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"
)

// LinkExpiry is how long a presigned download link stays valid.
const LinkExpiry = 15 * time.Minute

// Archive stores exports under exports/<user>/<analysis>/<filename>.
type Archive struct {
	store ObjectStore
}

func NewArchive(store ObjectStore) *Archive {
	return &Archive{store: store}
}

// Link is a stored export and where to fetch it.
type Link struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Save uploads data and returns a presigned link to it.
func (a *Archive) Save(ctx context.Context, userID, analysisID, filename, contentType string, data []byte) (Link, error) {
	if userID == "" || analysisID == "" || filename == "" {
		return Link{}, fmt.Errorf("storage: user, analysis and filename are required")
	}
	key := ExportKey(userID, analysisID, filename)

	if err := a.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return Link{}, err
	}
	url, err := a.store.PresignGet(ctx, key, LinkExpiry)
	if err != nil {
		return Link{}, err
	}
	return Link{Key: key, URL: url, ExpiresAt: time.Now().Add(LinkExpiry)}, nil
}

func ExportKey(userID, analysisID, filename string) string {
	return path.Join("exports", path.Base(userID), path.Base(analysisID), path.Base(filename))
}
