// Package pagination pages listings ordered newest first by created_at and id.
// Page tokens are opaque to callers.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

var ErrInvalidToken = errors.New("invalid page token")

type Pagination struct {
	PageToken string `json:"page_token"`
	PageSize  int    `json:"page_size" validate:"omitempty,gte=1,lte=250"`
}

// Size is PageSize clamped to 1..MaxPageSize, DefaultPageSize when unset.
func (p Pagination) Size() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

// Cursor is the last row served. The next page starts strictly after it.
type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type token struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

// Encode renders c as a URL-safe page token.
func (c Cursor) Encode() string {
	b, _ := json.Marshal(token{ID: c.ID.String(), CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano)})
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode parses a page token. An empty token is the first page and yields nil.
func Decode(raw string) (*Cursor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var t token
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, ErrInvalidToken
	}
	id, err := snowflake.ParseString(strings.TrimSpace(t.ID))
	if err != nil || id == 0 {
		return nil, ErrInvalidToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, t.CreatedAt)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Cursor{ID: id, CreatedAt: createdAt}, nil
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

// Page cuts rows fetched with size+1 down to size and points the next token
// at the last row kept.
func Page[T any](rows []*T, size int, cursor func(*T) Cursor) ([]*T, PageInfo) {
	if size <= 0 || len(rows) <= size {
		return rows, PageInfo{}
	}
	rows = rows[:size]
	return rows, PageInfo{
		NextPageToken: cursor(rows[len(rows)-1]).Encode(),
		HasMore:       true,
	}
}
