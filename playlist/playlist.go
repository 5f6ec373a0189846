// Package playlist expands YouTube playlist URLs into per-video targets
// before they are submitted to a dlqueue.Pool.
package playlist

import (
	"context"
	"fmt"
	"strings"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
	"github.com/ytget/ytdlp/v2"
)

const (
	DefaultTimeout = 60 * time.Second

	PlaylistParam    = "list="
	ParamSeparator   = "&"
	VideoURLTemplate = "https://www.youtube.com/watch?v=%s"
)

// Item is one entry of a playlist.
type Item struct {
	VideoID string
	Title   string
}

// URL returns the watch URL of the item.
func (it Item) URL() string {
	return fmt.Sprintf(VideoURLTemplate, it.VideoID)
}

type listFunc func(ctx context.Context, playlistID string) ([]Item, error)

// Expander resolves playlist URLs through ytdlp.
type Expander struct {
	timeout time.Duration
	list    listFunc
}

// NewExpander creates an expander with DefaultTimeout.
func NewExpander() *Expander {
	return &Expander{
		timeout: DefaultTimeout,
		list:    listWithYTDLP,
	}
}

// SetTimeout bounds every playlist lookup. Zero disables the bound.
func (e *Expander) SetTimeout(timeout time.Duration) {
	e.timeout = timeout
}

func listWithYTDLP(ctx context.Context, playlistID string) ([]Item, error) {
	d := ytdlp.New()
	items, err := d.GetPlaylistItemsAll(ctx, playlistID, 0)
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		out = append(out, Item{VideoID: it.VideoID, Title: it.Title})
	}
	return out, nil
}

// IsPlaylistURL reports whether url carries a playlist id.
func IsPlaylistURL(url string) bool {
	return strings.Contains(url, PlaylistParam)
}

// ExtractID returns the value of the list= parameter, or "".
func ExtractID(url string) string {
	parts := strings.SplitN(url, PlaylistParam, 2)
	if len(parts) < 2 {
		return ""
	}
	id, _, _ := strings.Cut(parts[1], ParamSeparator)
	return id
}

// Items fetches the entries of the playlist behind url.
func (e *Expander) Items(ctx context.Context, url string) ([]Item, error) {
	if !IsPlaylistURL(url) {
		return nil, fmt.Errorf("invalid playlist URL: %s", url)
	}
	id := ExtractID(url)
	if id == "" {
		return nil, fmt.Errorf("could not extract playlist ID from URL: %s", url)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	items, err := e.list(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist items: %w", err)
	}
	return items, nil
}

// Expand turns every playlist URL in targets into its video URLs and keeps
// other targets unchanged. Order is preserved.
func (e *Expander) Expand(ctx context.Context, targets []string) ([]string, error) {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		if !IsPlaylistURL(t) {
			out = append(out, t)
			continue
		}
		items, err := e.Items(ctx, t)
		if err != nil {
			return nil, err
		}
		lg.FromContext(ctx).Info("playlist expanded", lg.String("url", t), lg.Int("videos", len(items)))
		for _, it := range items {
			out = append(out, it.URL())
		}
	}
	return out, nil
}
