// Package feed renders platform video listings as podcast RSS.
package feed

import (
	"fmt"
	"time"

	"github.com/eduncan911/podcast"

	"podtube/platform"
)

// Options controls how a feed is rendered.
type Options struct {
	// SelfLink is the URL the feed itself is served at.
	SelfLink string
	// EnclosureURL builds the media URL for an item.
	EnclosureURL func(item platform.Item) string
	// Format selects audio or video enclosures.
	Format platform.Format
	// Generator overrides the default generator string.
	Generator string
}

const defaultGenerator = "podtube"

// Build renders a resolved feed as RSS bytes.
func Build(f *platform.Feed, opts Options) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("feed: nil feed")
	}
	if opts.EnclosureURL == nil {
		return nil, fmt.Errorf("feed: EnclosureURL is required")
	}

	now := time.Now()
	pubDate := now
	if len(f.Items) > 0 && !f.Items[0].Published.IsZero() {
		pubDate = f.Items[0].Published
	}

	p := podcast.New(f.Meta.Title, f.Meta.Link, f.Meta.Description, &pubDate, &now)
	if f.Meta.Author != "" {
		p.AddAuthor(f.Meta.Author, "")
		p.ManagingEditor = f.Meta.Author
	}
	if f.Meta.Image != "" {
		p.AddImage(f.Meta.Image)
	}
	if f.Meta.Language != "" {
		p.Language = f.Meta.Language
	}
	p.AddCategory("Technology", nil)
	p.AddSummary(f.Meta.Description)
	p.IExplicit = "no"
	if opts.Generator != "" {
		p.Generator = opts.Generator
	} else {
		p.Generator = defaultGenerator
	}
	if opts.SelfLink != "" {
		p.AddAtomLink(opts.SelfLink)
	}

	encType := podcast.MP3
	if opts.Format == platform.FormatVideo {
		encType = podcast.MP4
	}

	for _, it := range f.Items {
		item := podcast.Item{
			Title:       it.Title,
			Description: it.Description,
			Link:        it.Link,
		}
		if item.Description == "" {
			item.Description = it.Title
		}
		if it.Author != "" {
			item.IAuthor = it.Author
		}
		if it.Thumbnail != "" {
			item.AddImage(it.Thumbnail)
		}
		if !it.Published.IsZero() {
			pub := it.Published
			item.AddPubDate(&pub)
		}
		if it.Duration > 0 {
			item.AddDuration(int64(it.Duration / time.Second))
		}
		item.AddEnclosure(opts.EnclosureURL(it), encType, 0)
		if _, err := p.AddItem(item); err != nil {
			return nil, fmt.Errorf("feed: item %q: %w", it.ID, err)
		}
	}

	return p.Bytes(), nil
}
