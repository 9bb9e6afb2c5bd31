package bookmarks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/moolinks/backend/internal/linkurl"
	"github.com/moolinks/backend/internal/logging"
	"github.com/moolinks/backend/internal/metadata"
	"github.com/moolinks/backend/internal/models"
)

// Entry is one anchor read from a bookmark file.
type Entry struct {
	// Folder is the innermost folder heading enclosing the anchor, if any.
	Folder  string
	URL     string
	Title   string
	IconURL string
	AddedAt time.Time
}

// Parse reads every anchor with an HREF from a Netscape bookmark file. Folder
// nesting is flattened to the innermost heading.
func Parse(r io.Reader) ([]Entry, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse bookmark file: %w", err)
	}

	var (
		entries     []Entry
		folders     []string
		pending     string
		havePending bool
	)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch strings.ToLower(n.Data) {
			case "h3":
				pending = textContent(n)
				havePending = true
				return
			case "a":
				href := strings.TrimSpace(attr(n, "href"))
				if href == "" {
					return
				}
				entry := Entry{URL: href, Title: textContent(n), IconURL: attr(n, "icon_uri")}
				if len(folders) > 0 {
					entry.Folder = folders[len(folders)-1]
				}
				if ts, err := strconv.ParseInt(attr(n, "add_date"), 10, 64); err == nil && ts > 0 {
					entry.AddedAt = time.Unix(ts, 0).UTC()
				}
				entries = append(entries, entry)
				return
			case "dl":
				pushed := havePending
				if pushed {
					folders = append(folders, pending)
					havePending = false
				}
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					walk(c)
				}
				if pushed {
					folders = folders[:len(folders)-1]
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return entries, nil
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.TrimSpace(b.String())
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// LinkCreator stores imported links.
type LinkCreator interface {
	Create(ctx context.Context, link models.Link) (models.Link, error)
}

// BackfillQueue accepts links whose metadata should be resolved later.
type BackfillQueue interface {
	Enqueue(job metadata.BackfillJob) error
}

// Importer stores parsed entries as links of a single folder.
type Importer struct {
	Links    LinkCreator
	Backfill BackfillQueue
	NowFunc  func() time.Time
}

// ImportResult summarizes an import.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Queued   int `json:"queued"`
}

// Import canonicalizes every entry URL and stores it in folderID. Entries that
// are not http(s) URLs, or repeat a URL already seen in this import, are
// skipped. Stored links are queued for metadata backfill; a full queue only
// means the link keeps its imported title.
func (im Importer) Import(ctx context.Context, userID, folderID string, entries []Entry) (ImportResult, error) {
	var result ImportResult
	if im.Links == nil {
		return result, errors.New("bookmark import: no link store")
	}

	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		canonical := linkurl.Canonicalize(entry.URL)
		if canonical == "" || !linkurl.IsHTTPURL(canonical) || seen[canonical] {
			result.Skipped++
			continue
		}
		seen[canonical] = true

		title, placeholder := importTitle(entry, canonical)
		link := models.Link{
			ID:           uuid.NewString(),
			UserID:       userID,
			FolderID:     folderID,
			URL:          canonical,
			Title:        title,
			ThumbnailURL: importThumbnail(entry.IconURL),
			CreatedAt:    entry.AddedAt,
		}
		if link.CreatedAt.IsZero() {
			link.CreatedAt = im.now()
		}

		stored, err := im.Links.Create(ctx, link)
		if err != nil {
			return result, fmt.Errorf("import %s: %w", canonical, err)
		}
		result.Imported++

		if im.Backfill == nil {
			continue
		}
		if err := im.Backfill.Enqueue(metadata.BackfillJob{Link: stored, ReplaceTitle: placeholder}); err != nil {
			logging.FromContext(ctx).Debug("bookmark import backfill skipped", "linkId", stored.ID, "error", err)
			continue
		}
		result.Queued++
	}

	return result, nil
}

// importTitle returns the title to store and whether it is a placeholder
// that backfill may replace.
func importTitle(entry Entry, canonical string) (string, bool) {
	title := strings.TrimSpace(entry.Title)
	if title == "" || title == entry.URL || title == canonical {
		return linkurl.Hostname(canonical), true
	}
	if runes := []rune(title); len(runes) > models.MaxLinkTitleLength {
		title = string(runes[:models.MaxLinkTitleLength])
	}
	return title, false
}

func importThumbnail(icon string) *string {
	icon = strings.TrimSpace(icon)
	if icon == "" || len(icon) > models.MaxThumbnailURLLength || !linkurl.IsHTTPURL(icon) {
		return nil
	}
	return &icon
}

func (im Importer) now() time.Time {
	if im.NowFunc != nil {
		return im.NowFunc()
	}
	return time.Now().UTC()
}
