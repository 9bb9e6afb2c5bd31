// Package bookmarks converts between stored folders and links and the
// Netscape bookmark file format understood by every major browser.
package bookmarks

import (
	"bufio"
	"fmt"
	"html"
	"io"

	"github.com/moolinks/backend/internal/models"
)

const header = `<!DOCTYPE NETSCAPE-Bookmark-file-1>
<META HTTP-EQUIV="Content-Type" CONTENT="text/html; charset=UTF-8">
<TITLE>Bookmarks</TITLE>
<H1>Bookmarks</H1>
<DL><p>
`

// Export writes folders and their links as a Netscape bookmark file. Folders
// keep the given order; links keep the given order within a folder. Links
// whose folder is not in folders are written at the top level.
func Export(w io.Writer, folders []models.Folder, links []models.Link) error {
	bw := bufio.NewWriter(w)

	byFolder := make(map[string][]models.Link, len(folders))
	known := make(map[string]bool, len(folders))
	for _, f := range folders {
		known[f.ID] = true
	}
	var loose []models.Link
	for _, l := range links {
		if known[l.FolderID] {
			byFolder[l.FolderID] = append(byFolder[l.FolderID], l)
			continue
		}
		loose = append(loose, l)
	}

	bw.WriteString(header)
	for _, f := range folders {
		fmt.Fprintf(bw, "    <DT><H3 ADD_DATE=\"%d\">%s</H3>\n", f.CreatedAt.Unix(), html.EscapeString(f.Name))
		bw.WriteString("    <DL><p>\n")
		for _, l := range byFolder[f.ID] {
			writeLink(bw, "        ", l)
		}
		bw.WriteString("    </DL><p>\n")
	}
	for _, l := range loose {
		writeLink(bw, "    ", l)
	}
	bw.WriteString("</DL><p>\n")

	return bw.Flush()
}

func writeLink(w *bufio.Writer, indent string, l models.Link) {
	icon := ""
	if l.ThumbnailURL != nil && *l.ThumbnailURL != "" {
		icon = fmt.Sprintf(" ICON_URI=\"%s\"", html.EscapeString(*l.ThumbnailURL))
	}
	fmt.Fprintf(w, "%s<DT><A HREF=\"%s\" ADD_DATE=\"%d\"%s>%s</A>\n",
		indent,
		html.EscapeString(l.URL),
		l.CreatedAt.Unix(),
		icon,
		html.EscapeString(l.Title),
	)
}
