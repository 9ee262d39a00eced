// Package knowledge turns a directory of reference documents into the
// embedded chunks the assistant retrieves from.
package knowledge

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// Document kinds.
const (
	KindPDF  = "pdf"
	KindHTML = "html"
	KindText = "text"
)

// ErrUnsupported is returned by LoadFile for extensions it cannot read.
var ErrUnsupported = errors.New("unsupported document type")

// Source is the extracted plain text of one file.
type Source struct {
	Path  string
	Title string
	Kind  string
	Text  string
}

// KindOf maps a file extension to a document kind, or "" when the file is
// not loadable.
func KindOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return KindPDF
	case ".html", ".htm":
		return KindHTML
	case ".txt", ".md", ".markdown":
		return KindText
	}
	return ""
}

// LoadDir walks dir and loads every supported file, sorted by path. Files
// that fail to load are returned in skipped with the reason and do not stop
// the walk.
func LoadDir(dir string) (sources []Source, skipped map[string]error, err error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("source %s is not a directory", dir)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if KindOf(path) != "" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(paths)

	skipped = make(map[string]error)
	for _, p := range paths {
		src, err := LoadFile(p)
		if err != nil {
			skipped[p] = err
			continue
		}
		if strings.TrimSpace(src.Text) == "" {
			skipped[p] = errors.New("no extractable text")
			continue
		}
		sources = append(sources, src)
	}
	return sources, skipped, nil
}

// LoadFile extracts the text of a single file.
func LoadFile(path string) (Source, error) {
	src := Source{Path: path, Kind: KindOf(path), Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}

	var err error
	switch src.Kind {
	case KindPDF:
		src.Text, err = loadPDF(path)
	case KindHTML:
		var title string
		title, src.Text, err = loadHTML(path)
		if title != "" {
			src.Title = title
		}
	case KindText:
		var data []byte
		data, err = os.ReadFile(path)
		src.Text = string(data)
	default:
		return Source{}, fmt.Errorf("%s: %w", path, ErrUnsupported)
	}
	if err != nil {
		return Source{}, fmt.Errorf("loading %s: %w", path, err)
	}
	return src, nil
}

func loadPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		txt, err := page.GetPlainText(nil)
		if err != nil {
			// Image-only pages have no text layer.
			continue
		}
		txt = strings.TrimSpace(txt)
		if txt == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("Page " + strconv.Itoa(i) + "\n")
		sb.WriteString(txt)
	}
	return sb.String(), nil
}

func loadHTML(path string) (title, text string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return "", "", err
	}
	var sb strings.Builder
	extractText(doc, &sb, &title, 0)
	return strings.TrimSpace(title), collapseBlankLines(sb.String()), nil
}

func extractText(n *html.Node, sb *strings.Builder, title *string, depth int) {
	if depth > 64 {
		return
	}
	switch n.Type {
	case html.TextNode:
		if t := strings.TrimSpace(n.Data); t != "" {
			sb.WriteString(t)
			sb.WriteString(" ")
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "footer":
			return
		case "title":
			if n.FirstChild != nil && *title == "" {
				*title = n.FirstChild.Data
			}
			return
		case "p", "div", "section", "article", "h1", "h2", "h3", "h4", "h5", "h6", "tr", "pre", "blockquote":
			sb.WriteString("\n\n")
		case "br":
			sb.WriteString("\n")
		case "li":
			sb.WriteString("\n- ")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, sb, title, depth+1)
	}
}

// collapseBlankLines trims every line and keeps at most one blank line in a row.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
