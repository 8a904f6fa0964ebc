// Package docx extracts the text of a Word document, one paragraph per
// line, with embedded pictures inlined as markdown data-URI images.
package docx

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

const (
	documentPart = "word/document.xml"
	relsPart     = "word/_rels/document.xml.rels"
	maxPartSize  = 64 << 20
)

var ErrNotDocx = errors.New("not a .docx document")

type relationships struct {
	XMLName xml.Name `xml:"Relationships"`
	Rels    []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
		Mode   string `xml:"TargetMode,attr"`
	} `xml:"Relationship"`
}

// ReadAll reads a whole .docx from r.
func ReadAll(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxPartSize+1))
	if err != nil {
		return "", err
	}
	if len(b) > maxPartSize {
		return "", fmt.Errorf("document larger than %d bytes", maxPartSize)
	}
	return Extract(bytes.NewReader(b), int64(len(b)))
}

// Extract returns the document text. Paragraphs are separated by "\n";
// tabs and line breaks inside a paragraph are kept.
func Extract(r io.ReaderAt, size int64) (string, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotDocx, err)
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}
	doc, ok := files[documentPart]
	if !ok {
		return "", fmt.Errorf("%w: missing %s", ErrNotDocx, documentPart)
	}

	targets := map[string]string{}
	if rf, ok := files[relsPart]; ok {
		b, err := readPart(rf)
		if err != nil {
			return "", err
		}
		var rels relationships
		if err := xml.Unmarshal(b, &rels); err != nil {
			return "", fmt.Errorf("parse %s: %w", relsPart, err)
		}
		for _, rel := range rels.Rels {
			if rel.Mode == "External" {
				continue
			}
			targets[rel.ID] = path.Clean(path.Join("word", rel.Target))
		}
	}

	rc, err := doc.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	w := &walker{files: files, targets: targets}
	if err := w.walk(xml.NewDecoder(io.LimitReader(rc, maxPartSize))); err != nil {
		return "", fmt.Errorf("parse %s: %w", documentPart, err)
	}
	return strings.TrimRight(strings.Join(w.lines, "\n"), "\n"), nil
}

type walker struct {
	files   map[string]*zip.File
	targets map[string]string
	lines   []string
	cur     strings.Builder
	inPara  int
	inText  bool
}

func (w *walker) walk(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				w.inPara++
			case "t":
				w.inText = true
			case "tab":
				w.cur.WriteByte('\t')
			case "br", "cr":
				w.cur.WriteByte('\n')
			case "blip":
				w.image(attr(t, "embed"))
			case "imagedata":
				w.image(attr(t, "id"))
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				w.inText = false
			case "p":
				if w.inPara > 0 {
					w.inPara--
				}
				if w.inPara == 0 {
					w.lines = append(w.lines, w.cur.String())
					w.cur.Reset()
				}
			}
		case xml.CharData:
			if w.inText {
				w.cur.Write(t)
			}
		}
	}
	if w.cur.Len() > 0 {
		w.lines = append(w.lines, w.cur.String())
	}
	return nil
}

// image inlines the related media part; unknown or unreadable parts are
// skipped.
func (w *walker) image(relID string) {
	if relID == "" {
		return
	}
	name, ok := w.targets[relID]
	if !ok {
		return
	}
	f, ok := w.files[name]
	if !ok {
		return
	}
	b, err := readPart(f)
	if err != nil || len(b) == 0 {
		return
	}
	fmt.Fprintf(&w.cur, "![](data:image/%s;base64,%s)", Subtype(name), base64.StdEncoding.EncodeToString(b))
}

// Subtype guesses the image MIME subtype from a media part name.
func Subtype(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	switch ext {
	case "jpg", "jpe":
		return "jpeg"
	case "svg":
		return "svg+xml"
	case "tif":
		return "tiff"
	case "emf", "wmf":
		return "x-" + ext
	case "":
		return "png"
	default:
		return ext
	}
}

func attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func readPart(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > maxPartSize {
		return nil, fmt.Errorf("%s too large", f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxPartSize))
}
