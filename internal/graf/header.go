// Package graf reads LAF resources serialized as GrAF XML: a resource
// header naming the primary data and the annotation files, and the
// annotation files with their regions, nodes, edges and annotations.
package graf

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"

	fabricerrors "github.com/Dans-labs/laf-fabric/internal/errors"
)

const xmlNamespace = "http://www.w3.org/XML/1998/namespace"

// Header is a parsed resource header
type Header struct {
	Path        string
	Dir         string
	Primary     string
	Annotations []string
}

// Files returns every file the header refers to, relative to its directory
func (h *Header) Files() []string {
	files := make([]string, 0, len(h.Annotations)+1)
	if h.Primary != "" {
		files = append(files, h.Primary)
	}
	return append(files, h.Annotations...)
}

// ReadHeader parses a resource header. Annox headers have no primary data.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fabricerrors.SourceMissing(path, err)
	}
	defer f.Close()

	h := &Header{Path: path, Dir: filepath.Dir(path)}
	dec := xml.NewDecoder(f)
	sawRoot := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fabricerrors.MalformedGraF(filepath.Base(path), "cannot parse header", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "documentHeader", "resourceHeader":
			sawRoot = true
		case "primaryData":
			h.Primary = attr(se, "loc")
		case "annotation":
			loc := attr(se, "loc")
			if loc == "" {
				return nil, fabricerrors.MalformedGraF(filepath.Base(path), "annotation without loc", nil)
			}
			h.Annotations = append(h.Annotations, loc)
		}
	}
	if !sawRoot {
		return nil, fabricerrors.MalformedGraF(filepath.Base(path), "no documentHeader element", nil)
	}
	return h, nil
}

// ReadPrimary reads the primary data named by the header
func (h *Header) ReadPrimary() (string, error) {
	if h.Primary == "" {
		return "", fabricerrors.MalformedGraF(filepath.Base(h.Path), "no primaryData element", nil)
	}
	path := filepath.Join(h.Dir, h.Primary)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fabricerrors.SourceMissing(path, err)
	}
	return string(data), nil
}

func attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local && a.Name.Space == "" {
			return a.Value
		}
	}
	return ""
}

func xmlID(se xml.StartElement) string {
	for _, a := range se.Attr {
		if a.Name.Local == "id" && (a.Name.Space == xmlNamespace || a.Name.Space == "xml") {
			return a.Value
		}
	}
	return ""
}

func position(dec *xml.Decoder) string {
	line, col := dec.InputPos()
	return fmt.Sprintf("line %d col %d", line, col)
}
