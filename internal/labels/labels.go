// Package labels loads the class-name asset that accompanies the classifier.
//
// Each line of the asset has the form "<index> <label_with_underscores>". The
// line order is the index mapping; the numeric prefix itself is ignored.
package labels

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

// DefaultReferenceTemplate points a raw label at its encyclopedia article.
const DefaultReferenceTemplate = "https://en.wikipedia.org/wiki/%s"

// ErrIndexOutOfRange is returned when a class index has no label.
var ErrIndexOutOfRange = errors.New("class index out of range")

// Label is a single class name as it appears in the asset.
type Label string

// Raw returns the label with underscores preserved.
func (l Label) Raw() string {
	return string(l)
}

// Display returns the human readable form of the label.
func (l Label) Display() string {
	return strings.ReplaceAll(string(l), "_", " ")
}

// ReferenceURL substitutes the raw label into template. An empty template
// uses DefaultReferenceTemplate.
func (l Label) ReferenceURL(template string) string {
	if template == "" {
		template = DefaultReferenceTemplate
	}
	return fmt.Sprintf(template, url.PathEscape(l.Raw()))
}

// List is the ordered label set; position i names class i.
type List []Label

// At returns the label for class index i.
func (l List) At(i int) (Label, error) {
	if i < 0 || i >= len(l) {
		return "", fmt.Errorf("%w: index %d, %d labels", ErrIndexOutOfRange, i, len(l))
	}
	return l[i], nil
}

// ParseLine strips the index prefix up to and including the first space.
// A line without a space is taken as the label itself.
func ParseLine(line string) Label {
	line = strings.TrimSuffix(line, "\r")
	if idx := strings.IndexByte(line, ' '); idx >= 0 {
		return Label(line[idx+1:])
	}
	return Label(line)
}

// Parse reads one label per line from r.
func Parse(r io.Reader) (List, error) {
	var list List
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		list = append(list, ParseLine(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	return list, nil
}

// LoadFile parses the label asset at path.
func LoadFile(path string) (List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer f.Close()

	list, err := Parse(f)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("labels file %s is empty", path)
	}
	return list, nil
}
