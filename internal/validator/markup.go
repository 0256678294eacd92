package validator

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html"
)

var (
	// ErrNoRoot means the document has no html root element.
	ErrNoRoot = errors.New("html root element missing")
	// ErrUnbalanced means start and end tags do not pair up.
	ErrUnbalanced = errors.New("unbalanced markup")
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// outline is what the structural check learns from one pass of the
// tokenizer.
type outline struct {
	root     string
	balanced bool
}

func scan(markup []byte) (outline, error) {
	z := html.NewTokenizer(bytes.NewReader(markup))
	var (
		o     = outline{balanced: true}
		stack []string
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return o, fmt.Errorf("failed to tokenize markup: %w", err)
			}
			if len(stack) > 0 {
				o.balanced = false
			}
			return o, nil
		case html.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if o.root == "" {
				o.root = tag
			}
			if !voidElements[tag] {
				stack = append(stack, tag)
			}
		case html.SelfClosingTagToken:
			if o.root == "" {
				name, _ := z.TagName()
				o.root = string(name)
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if voidElements[tag] {
				continue
			}
			if n := len(stack); n > 0 && stack[n-1] == tag {
				stack = stack[:n-1]
			} else {
				o.balanced = false
			}
		}
	}
}

// Structure checks that translated is a document rooted at an html
// element. A document that fails it cannot be saved.
func Structure(translated []byte) error {
	if len(bytes.TrimSpace(translated)) == 0 {
		return fmt.Errorf("document is empty: %w", ErrNoRoot)
	}
	got, err := scan(translated)
	if err != nil {
		return err
	}
	if got.root != "html" {
		if got.root == "" {
			return ErrNoRoot
		}
		return fmt.Errorf("%w: first element is <%s>", ErrNoRoot, got.root)
	}
	return nil
}

// Balance reports ErrUnbalanced when original's tags pair up and
// translated's do not. Sources that were already sloppy are not held to a
// stricter standard. Readers tolerate unbalanced markup, so this is a
// warning rather than a reason to reject the document.
func Balance(original, translated []byte) error {
	got, err := scan(translated)
	if err != nil || got.balanced {
		return err
	}
	want, err := scan(original)
	if err != nil || !want.balanced {
		return nil
	}
	return ErrUnbalanced
}
