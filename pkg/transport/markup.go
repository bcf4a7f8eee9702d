package transport

import (
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
	"golang.org/x/net/html"

	universal "github.com/goliatone/go-universal"
	"github.com/goliatone/go-universal/internal/hydrate"
)

// DefaultScriptID is the id of the script element carrying the payload.
const DefaultScriptID = "__UNIVERSAL_STATE__"

// Embed renders payload as a <script type="application/json"> element with
// the given id. The JSON encoding escapes markup characters, so snapshot
// contents cannot terminate the element early.
func Embed(id string, payload universal.Payload) templ.Component {
	if id == "" {
		id = DefaultScriptID
	}
	if payload == nil {
		payload = universal.Payload{}
	}
	return templ.JSONScript(id, payload)
}

// ReadMarkup finds the payload script element with the given id in r and
// decodes it. ok is false when the markup carries no payload, which is the
// normal state of a client-only render.
func ReadMarkup(r io.Reader, id string) (payload universal.Payload, ok bool, err error) {
	if id == "" {
		id = DefaultScriptID
	}
	doc, err := html.Parse(r)
	if err != nil {
		return nil, false, fmt.Errorf("transport: parse markup: %w", err)
	}
	node := findScript(doc, id)
	if node == nil {
		return nil, false, nil
	}

	var text strings.Builder
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			text.WriteString(child.Data)
		}
	}

	decoder := hydrate.NewDecoder[universal.Payload]()
	payload, err = decoder.Decode(hydrate.Context{Source: id}, []byte(text.String()))
	if err != nil {
		return nil, false, fmt.Errorf("transport: %w", err)
	}
	return payload, true, nil
}

func findScript(node *html.Node, id string) *html.Node {
	if node.Type == html.ElementNode && node.Data == "script" && attr(node, "id") == id {
		return node
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if found := findScript(child, id); found != nil {
			return found
		}
	}
	return nil
}

func attr(node *html.Node, key string) string {
	for _, a := range node.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
