package browser

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/expresspay/expresspay-go/internal/core/domain"
	"golang.org/x/net/html"
)

// autoSubmitForm is a form that a browser script would post on load.
type autoSubmitForm struct {
	Action string
	Method domain.RedirectMethod
	Values url.Values
}

// userInputTypes need a human to fill them in when empty.
var userInputTypes = map[string]bool{
	"text":     true,
	"password": true,
	"tel":      true,
	"number":   true,
	"email":    true,
}

// parseAutoSubmitForm finds the first form on the page and checks that it
// can be submitted without user input.
func parseAutoSubmitForm(base *url.URL, body []byte) (autoSubmitForm, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return autoSubmitForm{}, err
	}

	formNode := findElement(doc, "form")
	if formNode == nil {
		return autoSubmitForm{}, errors.New("page has no form")
	}

	form := autoSubmitForm{
		Method: domain.RedirectGET,
		Values: url.Values{},
	}
	if strings.EqualFold(attr(formNode, "method"), "post") {
		form.Method = domain.RedirectPOST
	}

	action, err := resolveAction(base, attr(formNode, "action"))
	if err != nil {
		return autoSubmitForm{}, err
	}
	form.Action = action

	var walkErr error
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if walkErr != nil {
			return
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "input":
				name := attr(n, "name")
				typ := strings.ToLower(attr(n, "type"))
				if typ == "" {
					typ = "text"
				}
				value := attr(n, "value")
				if userInputTypes[typ] && value == "" {
					walkErr = fmt.Errorf("field %q needs user input", name)
					return
				}
				if name != "" && typ != "submit" && typ != "button" {
					form.Values.Add(name, value)
				}
			case "textarea":
				if name := attr(n, "name"); name != "" {
					form.Values.Add(name, textContent(n))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(formNode)
	if walkErr != nil {
		return autoSubmitForm{}, walkErr
	}

	return form, nil
}

func resolveAction(base *url.URL, action string) (string, error) {
	if base == nil {
		base = &url.URL{}
	}
	if strings.TrimSpace(action) == "" {
		return base.String(), nil
	}
	ref, err := url.Parse(strings.TrimSpace(action))
	if err != nil {
		return "", fmt.Errorf("form action %q: %w", action, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
