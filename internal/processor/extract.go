package processor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ErrParse marks a document that could not be parsed.
var ErrParse = errors.New("parse document")

var (
	titleSelector = cascadia.MustCompile("title")
	linkSelector  = cascadia.MustCompile("a[href]")
	textSelector  = cascadia.MustCompile("p, h1, h2, h3, h4, h5, h6")
)

// Content is what Extract pulls out of one HTML document.
type Content struct {
	// Title is the text of the first title element, or "" when there is none.
	Title string `json:"title"`
	// Links holds every anchor href in document order, duplicates included.
	Links []string `json:"links"`
	// Text joins paragraph and heading text with newlines.
	Text string `json:"text"`
}

// Extract parses doc leniently and returns its title, links, and body text.
func Extract(doc string) (Content, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return Content{}, fmt.Errorf("%w: %w", ErrParse, err)
	}
	sel := goquery.NewDocumentFromNode(root).Selection

	content := Content{
		Title: sel.FindMatcher(titleSelector).First().Text(),
		Links: make([]string, 0),
	}
	sel.FindMatcher(linkSelector).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		content.Links = append(content.Links, href)
	})
	texts := sel.FindMatcher(textSelector).Map(func(_ int, s *goquery.Selection) string {
		return s.Text()
	})
	content.Text = strings.Join(texts, "\n")
	return content, nil
}
