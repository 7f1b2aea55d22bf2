package processor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const samplePage = `<html><head><title>Test Page</title></head><body><h1>Hello World</h1><p>Test content</p><a href="https://example.com">Link</a></body></html>`

func TestExtractSamplePage(t *testing.T) {
	t.Parallel()

	content, err := Extract(samplePage)
	require.NoError(t, err)
	require.Equal(t, "Test Page", content.Title)
	require.Equal(t, []string{"https://example.com"}, content.Links)
	require.Equal(t, "Hello World\nTest content", content.Text)
}

func TestExtractWithoutTitleDefaultsToEmpty(t *testing.T) {
	t.Parallel()

	content, err := Extract(`<div><p>only a paragraph</p></div>`)
	require.NoError(t, err)
	require.Empty(t, content.Title)
	require.Empty(t, content.Links)
	require.Equal(t, "only a paragraph", content.Text)
}

func TestExtractKeepsLinkOrderAndDuplicates(t *testing.T) {
	t.Parallel()

	content, err := Extract(`<body>
<a href="/b">b</a>
<a>no href</a>
<a href="/a">a</a>
<a href="/b">b again</a>
<a href="">empty</a>
</body>`)
	require.NoError(t, err)
	require.Equal(t, []string{"/b", "/a", "/b", ""}, content.Links)
}

func TestExtractTextInDocumentOrder(t *testing.T) {
	t.Parallel()

	content, err := Extract(`<title>First</title><title>Second</title>
<h2>Intro</h2><p>one</p><div>skipped</div><h6>small</h6><p>two</p>`)
	require.NoError(t, err)
	require.Equal(t, "First", content.Title)
	require.Equal(t, "Intro\none\nsmall\ntwo", content.Text)
}

func TestExtractToleratesMalformedMarkup(t *testing.T) {
	t.Parallel()

	content, err := Extract(`<html><title>Broken<p>unclosed <a href="x">link`)
	require.NoError(t, err)
	require.NotNil(t, content.Links)
}

func TestExtractEmptyDocument(t *testing.T) {
	t.Parallel()

	content, err := Extract("")
	require.NoError(t, err)
	require.Equal(t, Content{Links: []string{}}, content)
}
