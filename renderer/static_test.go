package renderer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christianvidalwolf-prog/promochecker/config"
	"github.com/christianvidalwolf-prog/promochecker/models"
)

const productHTML = `<html><head><title> Echo Dot | Amazon.de </title>
<style>.a-price { color: red }</style></head>
<body>
  <div id="corePrice_feature_div">
    <span class="a-price"><span class="a-offscreen">19,99 €</span></span>
    <span class="a-price a-text-price" data-a-strike="true"><span class="a-offscreen">29,99 €</span></span>
  </div>
  <div class="aok-hidden"><span class="a-price"><span class="a-offscreen">9,99 €</span></span></div>
  <div style="display: none"><span id="hidden-inline">x</span></div>
  <p hidden><span id="hidden-attr">x</span></p>
  <noscript><span id="in-noscript">x</span></noscript>
</body></html>`

func newLoadedPage(t *testing.T) *StaticPage {
	t.Helper()
	p := NewStaticPage(NewFixtureFetcher(map[string]string{
		"https://www.amazon.de/dp/B000000001": productHTML,
	}))
	require.NoError(t, p.Navigate(context.Background(), "https://www.amazon.de/dp/B000000001", time.Second))
	return p
}

func TestStaticPage_QueryAllAndText(t *testing.T) {
	p := newLoadedPage(t)
	ctx := context.Background()

	els, err := p.QueryAll(ctx, ".a-price .a-offscreen")
	require.NoError(t, err)
	require.Len(t, els, 3)

	text, err := els[0].Text()
	require.NoError(t, err)
	assert.Equal(t, "19,99 €", text)

	title, err := p.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Echo Dot | Amazon.de", title)
}

func TestStaticPage_Visibility(t *testing.T) {
	p := newLoadedPage(t)
	ctx := context.Background()

	cases := map[string]bool{
		"#corePrice_feature_div .a-offscreen": true,
		".aok-hidden .a-offscreen":            false,
		"#hidden-inline":                      false,
		"#hidden-attr":                        false,
	}
	for sel, want := range cases {
		els, err := p.QueryAll(ctx, sel)
		require.NoError(t, err, sel)
		require.NotEmpty(t, els, sel)
		got, err := els[0].Visible()
		require.NoError(t, err)
		assert.Equal(t, want, got, sel)
	}
}

func TestStaticPage_ElementQueryAll(t *testing.T) {
	p := newLoadedPage(t)

	blocks, err := p.QueryAll(context.Background(), "#corePrice_feature_div")
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	strikes, err := blocks[0].QueryAll(`.a-price[data-a-strike="true"] .a-offscreen`)
	require.NoError(t, err)
	require.Len(t, strikes, 1)
	text, _ := strikes[0].Text()
	assert.Equal(t, "29,99 €", text)
}

func TestStaticPage_SelectorGroupAndInvalid(t *testing.T) {
	p := newLoadedPage(t)

	els, err := p.QueryAll(context.Background(), "#hidden-inline, #hidden-attr")
	require.NoError(t, err)
	assert.Len(t, els, 2)

	_, err = p.QueryAll(context.Background(), "div[")
	assert.Error(t, err)
}

func TestStaticPage_NavigateFailure(t *testing.T) {
	p := newLoadedPage(t)

	err := p.Navigate(context.Background(), "https://www.amazon.de/dp/missing", time.Second)
	require.Error(t, err)

	var se *models.CheckError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, models.ErrCodeNavigation, se.Code)

	_, err = p.QueryAll(context.Background(), "span")
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestStaticLauncher(t *testing.T) {
	l := NewStaticLauncher(NewFixtureFetcher(nil))
	s, err := l.Launch(context.Background(), true)
	require.NoError(t, err)
	assert.NotNil(t, s.Page())
	assert.NoError(t, s.Close())
}

func TestNewLauncher(t *testing.T) {
	cfg := config.BrowserConfig{Headless: true}

	l, err := NewLauncher("browser", cfg)
	require.NoError(t, err)
	assert.IsType(t, &RodLauncher{}, l)

	l, err = NewLauncher(" HTTP ", cfg)
	require.NoError(t, err)
	assert.IsType(t, &StaticLauncher{}, l)

	_, err = NewLauncher("lynx", cfg)
	assert.ErrorContains(t, err, `unknown engine "lynx"`)
}
