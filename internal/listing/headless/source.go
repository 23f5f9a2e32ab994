// Package headless implements harvest.ListingSource on a JavaScript-rendered
// listing site driven through headless Chrome.
package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/bidharvest/internal/harvest"
)

// Selectors locate the interactive parts of the listing page.
type Selectors struct {
	CategoryInput  string `mapstructure:"category_input"`
	CategorySubmit string `mapstructure:"category_submit"`
	SearchInput    string `mapstructure:"search_input"`
	SearchSubmit   string `mapstructure:"search_submit"`
	Row            string `mapstructure:"row"`
	Link           string `mapstructure:"link"`
	Next           string `mapstructure:"next"`
}

// DefaultSelectors match the GeM advance-search page.
var DefaultSelectors = Selectors{
	CategoryInput:  "#ministry",
	CategorySubmit: "#searchByBid",
	SearchInput:    "#searchBid",
	SearchSubmit:   "#searchBidRA",
	Row:            "#bidCard .card",
	Link:           "a.bid_no_hover",
	Next:           "#light-pagination a.next",
}

// Config controls the listing session.
type Config struct {
	URL      string
	Category string
	// Query filters the listing; empty or "*" means no filter.
	Query        string
	ReadyTimeout time.Duration
	Settle       time.Duration
	UserAgent    string
	Selectors    Selectors
	Headless     bool
}

// Source keeps one browser tab open across pages.
type Source struct {
	cfg         Config
	base        *url.URL
	allocCancel context.CancelFunc
	tab         context.Context
	tabCancel   context.CancelFunc
	logger      *zap.Logger
}

// Open starts a browser, loads the listing and applies the category and query
// filters. Any failure here is reported as harvest.ErrListingUnavailable.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Source, error) {
	cfg, base, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	tab, tabCancel := chromedp.NewContext(allocCtx)

	s := &Source{
		cfg:         cfg,
		base:        base,
		allocCancel: allocCancel,
		tab:         tab,
		tabCancel:   tabCancel,
		logger:      logger.Named("listing"),
	}
	if err := s.load(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %w", harvest.ErrListingUnavailable, err)
	}
	return s, nil
}

// Close shuts the browser down.
func (s *Source) Close() {
	s.tabCancel()
	s.allocCancel()
}

func (s *Source) load(ctx context.Context) error {
	actions := []chromedp.Action{
		s.networkSetupAction(),
		chromedp.Navigate(s.cfg.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	sel := s.cfg.Selectors
	if s.cfg.Category != "" && sel.CategoryInput != "" {
		actions = append(actions,
			chromedp.WaitVisible(sel.CategoryInput, chromedp.ByQuery),
			chromedp.SetValue(sel.CategoryInput, s.cfg.Category, chromedp.ByQuery),
		)
		if sel.CategorySubmit != "" {
			actions = append(actions, chromedp.Click(sel.CategorySubmit, chromedp.ByQuery))
		}
	}
	if query := s.cfg.Query; !IsWildcard(query) && sel.SearchInput != "" {
		actions = append(actions,
			chromedp.WaitVisible(sel.SearchInput, chromedp.ByQuery),
			chromedp.SendKeys(sel.SearchInput, query, chromedp.ByQuery),
		)
		if sel.SearchSubmit != "" {
			actions = append(actions, chromedp.Click(sel.SearchSubmit, chromedp.ByQuery))
		}
	}
	return s.run(ctx, s.cfg.ReadyTimeout*2, actions...)
}

// Items returns the descriptors on the current page. A page whose rows do not
// appear within the ready timeout is reported as empty.
func (s *Source) Items(ctx context.Context) ([]harvest.ItemDescriptor, error) {
	err := s.run(ctx, s.cfg.ReadyTimeout,
		chromedp.WaitVisible(s.cfg.Selectors.Row, chromedp.ByQuery),
		chromedp.Sleep(s.cfg.Settle),
	)
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("listing rows not ready", zap.Duration("timeout", s.cfg.ReadyTimeout))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var raw string
	if err := s.run(ctx, s.cfg.ReadyTimeout, chromedp.Evaluate(extractScript(s.cfg.Selectors), &raw)); err != nil {
		return nil, err
	}
	items, err := decodeItems(raw, s.base)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("listing page read", zap.Int("items", len(items)))
	return items, nil
}

// HasNext reports whether an enabled next-page control exists.
func (s *Source) HasNext(ctx context.Context) (bool, error) {
	var ok bool
	if err := s.run(ctx, s.cfg.ReadyTimeout, chromedp.Evaluate(hasNextScript(s.cfg.Selectors.Next), &ok)); err != nil {
		return false, err
	}
	return ok, nil
}

// Next advances to the following page.
func (s *Source) Next(ctx context.Context) error {
	return s.run(ctx, s.cfg.ReadyTimeout,
		chromedp.Click(s.cfg.Selectors.Next, chromedp.ByQuery, chromedp.NodeVisible),
		chromedp.Sleep(s.cfg.Settle),
	)
}

// run executes actions on the tab, bounded by timeout and by ctx.
func (s *Source) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("listing action canceled: %w", ctx.Err())
		}
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func (s *Source) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// IsWildcard reports whether a search term means "no filter".
func IsWildcard(term string) bool {
	term = strings.TrimSpace(term)
	return term == "" || term == "*"
}

// Queries turns configured search terms into listing queries. Wildcards
// collapse into a single unfiltered query.
func Queries(terms []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if IsWildcard(t) {
			t = "*"
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	if _, ok := seen["*"]; ok {
		return []string{"*"}
	}
	return out
}

func normalizeConfig(cfg Config) (Config, *url.URL, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil || base.Host == "" {
		return cfg, nil, fmt.Errorf("%w: invalid listing url %q", harvest.ErrListingUnavailable, cfg.URL)
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 60 * time.Second
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 500 * time.Millisecond
	}
	def := DefaultSelectors
	sel := &cfg.Selectors
	for _, pair := range []struct {
		dst *string
		def string
	}{
		{&sel.CategoryInput, def.CategoryInput},
		{&sel.CategorySubmit, def.CategorySubmit},
		{&sel.SearchInput, def.SearchInput},
		{&sel.SearchSubmit, def.SearchSubmit},
		{&sel.Row, def.Row},
		{&sel.Link, def.Link},
		{&sel.Next, def.Next},
	} {
		if strings.TrimSpace(*pair.dst) == "" {
			*pair.dst = pair.def
		}
	}
	return cfg, base, nil
}

func extractScript(sel Selectors) string {
	row, _ := json.Marshal(sel.Row)
	link, _ := json.Marshal(sel.Link)
	return fmt.Sprintf(`JSON.stringify(Array.from(document.querySelectorAll(%s)).map(function (row) {
  var a = row.querySelector(%s);
  if (!a) { return null; }
  return {identity: a.getAttribute("href") || "", displayId: (a.textContent || "").trim()};
}).filter(function (x) { return x !== null; }))`, row, link)
}

func hasNextScript(next string) string {
	sel, _ := json.Marshal(next)
	return fmt.Sprintf(`(function () {
  var el = document.querySelector(%s);
  if (!el) { return false; }
  if (el.disabled || el.getAttribute("aria-disabled") === "true") { return false; }
  return !/\bdisabled\b/.test(el.className || "") && !/\bdisabled\b/.test((el.parentElement || {}).className || "");
})()`, sel)
}

// decodeItems parses the script output, resolves relative links and drops
// rows without a link.
func decodeItems(raw string, base *url.URL) ([]harvest.ItemDescriptor, error) {
	var rows []harvest.ItemDescriptor
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, fmt.Errorf("decode listing rows: %w", err)
	}
	out := make([]harvest.ItemDescriptor, 0, len(rows))
	for _, r := range rows {
		href := strings.TrimSpace(r.Identity)
		if href == "" || strings.HasPrefix(href, "javascript:") || href == "#" {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		out = append(out, harvest.ItemDescriptor{
			Identity:  abs.String(),
			DisplayID: strings.Join(strings.Fields(r.DisplayID), " "),
		})
	}
	return out, nil
}
