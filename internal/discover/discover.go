package discover

import (
	"fmt"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// Config holds listing discovery settings.
type Config struct {
	UserAgent string
	// Delay between listing page requests.
	Delay time.Duration
	// MaxPages bounds pagination. Zero means a single page.
	MaxPages int
}

// Discoverer expands paginated listing pages into target item URLs
// using a link selector.
type Discoverer struct {
	collector *colly.Collector
	cfg       Config
}

// New creates a Discoverer.
func New(cfg Config) *Discoverer {
	opts := []colly.CollectorOption{colly.AllowURLRevisit()}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	c := colly.NewCollector(opts...)

	if cfg.Delay > 0 {
		c.Limit(&colly.LimitRule{
			DomainGlob:  "*",
			Delay:       cfg.Delay,
			RandomDelay: cfg.Delay / 2,
		})
	}

	return &Discoverer{collector: c, cfg: cfg}
}

// Listing visits a listing URL (and its ?page=N successors up to
// MaxPages) and returns the absolute href of every node matching
// linkSelector, deduplicated in discovery order. Pagination stops
// early on a page that yields no new links.
func (d *Discoverer) Listing(listURL, linkSelector string) ([]string, error) {
	var urls []string
	seen := make(map[string]bool)
	var visitErr error

	collector := d.collector.Clone()

	collector.OnHTML(linkSelector, func(el *colly.HTMLElement) {
		link := el.Attr("href")
		if link == "" {
			link = el.ChildAttr("a", "href")
		}
		if link == "" {
			return
		}
		if !strings.HasPrefix(link, "http") {
			link = el.Request.AbsoluteURL(link)
		}
		if link == "" || seen[link] {
			return
		}
		seen[link] = true
		urls = append(urls, link)
	})

	collector.OnError(func(r *colly.Response, err error) {
		visitErr = fmt.Errorf("listing fetch: %w (status: %d)", err, r.StatusCode)
	})

	pages := d.cfg.MaxPages
	if pages < 1 {
		pages = 1
	}
	for page := 1; page <= pages; page++ {
		target := listURL
		if page > 1 {
			sep := "?"
			if strings.Contains(listURL, "?") {
				sep = "&"
			}
			target = fmt.Sprintf("%s%spage=%d", listURL, sep, page)
		}

		before := len(urls)
		if err := collector.Visit(target); err != nil {
			return urls, fmt.Errorf("visit listing url: %w", err)
		}
		if visitErr != nil {
			return urls, visitErr
		}
		if len(urls) == before {
			break
		}
	}

	return urls, nil
}
