package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DateLayout is the date format used by the archive endpoint and the report keys.
const DateLayout = "02.01.2006"

// SupportedCurrencies lists the currencies included in a history report.
var SupportedCurrencies = []string{"EUR", "USD"}

// ErrInvalidDays is returned for a day count below one.
var ErrInvalidDays = errors.New("number of days must be at least 1")

// Quote is the rate pair of one currency on one day.
type Quote struct {
	Sale     float64 `json:"sale"`
	Purchase float64 `json:"purchase"`
}

// Day is one report row. A nil quote means the rate could not be fetched.
type Day struct {
	Date   string
	Quotes map[string]*Quote
}

// MarshalJSON renders the day as {"DD.MM.YYYY": {"EUR": {...}, "USD": {...}}}.
func (d Day) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]map[string]*Quote{d.Date: d.Quotes})
}

// History returns one Day per calendar day, newest first, for the last days
// days (bounded by MaxDays). Quotes are fetched concurrently; a failed quote
// is logged and left nil instead of failing the report.
func (c *Client) History(ctx context.Context, days int) ([]Day, error) {
	if days < 1 {
		return nil, ErrInvalidDays
	}
	if days > c.maxDays {
		days = c.maxDays
	}

	today := c.now()
	quotes := make([][]*Quote, days)
	dates := make([]string, days)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := 0; i < days; i++ {
		dates[i] = today.AddDate(0, 0, -i).Format(DateLayout)
		quotes[i] = make([]*Quote, len(SupportedCurrencies))
		for k, ccy := range SupportedCurrencies {
			g.Go(func() error {
				q, err := c.quote(gctx, ccy, dates[i])
				if err != nil {
					c.logger.Warn("failed to fetch rate", "currency", ccy, "date", dates[i], "error", err)
					return nil
				}
				quotes[i][k] = q
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := make([]Day, days)
	for i := range report {
		report[i] = Day{Date: dates[i], Quotes: make(map[string]*Quote, len(SupportedCurrencies))}
		for k, ccy := range SupportedCurrencies {
			report[i].Quotes[ccy] = quotes[i][k]
		}
	}
	return report, nil
}

func (c *Client) quote(ctx context.Context, ccy, date string) (*Quote, error) {
	entries, err := c.get(ctx, archiveURL(c.archiveURL, date))
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Ccy != ccy {
			continue
		}
		sale, err := e.Sale.Float()
		if err != nil {
			return nil, fmt.Errorf("parse %s sale: %w", ccy, err)
		}
		purchase, err := e.Buy.Float()
		if err != nil {
			return nil, fmt.Errorf("parse %s buy: %w", ccy, err)
		}
		return &Quote{Sale: sale, Purchase: purchase}, nil
	}
	return nil, fmt.Errorf("currency %s not in response", ccy)
}

func archiveURL(base, date string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "date=" + date
}
