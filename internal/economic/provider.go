// Package economic provides the macro-economic snapshot and the adjustment
// passes it applies to a base default probability.
package economic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/opensource-finance/creditlens/internal/domain"
)

// ErrNoSource is returned by a provider with nothing configured.
var ErrNoSource = errors.New("no economic data source configured")

// Provider fetches a fresh macro snapshot.
type Provider interface {
	Fetch(ctx context.Context) (*domain.EconomicSnapshot, error)
}

// Fallback returns the static snapshot used when no provider answers.
func Fallback(now time.Time) *domain.EconomicSnapshot {
	return &domain.EconomicSnapshot{
		GDPGrowth:    6.5,
		Inflation:    5.0,
		PolicyRate:   6.5,
		Unemployment: 7.5,
		SectorPerformance: map[string]float64{
			"it":            8.0,
			"banking":       6.5,
			"manufacturing": 4.5,
			"agriculture":   2.5,
			"construction":  5.5,
			"retail":        5.0,
			"hospitality":   2.0,
			"healthcare":    7.5,
			"government":    5.0,
			"real estate":   -1.0,
		},
		MarketSentiment: domain.SentimentNeutral,
		AsOf:            now.UTC(),
		Source:          "fallback",
		IsFallback:      true,
	}
}

// HTTPProvider reads a JSON macro feed and, when configured, overrides the
// policy rate with the central-bank key rate.
type HTTPProvider struct {
	feedURL string
	client  *http.Client
	keyRate *KeyRateClient
	now     func() time.Time
}

// NewHTTPProvider creates a provider. Either URL may be empty; with only a
// key-rate URL the fallback snapshot is used as the base.
func NewHTTPProvider(feedURL string, keyRate *KeyRateClient, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		feedURL: feedURL,
		client:  &http.Client{Timeout: timeout},
		keyRate: keyRate,
		now:     time.Now,
	}
}

// Fetch implements Provider.
func (p *HTTPProvider) Fetch(ctx context.Context) (*domain.EconomicSnapshot, error) {
	if p.feedURL == "" && p.keyRate == nil {
		return nil, ErrNoSource
	}

	var snap *domain.EconomicSnapshot
	if p.feedURL != "" {
		s, err := p.fetchFeed(ctx)
		if err != nil {
			return nil, err
		}
		snap = s
	} else {
		snap = Fallback(p.now())
		snap.IsFallback = false
		snap.Source = "static"
	}

	if p.keyRate != nil {
		rate, err := p.keyRate.KeyRate(ctx)
		if err != nil {
			return nil, fmt.Errorf("key rate: %w", err)
		}
		snap.PolicyRate = rate
		snap.Source += "+keyrate"
	}
	return snap, nil
}

func (p *HTTPProvider) fetchFeed(ctx context.Context) (*domain.EconomicSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var snap domain.EconomicSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode feed: %w", err)
	}

	sectors := make(map[string]float64, len(snap.SectorPerformance))
	for k, v := range snap.SectorPerformance {
		sectors[strings.ToLower(strings.TrimSpace(k))] = v
	}
	snap.SectorPerformance = sectors
	if snap.MarketSentiment == "" {
		snap.MarketSentiment = domain.SentimentNeutral
	}
	if snap.AsOf.IsZero() {
		snap.AsOf = p.now().UTC()
	}
	snap.Source = p.feedURL
	snap.IsFallback = false
	return &snap, nil
}

// KeyRateClient reads the central-bank key rate from a SOAP service.
type KeyRateClient struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewKeyRateClient creates a key-rate client for url.
func NewKeyRateClient(url string, timeout time.Duration) *KeyRateClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KeyRateClient{url: url, client: &http.Client{Timeout: timeout}, now: time.Now}
}

func (c *KeyRateClient) buildRequest() string {
	to := c.now()
	from := to.AddDate(0, 0, -30)
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<soap12:Envelope xmlns:soap12="http://www.w3.org/2003/05/soap-envelope">
  <soap12:Body>
    <KeyRate xmlns="http://web.cbr.ru/">
      <fromDate>%s</fromDate>
      <ToDate>%s</ToDate>
    </KeyRate>
  </soap12:Body>
</soap12:Envelope>`, from.Format("2006-01-02"), to.Format("2006-01-02"))
}

// KeyRate returns the most recent key rate in percent.
func (c *KeyRateClient) KeyRate(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBufferString(c.buildRequest()))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")
	req.Header.Set("SOAPAction", "http://web.cbr.ru/KeyRate")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}
	return parseKeyRate(body)
}

// parseKeyRate extracts the first KR/Rate value from a key-rate response.
func parseKeyRate(body []byte) (float64, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return 0, fmt.Errorf("failed to parse XML: %w", err)
	}

	rows := doc.FindElements("//diffgram/KeyRate/KR")
	if len(rows) == 0 {
		return 0, fmt.Errorf("no key rate data found in XML")
	}
	rateEl := rows[0].FindElement("./Rate")
	if rateEl == nil {
		return 0, fmt.Errorf("rate element not found in XML")
	}

	rate, err := strconv.ParseFloat(strings.TrimSpace(rateEl.Text()), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse rate: %w", err)
	}
	return rate, nil
}
