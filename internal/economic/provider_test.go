package economic

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const keyRateResponse = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope">
  <soap:Body>
    <KeyRateResponse xmlns="http://web.cbr.ru/">
      <KeyRateResult>
        <diffgr:diffgram xmlns:msdata="urn:schemas-microsoft-com:xml-msdata" xmlns:diffgr="urn:schemas-microsoft-com:xml-diffgram-v1">
          <KeyRate xmlns="">
            <KR diffgr:id="KR1" msdata:rowOrder="0">
              <DT>2025-06-10T00:00:00+03:00</DT>
              <Rate>20.00</Rate>
            </KR>
            <KR diffgr:id="KR2" msdata:rowOrder="1">
              <DT>2025-06-09T00:00:00+03:00</DT>
              <Rate>21.00</Rate>
            </KR>
          </KeyRate>
        </diffgr:diffgram>
      </KeyRateResult>
    </KeyRateResponse>
  </soap:Body>
</soap:Envelope>`

func TestParseKeyRate(t *testing.T) {
	rate, err := parseKeyRate([]byte(keyRateResponse))
	require.NoError(t, err)
	assert.Equal(t, 20.0, rate)

	_, err = parseKeyRate([]byte(`<root><nothing/></root>`))
	assert.Error(t, err)

	_, err = parseKeyRate([]byte(`not xml <`))
	assert.Error(t, err)
}

func keyRateServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Method != http.MethodPost || !strings.Contains(string(body), "<fromDate>") {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/soap+xml")
		_, _ = io.WriteString(w, keyRateResponse)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPProviderFeed(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"gdpGrowth": 7.2,
			"inflation": 4.1,
			"policyRate": 6.25,
			"unemployment": 6.8,
			"sectorPerformance": {" IT ": 9.1, "Real Estate": -2}
		}`)
	}))
	defer feed.Close()

	p := NewHTTPProvider(feed.URL, nil, time.Second)
	snap, err := p.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 7.2, snap.GDPGrowth)
	assert.Equal(t, 6.25, snap.PolicyRate)
	assert.Equal(t, 9.1, snap.SectorPerformance["it"])
	assert.Equal(t, -2.0, snap.SectorPerformance["real estate"])
	assert.Equal(t, "neutral", string(snap.MarketSentiment))
	assert.Equal(t, feed.URL, snap.Source)
	assert.False(t, snap.IsFallback)
	assert.False(t, snap.AsOf.IsZero())
}

func TestHTTPProviderKeyRateOverride(t *testing.T) {
	kr := NewKeyRateClient(keyRateServer(t).URL, time.Second)

	t.Run("StaticBase", func(t *testing.T) {
		snap, err := NewHTTPProvider("", kr, time.Second).Fetch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 20.0, snap.PolicyRate)
		assert.Equal(t, "static+keyrate", snap.Source)
		assert.False(t, snap.IsFallback)
		assert.Equal(t, 6.5, snap.GDPGrowth)
	})

	t.Run("KeyRateFailure", func(t *testing.T) {
		down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer down.Close()

		_, err := NewHTTPProvider("", NewKeyRateClient(down.URL, time.Second), time.Second).Fetch(context.Background())
		assert.Error(t, err)
	})
}

func TestHTTPProviderErrors(t *testing.T) {
	t.Run("NoSource", func(t *testing.T) {
		_, err := NewHTTPProvider("", nil, 0).Fetch(context.Background())
		assert.True(t, errors.Is(err, ErrNoSource))
	})

	t.Run("BadStatus", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := NewHTTPProvider(srv.URL, nil, time.Second).Fetch(context.Background())
		assert.Error(t, err)
	})

	t.Run("BadJSON", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "{")
		}))
		defer srv.Close()

		_, err := NewHTTPProvider(srv.URL, nil, time.Second).Fetch(context.Background())
		assert.Error(t, err)
	})
}
