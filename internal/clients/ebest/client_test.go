package ebest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gotti0/kimum-trade-sub000/internal/clients/rest"
	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

func testClient(baseURL string) *Client {
	return New(Config{
		BaseURL:     baseURL,
		AccessToken: "token",
		Rest: rest.Config{
			MinInterval: time.Millisecond,
			BackoffBase: time.Millisecond,
		},
	}, zerolog.Nop())
}

func TestMinuteBarsFollowCursorChain(t *testing.T) {
	pages := map[string]string{
		"": `{"rows": [
			{"date": "20240102", "time": 900, "close": 100, "volume": 10},
			{"date": "20240102", "time": 901, "close": 101, "volume": 11}
		], "next_cursor": "p2"}`,
		"p2": `{"rows": [
			{"date": "20240102", "time": 902, "close": 102, "volume": 12}
		], "next_cursor": ""}`,
	}

	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("cursor")
		requested = append(requested, cursor)
		fmt.Fprint(w, pages[cursor])
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	bars, err := c.FetchMinuteBars(context.Background(),
		"005930", domain.MustParseDay("20240101"), domain.MustParseDay("20240131"))
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, []string{"", "p2"}, requested)
	assert.Equal(t, 900, bars[0].Time)
	assert.Equal(t, 902, bars[2].Time)
}

func TestMinuteBarsDetectPaginationLoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Always hand back the same cursor.
		fmt.Fprint(w, `{"rows": [], "next_cursor": "stuck"}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.FetchMinuteBars(context.Background(),
		"005930", domain.MustParseDay("20240101"), domain.MustParseDay("20240131"))
	require.Error(t, err)
	assert.True(t, domain.IsFetchError(err))
	assert.Contains(t, err.Error(), "pagination loop")
}

func TestDailyBarsSingleRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/bars/daily", r.URL.Path)
		fmt.Fprint(w, `{"rows": [
			{"date": "20240103", "close": 102, "volume": 1000},
			{"date": "20240102", "close": 101, "volume": 900}
		]}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	bars, err := c.FetchDailyBars(context.Background(),
		"005930", domain.MustParseDay("20240101"), domain.MustParseDay("20240131"))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Day < bars[1].Day)
}

func TestInstrumentInfoMapsFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Codes []string `json:"codes"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		json.NewEncoder(w).Encode(map[string]any{"items": []map[string]any{
			{"code": "005930", "market": "KOSPI", "sector": "Tech", "market_cap": 4e14, "ats": true},
		}})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	infos, err := c.FetchInstrumentInfo(context.Background(), []string{"005930"})
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.True(t, infos["005930"].ATSEligible)
	assert.Equal(t, 4e14, infos["005930"].MarketCap)
}
