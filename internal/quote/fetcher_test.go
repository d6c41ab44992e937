package quote_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"investflow/internal/catalog"
	"investflow/internal/model"
	"investflow/internal/quote"
	"investflow/internal/testutils"
)

func cryptoList() []model.Instrument {
	return []model.Instrument{
		{ID: "bitcoin", Symbol: "BTC", DisplayName: "Bitcoin", Kind: model.KindCrypto, Price: 0, History: []float64{60000, 61000, 62000, 63000, 64000}},
		{ID: "ethereum", Symbol: "ETH", DisplayName: "Ethereum", Kind: model.KindCrypto, Price: 3450.12, ChangePercent: 2.1, History: []float64{3300, 3350, 3320, 3400, 3450}},
	}
}

func newFetcher(client quote.HTTPClient, list []model.Instrument) *quote.QuoteFetcher {
	return quote.New(client, quote.Config{BaseURL: "http://quotes.test/api/v3", Currency: "usd"}, list, zap.NewNop())
}

func TestRefresh_UpdatesOnlyMatchingInstrument(t *testing.T) {
	client := &testutils.MockHTTPClient{Bodies: []string{`{"bitcoin":{"usd":65000,"usd_24h_change":3.2}}`}}
	list := cryptoList()
	f := newFetcher(client, list)

	got := f.Refresh(context.Background(), list)

	if got[0].Price != 65000 || got[0].ChangePercent != 3.2 {
		t.Errorf("Expected bitcoin 65000 / 3.2, got %f / %f", got[0].Price, got[0].ChangePercent)
	}
	if !reflect.DeepEqual(got[1], list[1]) {
		t.Errorf("Ethereum must be untouched, got %+v", got[1])
	}
}

func TestRefresh_Scenario(t *testing.T) {
	client := &testutils.MockHTTPClient{Bodies: []string{`{"bitcoin":{"usd":64230.5,"usd_24h_change":4.5}}`}}
	list := cryptoList()
	f := newFetcher(client, list)

	got := f.Refresh(context.Background(), list)

	btc := got[0]
	if btc.Price != 64230.5 || btc.ChangePercent != 4.5 {
		t.Errorf("Unexpected bitcoin %+v", btc)
	}
	want := []float64{61000, 62000, 63000, 64000, 64230.5}
	if !reflect.DeepEqual(btc.History, want) {
		t.Errorf("Expected history %v, got %v", want, btc.History)
	}
	if list[0].Price != 0 {
		t.Errorf("Input list must not be mutated")
	}
}

func TestRefresh_MissingChangeDefaultsToZero(t *testing.T) {
	client := &testutils.MockHTTPClient{Bodies: []string{`{"ethereum":{"usd":3500}}`}}
	list := cryptoList()
	f := newFetcher(client, list)

	got := f.Refresh(context.Background(), list)

	if got[1].Price != 3500 || got[1].ChangePercent != 0 {
		t.Errorf("Expected 3500 / 0, got %f / %f", got[1].Price, got[1].ChangePercent)
	}
}

func TestRefresh_NullChangeDefaultsToZero(t *testing.T) {
	client := &testutils.MockHTTPClient{Bodies: []string{`{"ethereum":{"usd":3500,"usd_24h_change":null},"bitcoin":{}}`}}
	list := cryptoList()
	f := newFetcher(client, list)

	got := f.Refresh(context.Background(), list)

	if got[1].ChangePercent != 0 {
		t.Errorf("Expected change 0, got %f", got[1].ChangePercent)
	}
	if !reflect.DeepEqual(got[0], list[0]) {
		t.Errorf("Entry without price must be treated as absent, got %+v", got[0])
	}
}

func TestRefresh_NetworkFailureKeepsList(t *testing.T) {
	client := &testutils.MockHTTPClient{Err: testutils.ErrNetwork}
	list := cryptoList()
	before := model.CloneList(list)
	f := newFetcher(client, list)

	got := f.Refresh(context.Background(), list)

	if !reflect.DeepEqual(got, before) {
		t.Errorf("List must be unchanged on failure, got %+v", got)
	}
	if &got[0] != &list[0] {
		t.Errorf("Failure path must return the previous list itself")
	}
}

func TestFetch_ErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		client *testutils.MockHTTPClient
	}{
		{"network", &testutils.MockHTTPClient{Err: testutils.ErrNetwork}},
		{"status", &testutils.MockHTTPClient{Status: http.StatusTooManyRequests, Bodies: []string{`{"status":"rate limited"}`}}},
		{"decode", &testutils.MockHTTPClient{Bodies: []string{`<html>oops</html>`}}},
		{"shape", &testutils.MockHTTPClient{Bodies: []string{`{"bitcoin":"65000"}`}}},
	}

	for _, tt := range tests {
		f := newFetcher(tt.client, cryptoList())
		if _, err := f.Fetch(context.Background()); !errors.Is(err, quote.ErrSourceUnavailable) {
			t.Errorf("%s: expected ErrSourceUnavailable, got %v", tt.name, err)
		}
	}
}

func TestFetch_BatchedRequest(t *testing.T) {
	client := &testutils.MockHTTPClient{}
	list := catalog.Default().Crypto
	f := newFetcher(client, list)

	f.Fetch(context.Background())
	f.Fetch(context.Background())

	if client.Calls() != 2 {
		t.Fatalf("Expected one request per fetch, got %d", client.Calls())
	}
	req := client.Requests[0]
	if req.Method != http.MethodGet || req.URL.Path != "/api/v3/simple/price" {
		t.Errorf("Unexpected request %s %s", req.Method, req.URL.Path)
	}
	q := req.URL.Query()
	if q.Get("ids") != "bitcoin,ethereum,solana,binancecoin,ripple,cardano,dogecoin,polkadot" {
		t.Errorf("Unexpected ids %q", q.Get("ids"))
	}
	if q.Get("vs_currencies") != "usd" || q.Get("include_24hr_change") != "true" {
		t.Errorf("Unexpected query %v", q)
	}
}

func TestLoadingSignal_TransitionsOnce(t *testing.T) {
	client := &testutils.MockHTTPClient{Err: testutils.ErrNetwork}
	list := cryptoList()
	f := newFetcher(client, list)

	if !f.Loading() {
		t.Fatal("Fetcher must start in the loading state")
	}

	f.Refresh(context.Background(), list)
	if f.Loading() {
		t.Error("Loading must be false after the first settlement, even on failure")
	}
	select {
	case <-f.Loaded():
	default:
		t.Error("Loaded channel must be closed after the first settlement")
	}

	client.Err = nil
	client.Bodies = []string{`{"bitcoin":{"usd":1}}`}
	for i := 0; i < 3; i++ {
		f.Refresh(context.Background(), list)
		if f.Loading() {
			t.Fatal("Loading must never return to true")
		}
	}
}

func TestRefresh_Idempotent(t *testing.T) {
	body := `{"bitcoin":{"usd":64230.5,"usd_24h_change":4.5}}`
	client := &testutils.MockHTTPClient{Bodies: []string{body, body}}
	list := cryptoList()
	f := newFetcher(client, list)

	once := f.Refresh(context.Background(), list)
	twice := f.Refresh(context.Background(), once)

	if twice[0].Price != once[0].Price || twice[0].ChangePercent != once[0].ChangePercent {
		t.Errorf("Second identical refresh changed quote fields: %+v vs %+v", once[0], twice[0])
	}
	want := []float64{62000, 63000, 64000, 64230.5, 64230.5}
	if !reflect.DeepEqual(twice[0].History, want) {
		t.Errorf("Expected deterministic window shift %v, got %v", want, twice[0].History)
	}
	if !reflect.DeepEqual(twice[1], list[1]) {
		t.Errorf("Absent instrument changed: %+v", twice[1])
	}
}

func TestFetch_AgainstHTTPServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("vs_currencies") != "eur" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"bitcoin":{"eur":59000.25,"eur_24h_change":-1.5}}`))
	}))
	defer srv.Close()

	f := quote.New(srv.Client(), quote.Config{BaseURL: srv.URL + "/", Currency: "EUR"}, cryptoList(), zap.NewNop())

	quotes, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if q := quotes["bitcoin"]; q.Price != 59000.25 || q.ChangePercent != -1.5 {
		t.Errorf("Unexpected quote %+v", q)
	}
}

func TestApplyQuotes_DoesNotAlias(t *testing.T) {
	list := cryptoList()
	out := quote.ApplyQuotes(list, quote.Quotes{})
	out[1].History[0] = -1

	if list[1].History[0] == -1 {
		t.Errorf("ApplyQuotes must return independent instruments")
	}
}

func TestFetch_DoesNotEndLoading(t *testing.T) {
	f := newFetcher(&testutils.MockHTTPClient{}, cryptoList())

	if _, err := f.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !f.Loading() {
		t.Error("Fetch alone must not end the loading state")
	}
}

func TestUpdate_LoadingEndsAfterStore(t *testing.T) {
	client := &testutils.MockHTTPClient{Bodies: []string{`{"bitcoin":{"usd":64230.5,"usd_24h_change":4.5}}`}}
	f := newFetcher(client, cryptoList())

	stored := false
	err := f.Update(context.Background(), func(quotes quote.Quotes) {
		if !f.Loading() {
			t.Error("Loading ended before the quotes were stored")
		}
		if quotes["bitcoin"].Price != 64230.5 {
			t.Errorf("Unexpected quotes %+v", quotes)
		}
		stored = true
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !stored {
		t.Fatal("store was not called")
	}
	if f.Loading() {
		t.Error("Loading must be false once Update returns")
	}
}

func TestUpdate_FailureSkipsStore(t *testing.T) {
	f := newFetcher(&testutils.MockHTTPClient{Err: testutils.ErrNetwork}, cryptoList())

	err := f.Update(context.Background(), func(quote.Quotes) {
		t.Error("store must not be called on failure")
	})
	if !errors.Is(err, quote.ErrSourceUnavailable) {
		t.Errorf("Expected ErrSourceUnavailable, got %v", err)
	}
	if f.Loading() {
		t.Error("A failed first update still ends the loading state")
	}
}
