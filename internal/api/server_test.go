package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/cityweather/internal/api"
	"github.com/lox/cityweather/internal/geoip"
	"github.com/lox/cityweather/internal/mapview"
	"github.com/lox/cityweather/internal/models"
	"github.com/lox/cityweather/internal/screen"
	"github.com/lox/cityweather/internal/store"
)

func ptr(v float64) *float64 { return &v }

type fakeWeather struct {
	mu      sync.Mutex
	queries []models.LocationQuery
	block   chan struct{}
	err     error
}

func (f *fakeWeather) Current(ctx context.Context, q models.LocationQuery) (*models.WeatherSnapshot, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	block, fail := f.block, f.err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		return nil, fail
	}

	snap := &models.WeatherSnapshot{
		Weather: []models.WeatherCondition{{Main: "Clouds", Description: "broken clouds"}},
		Clouds:  &models.Clouds{All: ptr(75)},
	}
	switch {
	case !q.IsCity() || strings.EqualFold(q.City, "osaka"):
		snap.Name = "Osaka"
		snap.Coord = &models.Coordinates{Lat: 34.69, Lon: 135.5}
		snap.Main = &models.MainReadings{Temp: ptr(300.15), TempMin: ptr(298.15), TempMax: ptr(302.15), Humidity: ptr(70)}
	default:
		snap.Name = "Paris"
		snap.Coord = &models.Coordinates{Lat: 48.85, Lon: 2.35}
		snap.Main = &models.MainReadings{Temp: ptr(290.15), TempMin: ptr(288.15), TempMax: ptr(292.15), Humidity: ptr(60)}
	}
	return snap, nil
}

func (f *fakeWeather) calls() []models.LocationQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.LocationQuery(nil), f.queries...)
}

type testEnv struct {
	store   *store.Store
	weather *fakeWeather
	handler http.Handler
}

func setupTestServer(t *testing.T, opts api.Options) *testEnv {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		t.Fatal(err)
	}

	if opts.RenderWait == 0 {
		opts.RenderWait = 2 * time.Second
	}
	weather := &fakeWeather{}
	screens := screen.NewRegistry(time.Hour)
	t.Cleanup(screens.Stop)

	srv := api.NewServer(st, weather, screens, opts)
	return &testEnv{store: st, weather: weather, handler: srv.Handler()}
}

var screenIDPattern = regexp.MustCompile(`/screens/([0-9a-f-]{36})/`)

// open loads the index page and returns the screen ID and client cookie.
func (e *testEnv) open(t *testing.T, target string) (string, *http.Cookie, string) {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("GET %s: expected 200, got %d", target, w.Code)
	}

	m := screenIDPattern.FindStringSubmatch(w.Body.String())
	if m == nil {
		t.Fatalf("no screen id in page")
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected client cookie")
	}
	return m[1], cookies[0], w.Body.String()
}

func (e *testEnv) post(t *testing.T, path string, cookie *http.Cookie, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) get(t *testing.T, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	env := setupTestServer(t, api.Options{})

	w := env.get(t, "/health", nil)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var health api.HealthStatus
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" {
		t.Errorf("status = %q, want ok", health.Status)
	}
	if health.SchemaVersion == 0 {
		t.Error("expected schema version")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	env := setupTestServer(t, api.Options{})

	w := env.get(t, "/metrics", nil)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "cityweather_live_screens") {
		t.Error("expected cityweather metrics")
	}
}

func TestIndexWithCity(t *testing.T) {
	t.Parallel()
	env := setupTestServer(t, api.Options{})

	_, _, body := env.open(t, "/?city=paris")

	for _, want := range []string{"Paris", "17°C", "broken clouds", "High", "19°C", "60%"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	calls := env.weather.calls()
	if len(calls) != 1 || calls[0].City != "paris" {
		t.Errorf("weather calls = %+v, want one for paris", calls)
	}
	if strings.Contains(body, "Loading weather") {
		t.Error("loading indicator shown after weather arrived")
	}
}

func TestIndexWithoutCityOrGeolocationUsesFallback(t *testing.T) {
	t.Parallel()
	env := setupTestServer(t, api.Options{})

	_, _, body := env.open(t, "/")

	calls := env.weather.calls()
	if len(calls) != 1 || calls[0].City != "osaka" {
		t.Fatalf("weather calls = %+v, want fallback osaka", calls)
	}
	if !strings.Contains(body, "Osaka") {
		t.Error("page missing Osaka")
	}
}

func TestIndexConfiguredFallback(t *testing.T) {
	t.Parallel()
	env := setupTestServer(t, api.Options{FallbackCity: "paris"})

	env.open(t, "/")

	if calls := env.weather.calls(); calls[0].City != "paris" {
		t.Errorf("city = %q, want paris", calls[0].City)
	}
}

func TestIndexUsesGeolocation(t *testing.T) {
	t.Parallel()
	geoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","lat":34.69,"lon":135.5}`))
	}))
	defer geoSrv.Close()

	env := setupTestServer(t, api.Options{Geo: geoip.NewClient(geoSrv.URL)})
	env.open(t, "/")

	calls := env.weather.calls()
	if len(calls) != 1 || calls[0].Coords == nil {
		t.Fatalf("weather calls = %+v, want coordinate query", calls)
	}
	if calls[0].Coords.Lat != 34.69 {
		t.Errorf("lat = %v, want 34.69", calls[0].Coords.Lat)
	}
}

func TestIndexCityParamSkipsGeolocation(t *testing.T) {
	t.Parallel()
	geoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("geolocation should not be consulted when a city is given")
	}))
	defer geoSrv.Close()

	env := setupTestServer(t, api.Options{Geo: geoip.NewClient(geoSrv.URL)})
	env.open(t, "/?city=paris")
}

func TestIndexGeolocationFailureFallsBack(t *testing.T) {
	t.Parallel()
	env := setupTestServer(t, api.Options{Geo: geoip.NewClient("http://127.0.0.1:1")})

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	calls := env.weather.calls()
	if len(calls) != 1 || calls[0].City != "osaka" {
		t.Fatalf("weather calls = %+v, want fallback osaka", calls)
	}
}

func TestIndexTextFormat(t *testing.T) {
	t.Parallel()
	env := setupTestServer(t, api.Options{})

	w := env.get(t, "/?city=paris&format=text", nil)
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Paris") {
		t.Error("text page missing city")
	}
	if strings.Contains(body, "<section") {
		t.Error("text page contains markup")
	}
}

func TestSlowProviderRendersLoadingThenWeather(t *testing.T) {
	t.Parallel()
	env := setupTestServer(t, api.Options{RenderWait: 10 * time.Millisecond})
	env.weather.block = make(chan struct{})

	id, cookie, body := env.open(t, "/?city=paris")
	if !strings.Contains(body, "Loading weather") {
		t.Error("expected loading indicator")
	}
	if !strings.Contains(body, `hx-get="/screens/`+id+`/weather"`) {
		t.Error("expected weather partial to poll while loading")
	}

	close(env.weather.block)

	deadline := time.Now().Add(2 * time.Second)
	for {
		w := env.get(t, "/screens/"+id+"/weather", cookie)
		if strings.Contains(w.Body.String(), "Paris") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("weather never arrived")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestFailedFetchRendersNoReading(t *testing.T) {
	t.Parallel()
	env := setupTestServer(t, api.Options{})
	env.weather.err = errors.New("provider returned 502")

	_, _, body := env.open(t, "/?city=paris")
	if strings.Contains(body, "°C") {
		t.Error("page shows a temperature without weather data")
	}
	if strings.Contains(body, `class="temp"`) {
		t.Error("page shows the weather card without weather data")
	}
	if strings.Contains(body, "Loading weather") {
		t.Error("loading indicator shown after the fetch settled")
	}
}

func TestInputSurvivesRerender(t *testing.T) {
	t.Parallel()
	env := setupTestServer(t, api.Options{})
	id, cookie, _ := env.open(t, "/?city=paris")

	w := env.post(t, "/screens/"+id+"/input", cookie, url.Values{"city": {"lim"}})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}

	w = env.post(t, "/screens/"+id+"/menu", cookie, nil)
	if !strings.Contains(w.Body.String(), `value="lim"`) {
		t.Error("add form lost the typed text")
	}
}

func TestAddCityPersistsWithoutFetching(t *testing.T) {
	t.Parallel()
	env := setupTestServer(t, api.Options{})
	id, cookie, _ := env.open(t, "/?city=paris")

	w := env.post(t, "/screens/"+id+"/cities", cookie, url.Values{"city": {"tokyo"}})
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "tokyo") {
		t.Error("cities partial missing tokyo")
	}
	if strings.Contains(w.Body.String(), "No saved cities yet!") {
		t.Error("empty state shown with a saved city")
	}

	w = env.post(t, "/screens/"+id+"/cities", cookie, url.Values{"city": {"tokyo"}})
	if strings.Count(w.Body.String(), `aria-label="Remove tokyo"`) != 1 {
		t.Error("expected tokyo to be saved once")
	}

	if n := len(env.weather.calls()); n != 1 {
		t.Errorf("weather calls = %d, want 1", n)
	}

	raw, ok, err := env.store.Get(cookie.Value, "savedCities")
	if err != nil || !ok {
		t.Fatalf("stored value: ok=%v err=%v", ok, err)
	}
	if raw != `["tokyo"]` {
		t.Errorf("stored = %s, want [\"tokyo\"]", raw)
	}
}

func TestSavedCitiesSurviveReload(t *testing.T) {
	t.Parallel()
	env := setupTestServer(t, api.Options{})
	id, cookie, _ := env.open(t, "/?city=paris")
	env.post(t, "/screens/"+id+"/cities", cookie, url.Values{"city": {"lima"}})

	w := env.get(t, "/?city=paris", cookie)
	if !strings.Contains(w.Body.String(), `href="/?city=lima"`) {
		t.Error("reloaded page missing saved city link")
	}
	if !strings.Contains(w.Body.String(), "Current Location") {
		t.Error("menu missing Current Location link")
	}
}

func TestDeleteCity(t *testing.T) {
	t.Parallel()
	env := setupTestServer(t, api.Options{})
	id, cookie, _ := env.open(t, "/?city=paris")
	env.post(t, "/screens/"+id+"/cities", cookie, url.Values{"city": {"lima"}})
	env.post(t, "/screens/"+id+"/cities", cookie, url.Values{"city": {"oslo"}})

	w := env.post(t, "/screens/"+id+"/cities/delete", cookie, url.Values{"city": {"lima"}})
	if strings.Contains(w.Body.String(), `value="lima"`) {
		t.Error("lima still listed after delete")
	}

	raw, _, _ := env.store.Get(cookie.Value, "savedCities")
	if raw != `["oslo"]` {
		t.Errorf("stored = %s, want [\"oslo\"]", raw)
	}
}

func TestToggleMenuShowsEmptyState(t *testing.T) {
	t.Parallel()
	env := setupTestServer(t, api.Options{})
	id, cookie, body := env.open(t, "/?city=paris")
	if strings.Contains(body, "No saved cities yet!") {
		t.Error("menu should be hidden with nothing saved")
	}

	w := env.post(t, "/screens/"+id+"/menu", cookie, nil)
	if !strings.Contains(w.Body.String(), "No saved cities yet!") {
		t.Error("expected empty state after expanding menu")
	}

	w = env.post(t, "/screens/"+id+"/menu", cookie, nil)
	if strings.Contains(w.Body.String(), "No saved cities yet!") {
		t.Error("expected menu hidden after collapsing")
	}
}

func TestNavigateFetchesAgain(t *testing.T) {
	t.Parallel()
	env := setupTestServer(t, api.Options{})
	id, cookie, _ := env.open(t, "/?city=paris")

	w := env.get(t, "/screens/"+id+"/navigate?city=osaka", cookie)
	if !strings.Contains(w.Body.String(), "Osaka") {
		t.Error("navigate result missing Osaka")
	}
	if n := len(env.weather.calls()); n != 2 {
		t.Errorf("weather calls = %d, want 2", n)
	}
}

func TestUnknownScreen(t *testing.T) {
	t.Parallel()
	env := setupTestServer(t, api.Options{})

	w := env.get(t, "/screens/00000000-0000-0000-0000-000000000000/weather", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestScreenOfAnotherClient(t *testing.T) {
	t.Parallel()
	env := setupTestServer(t, api.Options{})
	id, _, _ := env.open(t, "/?city=paris")

	other := &http.Cookie{Name: "cityweather_client", Value: "11111111-1111-1111-1111-111111111111"}
	w := env.post(t, "/screens/"+id+"/cities", other, url.Values{"city": {"tokyo"}})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestAPIScreen(t *testing.T) {
	t.Parallel()
	env := setupTestServer(t, api.Options{})
	id, cookie, _ := env.open(t, "/?city=paris")

	w := env.get(t, "/api/screens/"+id, cookie)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var v struct {
		Loading bool `json:"loading"`
		Display struct {
			City        string `json:"currentCity"`
			CurrentTemp int    `json:"currentTemp"`
		} `json:"display"`
		Map struct {
			Style string `json:"style"`
			Zoom  int    `json:"zoom"`
		} `json:"map"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	if v.Loading || v.Display.City != "Paris" || v.Display.CurrentTemp != 17 {
		t.Errorf("unexpected view: %+v", v)
	}
	if v.Map.Style != "mapbox/light-v10" || v.Map.Zoom != 10 {
		t.Errorf("unexpected map: %+v", v.Map)
	}
}

func TestMapImage(t *testing.T) {
	t.Parallel()
	var gotPath string
	mapSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte("PNG"))
	}))
	defer mapSrv.Close()

	env := setupTestServer(t, api.Options{Maps: mapview.NewStaticMaps("tok", mapSrv.URL, nil)})
	id, cookie, body := env.open(t, "/?city=paris")
	if !strings.Contains(body, "/screens/"+id+"/map.png") {
		t.Error("page missing map image")
	}

	w := env.get(t, "/screens/"+id+"/map.png", cookie)
	if w.Code != 200 || w.Body.String() != "PNG" {
		t.Fatalf("map image: %d %q", w.Code, w.Body.String())
	}
	if gotPath != "/styles/v1/mapbox/light-v10/static/2.35,48.85,10/600x400" {
		t.Errorf("map path = %s", gotPath)
	}
}

func TestOGImage(t *testing.T) {
	t.Parallel()
	env := setupTestServer(t, api.Options{})

	w := env.get(t, "/og.png?city=paris", nil)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
}

func TestBannerUnavailable(t *testing.T) {
	t.Parallel()
	env := setupTestServer(t, api.Options{})

	w := env.get(t, "/banner.png?type=Clouds", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}
