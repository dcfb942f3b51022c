package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-co-op/gocron"
	_ "modernc.org/sqlite"

	"github.com/lox/cityweather/internal/api"
	"github.com/lox/cityweather/internal/config"
	"github.com/lox/cityweather/internal/display"
	"github.com/lox/cityweather/internal/geoip"
	"github.com/lox/cityweather/internal/imagegen"
	"github.com/lox/cityweather/internal/location"
	"github.com/lox/cityweather/internal/mapview"
	"github.com/lox/cityweather/internal/owm"
	"github.com/lox/cityweather/internal/screen"
	"github.com/lox/cityweather/internal/store"
)

type CLI struct {
	Serve  ServeCmd  `cmd:"" default:"1" help:"Run the weather web server"`
	Lookup LookupCmd `cmd:"" help:"Print the current weather for a city and exit"`
}

type ServeCmd struct {
	config.Config

	Port string `help:"HTTP server port" env:"PORT" default:"8080"`
}

func (c *ServeCmd) Run() error {
	st, closeStore, err := openStore(c.DB)
	if err != nil {
		return err
	}
	defer closeStore()
	log.Println("database migrated")

	weather := owm.NewClient(c.OWMAPIKey, c.OWMBaseURL).WithRecorder(st)

	var geo *geoip.Client
	if c.NoGeolocation {
		log.Println("geolocation disabled (--no-geolocation)")
	} else {
		geo = geoip.NewClient(c.GeoIPBaseURL)
	}

	imageCache := imagegen.NewCache(c.CacheDir, 7*24*time.Hour)
	var maps *mapview.StaticMaps
	if c.MapboxToken != "" {
		maps = mapview.NewStaticMaps(c.MapboxToken, c.MapboxBaseURL, imageCache)
	} else {
		log.Println("map images disabled: MAPBOX_TOKEN not set")
	}

	var gen *imagegen.Generator
	if g, err := imagegen.NewGenerator(c.OpenAIAPIKey); err != nil {
		log.Printf("banner generation disabled: %v", err)
	} else {
		gen = g
	}

	screens := screen.NewRegistry(c.ScreenTTL)
	if err := screens.Start(); err != nil {
		return err
	}
	defer screens.Stop()

	cleanup := gocron.NewScheduler(time.UTC)
	if _, err := cleanup.Every(1).Hour().Do(func() {
		n, err := st.CleanupRawPayloads(time.Now().Add(-c.PayloadRetention))
		if err != nil {
			log.Printf("cleanup: raw payloads: %v", err)
			return
		}
		if n > 0 {
			log.Printf("cleanup: removed %d raw payloads", n)
		}
	}); err != nil {
		return fmt.Errorf("schedule cleanup: %w", err)
	}
	cleanup.StartAsync()
	defer cleanup.Stop()

	server := api.NewServer(st, weather, screens, api.Options{
		Port:         c.Port,
		FallbackCity: c.FallbackCity,
		RenderWait:   c.RenderWait,
		Geo:          geo,
		Maps:         maps,
		ImageCache:   imageCache,
		ImageGen:     gen,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Printf("starting server on :%s", c.Port)
	return server.Run(ctx)
}

type LookupCmd struct {
	config.Config

	City   string `arg:"" optional:"" help:"City to look up (defaults to geolocating --ip, then the fallback city)"`
	IP     string `help:"Public IP address to geolocate when no city is given"`
	Cached bool   `help:"Print the last recorded response for the location instead of calling the provider"`
}

func (c *LookupCmd) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, closeStore, err := openStore(c.DB)
	if err != nil {
		return err
	}
	defer closeStore()

	var geo location.Geolocator
	if !c.NoGeolocation && c.IP != "" {
		geo = geoip.NewClient(c.GeoIPBaseURL).Locator(c.IP)
	}
	q := location.NewResolver(c.FallbackCity).Resolve(ctx, c.City, geo)

	if c.Cached {
		p, err := st.LatestRawPayload(q.String())
		if err != nil {
			return fmt.Errorf("load cached weather: %w", err)
		}
		if p == nil {
			return fmt.Errorf("no recorded weather for %s", q)
		}
		body, err := p.Decode()
		if err != nil {
			return err
		}
		snap, err := owm.Decode(body)
		if err != nil {
			return fmt.Errorf("decode cached weather: %w", err)
		}
		printRecord(display.Project(snap))
		fmt.Printf("  recorded %s\n", p.FetchedAt.Local().Format(time.RFC1123))
		return nil
	}

	snap, err := owm.NewClient(c.OWMAPIKey, c.OWMBaseURL).WithRecorder(st).Current(ctx, q)
	if err != nil {
		return err
	}
	printRecord(display.Project(snap))
	return nil
}

func printRecord(rec display.Record) {
	fmt.Printf("%s %s\n", rec.Icon(), rec.City)
	fmt.Printf("  %d°C (high %d°C, low %d°C)\n", rec.CurrentTemp, rec.HighTemp, rec.LowTemp)
	if rec.Description != "" {
		fmt.Printf("  %s\n", rec.Description)
	}
	fmt.Printf("  humidity %d%%, wind %g m/s, cloudiness %d%%\n", rec.Humidity, rec.WindSpeed, rec.Cloudiness)
	fmt.Printf("  at %g, %g\n", rec.Lat, rec.Lon)
}

// openStore opens and migrates the database at path, creating its directory.
func openStore(path string) (*store.Store, func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("create data directory: %w", err)
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, nil, err
	}
	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return st, func() { db.Close() }, nil
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("config: %v", err)
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("cityweather"),
		kong.Description("Current weather for a city, with saved cities."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
