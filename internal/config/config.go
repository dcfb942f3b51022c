// Package config holds the settings shared by the cityweather commands.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

// Config is embedded into each kong command. Every field can also be set
// from the environment.
type Config struct {
	OWMAPIKey     string `name:"owm-api-key" help:"OpenWeatherMap API key" env:"OWM_API_KEY" validate:"required"`
	OWMBaseURL    string `name:"owm-base-url" help:"OpenWeatherMap current weather endpoint" env:"OWM_BASE_URL" default:"https://api.openweathermap.org/data/2.5/weather" validate:"url"`
	MapboxToken   string `name:"mapbox-token" help:"Mapbox access token for map images" env:"MAPBOX_TOKEN"`
	MapboxBaseURL string `name:"mapbox-base-url" help:"Mapbox API base URL" env:"MAPBOX_BASE_URL" default:"https://api.mapbox.com" validate:"url"`
	OpenAIAPIKey  string `name:"openai-api-key" help:"OpenAI API key for banner images (optional)" env:"OPENAI_API_KEY"`
	GeoIPBaseURL  string `name:"geoip-base-url" help:"IP geolocation endpoint" env:"GEOIP_BASE_URL" default:"http://ip-api.com/json" validate:"url"`

	FallbackCity  string `name:"fallback-city" help:"City shown when no city is given and the position is unknown" env:"FALLBACK_CITY" default:"osaka" validate:"required"`
	NoGeolocation bool   `name:"no-geolocation" help:"Treat geolocation as unavailable" env:"NO_GEOLOCATION"`

	DB       string `help:"Path to SQLite database" env:"DB_PATH" default:"data/cityweather.db" validate:"required"`
	CacheDir string `name:"cache-dir" help:"Directory for cached map and banner images" env:"CACHE_DIR" default:"data/images" validate:"required"`

	RenderWait       time.Duration `name:"render-wait" help:"How long a page waits for weather before rendering the loading state" env:"RENDER_WAIT" default:"1500ms" validate:"gte=0"`
	ScreenTTL        time.Duration `name:"screen-ttl" help:"Idle time after which a screen is dropped" env:"SCREEN_TTL" default:"30m" validate:"gt=0"`
	PayloadRetention time.Duration `name:"payload-retention" help:"How long raw provider responses are kept" env:"PAYLOAD_RETENTION" default:"168h" validate:"gt=0"`
}

// Validate checks the parsed configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadDotEnv loads variables from the given files (".env" by default) without
// overriding the existing environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
		log.Printf("config: loaded %s", p)
	}
	return nil
}
