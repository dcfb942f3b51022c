// Package display projects raw weather snapshots into values ready to render.
package display

import (
	"fmt"
	"math"

	"github.com/lox/cityweather/internal/models"
)

const kelvinOffset = 273.15

// Record is the display projection of a weather snapshot. The zero value is
// what an absent snapshot projects to.
type Record struct {
	Cloudiness  int     `json:"cloudiness"`
	CurrentTemp int     `json:"currentTemp"`
	HighTemp    int     `json:"highTemp"`
	LowTemp     int     `json:"lowTemp"`
	Humidity    int     `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
	Description string  `json:"weatherDescription"`
	Category    string  `json:"weatherType"`
	Lat         float64 `json:"weatherLat"`
	Lon         float64 `json:"weatherLng"`
	City        string  `json:"currentCity"`
}

// Project derives a Record from s. It reads s only and never retains it.
func Project(s *models.WeatherSnapshot) Record {
	var r Record
	if s == nil {
		return r
	}

	if s.Clouds != nil {
		r.Cloudiness = roundInt(deref(s.Clouds.All))
	}
	if s.Main != nil {
		r.CurrentTemp = Celsius(deref(s.Main.Temp), s.Main.Temp != nil)
		r.HighTemp = Celsius(deref(s.Main.TempMax), s.Main.TempMax != nil)
		r.LowTemp = Celsius(deref(s.Main.TempMin), s.Main.TempMin != nil)
		r.Humidity = roundInt(deref(s.Main.Humidity))
	}
	if s.Wind != nil {
		r.WindSpeed = deref(s.Wind.Speed)
	}
	if len(s.Weather) > 0 {
		r.Description = s.Weather[0].Description
		r.Category = s.Weather[0].Main
	}
	if s.Coord != nil {
		r.Lat = s.Coord.Lat
		r.Lon = s.Coord.Lon
	}
	r.City = s.Name
	return r
}

// Celsius converts Kelvin to whole degrees Celsius. Halves round up. A reading
// that is not present converts to 0.
func Celsius(kelvin float64, present bool) int {
	if !present {
		return 0
	}
	return roundInt(kelvin - kelvinOffset)
}

func roundInt(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(math.Floor(v + 0.5))
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// Icon returns the glyph shown for the weather category.
func (r Record) Icon() string {
	switch r.Category {
	case "Clear":
		return "☀️"
	case "Clouds":
		return "☁️"
	case "Rain":
		return "🌧️"
	case "Drizzle":
		return "🌦️"
	case "Thunderstorm":
		return "⛈️"
	case "Snow":
		return "❄️"
	case "Mist", "Fog", "Haze", "Smoke", "Dust", "Sand", "Ash":
		return "🌫️"
	case "Squall", "Tornado":
		return "🌪️"
	default:
		return "🌡️"
	}
}

// TextShadow is the glow behind the location heading; cloudier skies dim it.
func (r Record) TextShadow() string {
	c := clampByte(255 - r.Cloudiness)
	return fmt.Sprintf("0 0 10px rgb(%d,%d,%d)", c, c, c)
}

// IconColor tints the weather icon by half the cloud cover.
func (r Record) IconColor() string {
	c := 255 - float64(r.Cloudiness)/2
	if c < 0 {
		c = 0
	}
	return fmt.Sprintf("rgba(%g,%g,%g,1)", c, c, c)
}

func clampByte(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
