package display

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lox/cityweather/internal/models"
)

func f(v float64) *float64 { return &v }

func TestCelsius(t *testing.T) {
	tests := []struct {
		kelvin float64
		want   int
	}{
		{273.15, 0},
		{300, 27},
		{250, -23},
		{0, -273},
	}
	for _, tt := range tests {
		if got := Celsius(tt.kelvin, true); got != tt.want {
			t.Errorf("Celsius(%v) = %d, want %d", tt.kelvin, got, tt.want)
		}
	}
	if got := Celsius(300, false); got != 0 {
		t.Errorf("Celsius(absent) = %d, want 0", got)
	}
}

func TestProjectNilIsZeroRecord(t *testing.T) {
	assert.Equal(t, Record{}, Project(nil))
}

func TestProjectFullSnapshot(t *testing.T) {
	snap := &models.WeatherSnapshot{
		Coord:   &models.Coordinates{Lat: 34.69, Lon: 135.5},
		Weather: []models.WeatherCondition{{Main: "Clouds", Description: "broken clouds"}},
		Main: &models.MainReadings{
			Temp:     f(300),
			TempMin:  f(250),
			TempMax:  f(305.2),
			Humidity: f(64),
		},
		Wind:   &models.Wind{Speed: f(3.6)},
		Clouds: &models.Clouds{All: f(75)},
		Name:   "Osaka",
	}

	want := Record{
		Cloudiness:  75,
		CurrentTemp: 27,
		HighTemp:    32,
		LowTemp:     -23,
		Humidity:    64,
		WindSpeed:   3.6,
		Description: "broken clouds",
		Category:    "Clouds",
		Lat:         34.69,
		Lon:         135.5,
		City:        "Osaka",
	}
	assert.Equal(t, want, Project(snap))
}

func TestProjectMissingOptionalFields(t *testing.T) {
	snap := &models.WeatherSnapshot{Main: &models.MainReadings{Temp: f(273.15)}}

	r := Project(snap)
	assert.Equal(t, Record{}, r)
}

func TestProjectIsIdempotent(t *testing.T) {
	snap := &models.WeatherSnapshot{
		Main:   &models.MainReadings{Temp: f(281.4)},
		Clouds: &models.Clouds{All: f(20)},
		Name:   "Paris",
	}
	first := Project(snap)
	second := Project(snap)
	assert.Equal(t, first, second)
	assert.Equal(t, 281.4, *snap.Main.Temp, "snapshot must not be modified")
}

func TestRecordStyling(t *testing.T) {
	r := Record{Cloudiness: 55, Category: "Rain"}
	assert.Equal(t, "0 0 10px rgb(200,200,200)", r.TextShadow())
	assert.Equal(t, "rgba(227.5,227.5,227.5,1)", r.IconColor())
	assert.Equal(t, "🌧️", r.Icon())
	assert.Equal(t, "🌡️", Record{}.Icon())
}
