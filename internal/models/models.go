package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

var (
	ErrEmptyQuery     = errors.New("location query is empty")
	ErrAmbiguousQuery = errors.New("location query has both city and coordinates")
)

// Coordinates is a latitude/longitude pair in degrees.
type Coordinates struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

func (c Coordinates) String() string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lon, 'f', -1, 64)
}

// LocationQuery selects what to fetch weather for. Exactly one of City or
// Coords is set.
type LocationQuery struct {
	City   string       `json:"city,omitempty"`
	Coords *Coordinates `json:"coords,omitempty"`
}

func CityQuery(name string) LocationQuery {
	return LocationQuery{City: name}
}

func CoordsQuery(lat, lon float64) LocationQuery {
	return LocationQuery{Coords: &Coordinates{Lat: lat, Lon: lon}}
}

func (q LocationQuery) IsCity() bool {
	return q.Coords == nil
}

func (q LocationQuery) Validate() error {
	hasCity := strings.TrimSpace(q.City) != ""
	switch {
	case hasCity && q.Coords != nil:
		return ErrAmbiguousQuery
	case !hasCity && q.Coords == nil:
		return ErrEmptyQuery
	case q.Coords != nil:
		if err := validate.Struct(q.Coords); err != nil {
			return fmt.Errorf("coordinates: %w", err)
		}
	}
	return nil
}

func (q LocationQuery) String() string {
	if q.Coords != nil {
		return q.Coords.String()
	}
	return q.City
}

// WeatherSnapshot is the current-weather document returned by the weather
// provider. Optional members are pointers so that absence survives decoding.
// Temperatures are in Kelvin.
type WeatherSnapshot struct {
	Coord   *Coordinates       `json:"coord,omitempty"`
	Weather []WeatherCondition `json:"weather,omitempty"`
	Main    *MainReadings      `json:"main,omitempty"`
	Wind    *Wind              `json:"wind,omitempty"`
	Clouds  *Clouds            `json:"clouds,omitempty"`
	Name    string             `json:"name,omitempty"`
}

type WeatherCondition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

type MainReadings struct {
	Temp     *float64 `json:"temp,omitempty"`
	TempMin  *float64 `json:"temp_min,omitempty"`
	TempMax  *float64 `json:"temp_max,omitempty"`
	Humidity *float64 `json:"humidity,omitempty"`
}

type Wind struct {
	Speed *float64 `json:"speed,omitempty"`
}

type Clouds struct {
	All *float64 `json:"all,omitempty"`
}
