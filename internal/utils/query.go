package utils

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/lapig-ufg/pasto-legal/internal/models"
)

// ParseLatLng reads a "lat,lng" pair as shared by WhatsApp location pins.
// Example:
//
//	"-15.8299, -49.4335" → {Latitude: -15.8299, Longitude: -49.4335}
func ParseLatLng(s string) (models.Coordinate, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return models.Coordinate{}, fmt.Errorf("location %q must be \"latitude,longitude\"", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("invalid latitude in %q", s)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("invalid longitude in %q", s)
	}
	c := models.Coordinate{Latitude: lat, Longitude: lng}
	if err := c.Validate(); err != nil {
		return models.Coordinate{}, err
	}
	return c, nil
}

// ParsePagination reads limit and offset, falling back to defLimit and
// capping at maxLimit.
func ParsePagination(q url.Values, defLimit, maxLimit int) (limit, offset int) {
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = defLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset, err = strconv.Atoi(q.Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
