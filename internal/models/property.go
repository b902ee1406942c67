package models

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// PropertyFeature is one candidate rural property returned by the CAR
// registry. It is passed by value and never mutated after decoding.
type PropertyFeature struct {
	Code         string   `json:"code"`
	AreaHectares float64  `json:"area_ha"`
	Municipality string   `json:"municipality"`
	Geometry     Geometry `json:"geometry"`
}

// Validate checks the fields the registry is expected to provide.
func (p PropertyFeature) Validate() error {
	if strings.TrimSpace(p.Code) == "" {
		return fmt.Errorf("property code is empty")
	}
	if math.IsNaN(p.AreaHectares) || math.IsInf(p.AreaHectares, 0) || p.AreaHectares < 0 {
		return fmt.Errorf("property %s has invalid area %v", p.Code, p.AreaHectares)
	}
	if err := p.Geometry.Validate(); err != nil {
		return fmt.Errorf("property %s: %w", p.Code, err)
	}
	return nil
}

// Summary is the one line description shown to the user, with the area
// rounded to whole hectares.
func (p PropertyFeature) Summary() string {
	return fmt.Sprintf("CAR %s, Tamanho da área %.0f ha, município de %s.", p.Code, math.Round(p.AreaHectares), p.Municipality)
}

// Coordinate is a WGS84 point sent by the user, usually a WhatsApp location pin.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c Coordinate) Validate() error {
	if !validLonLat(c.Longitude, c.Latitude) {
		return fmt.Errorf("coordinate (%v, %v) is out of range", c.Latitude, c.Longitude)
	}
	return nil
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Latitude, c.Longitude)
}

var federativeUnits = map[string]bool{
	"AC": true, "AL": true, "AP": true, "AM": true, "BA": true, "CE": true, "DF": true,
	"ES": true, "GO": true, "MA": true, "MT": true, "MS": true, "MG": true, "PA": true,
	"PB": true, "PR": true, "PE": true, "PI": true, "RJ": true, "RN": true, "RS": true,
	"RO": true, "RR": true, "SC": true, "SP": true, "SE": true, "TO": true,
}

var carCodePattern = regexp.MustCompile(`^([A-Z]{2})-(\d{7})-([0-9A-F]{32})$`)

// NormalizeCARCode validates a code in the UF-NNNNNNN-<32 hex> format and
// returns it trimmed and upper-cased. Dots between hex groups are ignored by
// the check but kept in the result, since the registry stores codes with them.
func NormalizeCARCode(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	m := carCodePattern.FindStringSubmatch(strings.ReplaceAll(c, ".", ""))
	if m == nil {
		return "", fmt.Errorf("invalid CAR code %q, expected UF-NNNNNNN-<32 hex characters>", code)
	}
	if !federativeUnits[m[1]] {
		return "", fmt.Errorf("invalid CAR code %q, unknown federative unit %s", code, m[1])
	}
	return c, nil
}
