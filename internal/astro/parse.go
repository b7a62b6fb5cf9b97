package astro

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Position strings come in two accepted forms:
//
//	"20h00m43.7s +22d42m39.0s"   sexagesimal, RA in hours
//	"300.182 +22.710"            decimal degrees
var sexaRe = regexp.MustCompile(
	`^(\d{1,2})h\s?(\d{1,2})m\s?(\d{1,2}(?:\.\d+)?)s\s+([+-]?\d{1,2})d\s?(\d{1,2})m\s?(\d{1,2}(?:\.\d+)?)s$`)

// ParseCoordinates parses a position string into an equatorial position.
// It returns an error for anything it cannot parse or for values outside
// the valid RA/Dec ranges.
func ParseCoordinates(position string) (Equatorial, error) {
	position = strings.TrimSpace(position)
	if position == "" {
		return Equatorial{}, fmt.Errorf("astro: empty position string")
	}

	if m := sexaRe.FindStringSubmatch(position); m != nil {
		return parseSexagesimal(m)
	}
	return parseDecimal(position)
}

func parseSexagesimal(m []string) (Equatorial, error) {
	rh, _ := strconv.ParseFloat(m[1], 64)
	rm, _ := strconv.ParseFloat(m[2], 64)
	rs, _ := strconv.ParseFloat(m[3], 64)
	dd, _ := strconv.ParseFloat(m[4], 64)
	dm, _ := strconv.ParseFloat(m[5], 64)
	ds, _ := strconv.ParseFloat(m[6], 64)

	ra := (rh + rm/60 + rs/3600) * 15
	sign := 1.0
	if strings.HasPrefix(m[4], "-") {
		sign = -1
		dd = -dd
	}
	dec := sign * (dd + dm/60 + ds/3600)
	return validated(ra, dec)
}

func parseDecimal(position string) (Equatorial, error) {
	parts := strings.Fields(position)
	if len(parts) != 2 {
		return Equatorial{}, fmt.Errorf("astro: unrecognized position %q", position)
	}
	ra, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return Equatorial{}, fmt.Errorf("astro: bad RA in %q: %w", position, err)
	}
	dec, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return Equatorial{}, fmt.Errorf("astro: bad Dec in %q: %w", position, err)
	}
	return validated(ra, dec)
}

func validated(ra, dec float64) (Equatorial, error) {
	if ra < 0 || ra >= 360 {
		return Equatorial{}, fmt.Errorf("astro: RA %.4f out of range [0, 360)", ra)
	}
	if dec < -90 || dec > 90 {
		return Equatorial{}, fmt.Errorf("astro: Dec %.4f out of range [-90, 90]", dec)
	}
	return Equatorial{RA: ra, Dec: dec}, nil
}
