// Package astro computes astrological data for birth charts: julian day
// numbers, sun signs, and low-precision solar positions. A full ephemeris
// is not available, so charts degrade to date-based sun signs plus the
// approximate solar longitude, mirroring the product's fallback behavior.
package astro

import (
	"fmt"
	"math"
	"time"
)

var zodiacSigns = [12]string{
	"Aries", "Taurus", "Gemini", "Cancer", "Leo", "Virgo",
	"Libra", "Scorpio", "Sagittarius", "Capricorn", "Aquarius", "Pisces",
}

var sunTraits = map[string]string{
	"Aries":       "Dynamic, energetic, and pioneering. Natural leaders with a strong drive for action.",
	"Taurus":      "Stable, practical, and determined. Values security and enjoys life's pleasures.",
	"Gemini":      "Curious, adaptable, and communicative. Quick-thinking with diverse interests.",
	"Cancer":      "Nurturing, intuitive, and emotional. Strong connection to home and family.",
	"Leo":         "Confident, creative, and generous. Natural performers who enjoy being center stage.",
	"Virgo":       "Analytical, practical, and detail-oriented. Perfectionist with a desire to help others.",
	"Libra":       "Diplomatic, harmonious, and relationship-focused. Seeks balance and beauty.",
	"Scorpio":     "Intense, passionate, and transformative. Deep emotional nature with strong intuition.",
	"Sagittarius": "Adventurous, philosophical, and optimistic. Loves freedom and exploration.",
	"Capricorn":   "Ambitious, disciplined, and responsible. Goal-oriented with strong work ethic.",
	"Aquarius":    "Independent, innovative, and humanitarian. Forward-thinking and unconventional.",
	"Pisces":      "Compassionate, intuitive, and artistic. Deeply empathetic with rich imagination.",
}

// Coordinates is a latitude/longitude pair in degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// countryCoordinates maps countries to approximate central coordinates,
// used when only a birth country is known.
var countryCoordinates = map[string]Coordinates{
	"United States":  {39.8283, -98.5795},
	"Canada":         {56.1304, -106.3468},
	"United Kingdom": {55.3781, -3.4360},
	"Germany":        {51.1657, 10.4515},
	"France":         {46.2276, 2.2137},
	"Italy":          {41.8719, 12.5674},
	"Spain":          {40.4637, -3.7492},
	"Portugal":       {39.3999, -8.2245},
	"Ireland":        {53.4129, -8.2439},
	"Netherlands":    {52.1326, 5.2913},
	"Belgium":        {50.5039, 4.4699},
	"Switzerland":    {46.8182, 8.2275},
	"Austria":        {47.5162, 14.5501},
	"Poland":         {51.9194, 19.1451},
	"Greece":         {39.0742, 21.8243},
	"Sweden":         {60.1282, 18.6435},
	"Norway":         {60.4720, 8.4689},
	"Denmark":        {56.2639, 9.5018},
	"Finland":        {61.9241, 25.7482},
	"Russia":         {61.5240, 105.3188},
	"Turkey":         {38.9637, 35.2433},
	"Israel":         {31.0461, 34.8516},
	"Egypt":          {26.0975, 30.0444},
	"South Africa":   {-30.5595, 22.9375},
	"Nigeria":        {9.0820, 8.6753},
	"Kenya":          {-0.0236, 37.9062},
	"China":          {35.8617, 104.1954},
	"Japan":          {36.2048, 138.2529},
	"South Korea":    {35.9078, 127.7669},
	"India":          {20.5937, 78.9629},
	"Pakistan":       {30.3753, 69.3451},
	"Thailand":       {15.8700, 100.9925},
	"Vietnam":        {14.0583, 108.2772},
	"Indonesia":      {-0.7893, 113.9213},
	"Singapore":      {1.3521, 103.8198},
	"Philippines":    {12.8797, 121.7740},
	"Australia":      {-25.2744, 133.7751},
	"New Zealand":    {-40.9006, 174.8860},
	"Brazil":         {-14.2350, -51.9253},
	"Argentina":      {-38.4161, -63.6167},
	"Chile":          {-35.6751, -71.5430},
	"Peru":           {-9.1900, -75.0152},
	"Colombia":       {4.5709, -74.2973},
	"Mexico":         {23.6345, -102.5528},
	"Cuba":           {21.5218, -77.7812},
	"Costa Rica":     {9.7489, -83.7534},
}

// SunPosition describes the sun's place on the ecliptic at a moment.
type SunPosition struct {
	Longitude       float64 `json:"longitude"`
	Sign            string  `json:"sign"`
	Degree          float64 `json:"degree"`
	DegreeFormatted string  `json:"degree_formatted"`
}

// BirthChart is the computed chart document for a birth date and country.
type BirthChart struct {
	BirthDate    time.Time   `json:"birth_date"`
	BirthCountry string      `json:"birth_country"`
	Coordinates  Coordinates `json:"coordinates"`
	SunSign      string      `json:"sun_sign"`
	Sun          SunPosition `json:"sun"`
	JulianDay    float64     `json:"julian_day"`
}

// Insights is human-readable interpretation text derived from a chart.
type Insights struct {
	SunSignTraits   string `json:"sun_sign_traits"`
	EmotionalNature string `json:"emotional_nature"`
}

// CoordinatesFor returns approximate coordinates for a country, or the
// zero pair when the country is unknown.
func CoordinatesFor(country string) Coordinates {
	return countryCoordinates[country]
}

// JulianDay converts a time to its Julian Day Number. The time is taken
// as UT; births with unknown time are charted at noon.
func JulianDay(t time.Time) float64 {
	t = t.UTC()
	year := t.Year()
	month := int(t.Month())
	day := t.Day()
	hour := float64(t.Hour()) + float64(t.Minute())/60.0 + float64(t.Second())/3600.0

	if month <= 2 {
		year--
		month += 12
	}

	a := year / 100
	b := 2 - a + a/4

	jd := math.Floor(365.25*float64(year+4716)) +
		math.Floor(30.6001*float64(month+1)) +
		float64(day) + float64(b) - 1524.5 + hour/24.0

	return jd
}

// NoonJulianDay charts a birth date at 12:00 UT, matching the convention
// for births with unknown time.
func NoonJulianDay(date time.Time) float64 {
	d := date.UTC()
	return JulianDay(time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, time.UTC))
}

// SignFromLongitude converts an ecliptic longitude in degrees to its
// zodiac sign. Each sign spans 30 degrees starting at Aries.
func SignFromLongitude(longitude float64) string {
	longitude = math.Mod(longitude, 360)
	if longitude < 0 {
		longitude += 360
	}
	return zodiacSigns[int(longitude/30)%12]
}

// SunSign returns the zodiac sign for a birth date using the standard
// date ranges.
func SunSign(date time.Time) string {
	month, day := date.Month(), date.Day()

	switch {
	case (month == time.March && day >= 21) || (month == time.April && day <= 19):
		return "Aries"
	case (month == time.April && day >= 20) || (month == time.May && day <= 20):
		return "Taurus"
	case (month == time.May && day >= 21) || (month == time.June && day <= 20):
		return "Gemini"
	case (month == time.June && day >= 21) || (month == time.July && day <= 22):
		return "Cancer"
	case (month == time.July && day >= 23) || (month == time.August && day <= 22):
		return "Leo"
	case (month == time.August && day >= 23) || (month == time.September && day <= 22):
		return "Virgo"
	case (month == time.September && day >= 23) || (month == time.October && day <= 22):
		return "Libra"
	case (month == time.October && day >= 23) || (month == time.November && day <= 21):
		return "Scorpio"
	case (month == time.November && day >= 22) || (month == time.December && day <= 21):
		return "Sagittarius"
	case (month == time.December && day >= 22) || (month == time.January && day <= 19):
		return "Capricorn"
	case (month == time.January && day >= 20) || (month == time.February && day <= 18):
		return "Aquarius"
	default:
		return "Pisces"
	}
}

// SolarLongitude computes the sun's apparent ecliptic longitude in
// degrees for a Julian Day, using the low-precision formula from the
// Astronomical Almanac (accurate to ~0.01 degrees).
func SolarLongitude(julianDay float64) float64 {
	n := julianDay - 2451545.0

	meanLongitude := math.Mod(280.460+0.9856474*n, 360)
	meanAnomaly := math.Mod(357.528+0.9856003*n, 360) * math.Pi / 180

	longitude := meanLongitude + 1.915*math.Sin(meanAnomaly) + 0.020*math.Sin(2*meanAnomaly)
	longitude = math.Mod(longitude, 360)
	if longitude < 0 {
		longitude += 360
	}
	return longitude
}

// GenerateBirthChart builds the chart for a birth date and country.
func GenerateBirthChart(birthDate time.Time, birthCountry string) *BirthChart {
	jd := NoonJulianDay(birthDate)
	lon := SolarLongitude(jd)
	degree := math.Mod(lon, 30)

	return &BirthChart{
		BirthDate:    birthDate,
		BirthCountry: birthCountry,
		Coordinates:  CoordinatesFor(birthCountry),
		SunSign:      SunSign(birthDate),
		Sun: SunPosition{
			Longitude:       lon,
			Sign:            SignFromLongitude(lon),
			Degree:          degree,
			DegreeFormatted: formatDegree(degree),
		},
		JulianDay: jd,
	}
}

// GenerateInsights produces interpretation text for a chart.
func GenerateInsights(chart *BirthChart) Insights {
	traits, ok := sunTraits[chart.SunSign]
	if !ok {
		traits = "Unknown sign traits"
	}
	return Insights{
		SunSignTraits:   traits,
		EmotionalNature: fmt.Sprintf("Your Sun in %s shapes how you direct energy and express your core self.", chart.SunSign),
	}
}

func formatDegree(degree float64) string {
	whole := int(degree)
	minutes := int((degree - float64(whole)) * 60)
	return fmt.Sprintf("%d°%d'", whole, minutes)
}
