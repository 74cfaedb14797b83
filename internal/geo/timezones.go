package geo

import "strings"

const (
	defaultTimezone  = "UTC"
	mainlandTimezone = "Asia/Shanghai"
)

// countryTimezones maps ISO 3166-1 alpha-2 codes to a representative IANA zone.
// Multi-zone countries use their most populous zone.
var countryTimezones = map[string]string{
	"CN": mainlandTimezone,
	"HK": "Asia/Hong_Kong",
	"MO": "Asia/Macau",
	"TW": "Asia/Taipei",
	"JP": "Asia/Tokyo",
	"KR": "Asia/Seoul",
	"SG": "Asia/Singapore",
	"MY": "Asia/Kuala_Lumpur",
	"TH": "Asia/Bangkok",
	"VN": "Asia/Ho_Chi_Minh",
	"PH": "Asia/Manila",
	"ID": "Asia/Jakarta",
	"IN": "Asia/Kolkata",
	"PK": "Asia/Karachi",
	"BD": "Asia/Dhaka",
	"AE": "Asia/Dubai",
	"SA": "Asia/Riyadh",
	"IL": "Asia/Jerusalem",
	"TR": "Europe/Istanbul",
	"RU": "Europe/Moscow",
	"UA": "Europe/Kiev",
	"PL": "Europe/Warsaw",
	"DE": "Europe/Berlin",
	"FR": "Europe/Paris",
	"GB": "Europe/London",
	"IE": "Europe/Dublin",
	"NL": "Europe/Amsterdam",
	"BE": "Europe/Brussels",
	"CH": "Europe/Zurich",
	"AT": "Europe/Vienna",
	"IT": "Europe/Rome",
	"ES": "Europe/Madrid",
	"PT": "Europe/Lisbon",
	"SE": "Europe/Stockholm",
	"NO": "Europe/Oslo",
	"DK": "Europe/Copenhagen",
	"FI": "Europe/Helsinki",
	"US": "America/New_York",
	"CA": "America/Toronto",
	"MX": "America/Mexico_City",
	"BR": "America/Sao_Paulo",
	"AR": "America/Argentina/Buenos_Aires",
	"CL": "America/Santiago",
	"CO": "America/Bogota",
	"AU": "Australia/Sydney",
	"NZ": "Pacific/Auckland",
	"ZA": "Africa/Johannesburg",
	"EG": "Africa/Cairo",
	"NG": "Africa/Lagos",
}

// TimezoneFor returns the zone for a country code, UTC when unknown.
func TimezoneFor(country string) string {
	if tz, ok := countryTimezones[strings.ToUpper(country)]; ok {
		return tz
	}
	return defaultTimezone
}
