package config

import "strings"

// NormInterval maps spellings such as "1M", "60m" or "candle5m" onto the
// candle intervals the exchange accepts.
func NormInterval(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimPrefix(s, "candle")
	switch s {
	case "60m", "1h":
		return "1h"
	case "120m":
		return "2h"
	case "240m":
		return "4h"
	case "24h", "1440m":
		return "1d"
	default:
		return s
	}
}
