// internal/middleware/i18n.go
package middleware

import (
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/coopfund-backend/internal/i18n"
)

const defaultLang = "en"

// I18nMiddleware picks the highest weighted Accept-Language entry that has a
// locale bundle and stores it under "lang".
func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("lang", negotiateLang(c.GetHeader("Accept-Language"), i18n.GetSupportedLanguages()))
		c.Next()
	}
}

type weightedLang struct {
	lang string
	q    float64
}

func negotiateLang(header string, supported []string) string {
	if header == "" {
		return defaultLang
	}

	var prefs []weightedLang
	for _, part := range strings.Split(header, ",") {
		fields := strings.Split(strings.TrimSpace(part), ";")
		if fields[0] == "" {
			continue
		}
		q := 1.0
		for _, param := range fields[1:] {
			if v, ok := strings.CutPrefix(strings.TrimSpace(param), "q="); ok {
				if parsed, err := strconv.ParseFloat(v, 64); err == nil {
					q = parsed
				}
			}
		}
		if q > 0 {
			prefs = append(prefs, weightedLang{lang: localeFor(fields[0]), q: q})
		}
	}
	sort.SliceStable(prefs, func(i, j int) bool { return prefs[i].q > prefs[j].q })

	for _, p := range prefs {
		for _, s := range supported {
			if p.lang == s {
				return s
			}
		}
	}
	return defaultLang
}

// localeFor maps a language tag onto a locale bundle name. All Chinese
// variants are served from the traditional bundle.
func localeFor(tag string) string {
	subtags := strings.FieldsFunc(tag, func(r rune) bool { return r == '-' || r == '_' })
	if len(subtags) == 0 {
		return ""
	}
	primary := strings.ToLower(subtags[0])
	if primary == "zh" {
		return "zh_TW"
	}
	return primary
}
