package i18n

import (
	"net/http"

	"golang.org/x/text/language"
)

// Middleware injects a localizer into every request context. The language is
// taken from the "lang" query parameter, then Accept-Language, then fallback.
func Middleware(fallback string) func(http.Handler) http.Handler {
	matcher := language.NewMatcher(Languages())
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := fallback
			if q := r.URL.Query().Get("lang"); q != "" {
				lang = q
			} else if accept := r.Header.Get("Accept-Language"); accept != "" {
				if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
					tag, _, _ := matcher.Match(tags...)
					base, _ := tag.Base()
					lang = base.String()
				}
			}
			ctx := WithLocalizer(r.Context(), NewLocalizer(lang, fallback))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
