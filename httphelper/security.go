package httphelper

import "net/http"

// IsSecureRequest reports whether r arrived over https. Server-side requests
// carry no URL scheme, so the TLS state decides there.
func IsSecureRequest(r *http.Request) bool {
	if r.URL != nil && r.URL.Scheme != "" {
		return r.URL.Scheme == "https"
	}
	return r.TLS != nil
}

// HasSafeMethod reports whether r only retrieves data (GET or HEAD).
func HasSafeMethod(r *http.Request) bool {
	return r.Method == http.MethodGet || r.Method == http.MethodHead
}
