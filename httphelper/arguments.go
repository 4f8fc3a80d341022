// Package httphelper unifies request arguments and answers simple security
// questions about a request.
package httphelper

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// MergeRecursive returns base with override merged in. When both sides hold
// a map for the same key the maps are merged recursively; any other value in
// override replaces the one in base. Neither input is modified.
func MergeRecursive(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, ov := range override {
		if om, ok := ov.(map[string]any); ok {
			if bm, ok := out[k].(map[string]any); ok {
				out[k] = MergeRecursive(bm, om)
				continue
			}
		}
		out[k] = ov
	}
	return out
}

// MergeArguments unifies query, body and uploaded file arguments. Later
// sources win: files override body, body overrides query.
func MergeArguments(get, post, files map[string]any) map[string]any {
	return MergeRecursive(MergeRecursive(get, post), files)
}

// FromValues turns url.Values into arguments: single values become a
// string, repeated values a []string.
func FromValues(v url.Values) map[string]any {
	out := make(map[string]any, len(v))
	for k, vs := range v {
		switch len(vs) {
		case 0:
		case 1:
			out[k] = vs[0]
		default:
			out[k] = append([]string(nil), vs...)
		}
	}
	return out
}

// RequestArguments parses r and returns its unified arguments. Uploaded
// files appear as *multipart.FileHeader, or a slice of them for repeated
// fields.
func RequestArguments(r *http.Request, maxMemory int64) (map[string]any, error) {
	get := FromValues(r.URL.Query())

	var post, files map[string]any
	err := r.ParseMultipartForm(maxMemory)
	switch {
	case errors.Is(err, http.ErrNotMultipart):
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("httphelper: parse form: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("httphelper: parse multipart form: %w", err)
	}
	post = FromValues(r.PostForm)

	if r.MultipartForm != nil {
		files = make(map[string]any, len(r.MultipartForm.File))
		for k, fhs := range r.MultipartForm.File {
			if len(fhs) == 1 {
				files[k] = fhs[0]
			} else if len(fhs) > 1 {
				files[k] = fhs
			}
		}
	}
	return MergeArguments(get, post, files), nil
}
