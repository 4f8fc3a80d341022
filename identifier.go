package codecache

// IsValidEntryIdentifier reports whether id is non-empty and made only of
// ASCII letters, digits, '_', '%', '-' and '&'. No length limit applies here;
// a backend may impose its own.
func IsValidEntryIdentifier(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		if !identByte(id[i]) {
			return false
		}
	}
	return true
}

// IsValidTag uses the entry identifier grammar.
func IsValidTag(tag string) bool { return IsValidEntryIdentifier(tag) }

func identByte(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '_', c == '%', c == '-', c == '&':
		return true
	}
	return false
}
