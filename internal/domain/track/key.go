package track

// KeyKind tells which field a Key was derived from.
type KeyKind int

const (
	KeyNone KeyKind = iota // no usable identity
	KeyID                  // authoritative id
	KeyURL                 // url fallback
)

// String returns the string representation of the key kind.
func (k KeyKind) String() string {
	switch k {
	case KeyID:
		return "id"
	case KeyURL:
		return "url"
	default:
		return "none"
	}
}

// Key is a tagged track identity. An id key always outranks a url key.
type Key struct {
	kind  KeyKind
	value string
}

// ByID returns an id key. A zero id yields the empty key.
func ByID(id ID) Key {
	if id.IsZero() {
		return Key{}
	}
	return Key{kind: KeyID, value: string(id)}
}

// ByURL returns a url key. An empty url yields the empty key.
func ByURL(url string) Key {
	if url == "" {
		return Key{}
	}
	return Key{kind: KeyURL, value: url}
}

// Kind returns the key kind.
func (k Key) Kind() KeyKind { return k.kind }

// Value returns the raw key value.
func (k Key) Value() string { return k.value }

// IsZero reports whether the key carries no identity.
func (k Key) IsZero() bool { return k.kind == KeyNone }

// ID returns the id when the key is an id key.
func (k Key) ID() (ID, bool) {
	if k.kind != KeyID {
		return "", false
	}
	return ID(k.value), true
}

// URL returns the url when the key is a url key.
func (k Key) URL() (string, bool) {
	if k.kind != KeyURL {
		return "", false
	}
	return k.value, true
}

// String renders the key as "kind:value", suitable as a ledger key.
func (k Key) String() string {
	if k.kind == KeyNone {
		return "none"
	}
	return k.kind.String() + ":" + k.value
}
