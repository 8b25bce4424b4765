package id

import "github.com/google/uuid"

func New() string {
	return uuid.NewString()
}

// Valid reports whether s has the shape produced by New. Anything else can
// never name a stored asset.
func Valid(s string) bool {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return parsed.String() == s
}
