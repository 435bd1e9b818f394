package ids

import "github.com/segmentio/ksuid"

// New returns a k-sortable unique id used for users, sessions and assets.
func New() string {
	return ksuid.New().String()
}

func Valid(id string) bool {
	_, err := ksuid.Parse(id)
	return err == nil
}
