package utils

// PermError marks an error that retrying cannot fix.
type PermError string

func (e PermError) Error() string {
	return string(e)
}

func (e PermError) IsPermanent() bool {
	return true
}
