package enums

import "fmt"

// MovieStatus gates catalog entries until the stream source is ready.
type MovieStatus string

const (
	MovieStatusProcessing MovieStatus = "processing"
	MovieStatusLive       MovieStatus = "live"
)

var validMovieStatuses = []MovieStatus{
	MovieStatusProcessing,
	MovieStatusLive,
}

func (m MovieStatus) String() string {
	return string(m)
}

func (m MovieStatus) IsValid() bool {
	for _, candidate := range validMovieStatuses {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMovieStatus converts raw input into a MovieStatus.
func ParseMovieStatus(value string) (MovieStatus, error) {
	for _, candidate := range validMovieStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movie status %q", value)
}
