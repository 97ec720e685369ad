package cli

import "fmt"

type syncFailedError struct {
	localID  string
	title    string
	attempts int
}

func (e syncFailedError) Error() string {
	return fmt.Sprintf("task %q (%s) was not saved after %d attempts", e.title, e.localID, e.attempts)
}

type canceledError struct {
	localID string
}

func (e canceledError) Error() string {
	return fmt.Sprintf("task %s discarded before the server confirmed it", e.localID)
}
