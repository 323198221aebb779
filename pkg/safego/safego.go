package safego

// Go runs f on a new goroutine with panic recovery.
func Go(f func()) {
	go func() {
		defer Recovery()
		f()
	}()
}
