package downloader

//go:generate go run github.com/dmarkham/enumer -json -type Policy -trimprefix Policy -transform kebab

// Policy defines how a batch reacts to the failure of a target
type Policy int

const (
	// PolicyAbortBatch stops the batch at the first failure
	PolicyAbortBatch Policy = iota
	// PolicySkipAndContinue logs the failure and processes the next target
	PolicySkipAndContinue
)
