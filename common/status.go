package common

//go:generate go run github.com/dmarkham/enumer -json -type Status -trimprefix Status

// Status is the outcome of a target in a batch
type Status int

const (
	StatusPENDING  Status = iota
	StatusDONE            // fully transferred
	StatusRESUMED         // transfer resumed from the local partial file
	StatusEXISTING        // local file already complete, nothing transferred
	StatusABSENT          // not available upstream
	StatusFAILED
)

// Transferred returns whether bytes were (or should have been) written for this status
func (s Status) Transferred() bool {
	return s == StatusDONE || s == StatusRESUMED
}
