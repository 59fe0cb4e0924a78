package textextract

// State is a stage of one extraction run.
type State int

const (
	StateLoading State = iota
	StateDetecting
	StateNativeExtracting
	StateRecognizing
	StateAggregating
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateDetecting:
		return "detecting"
	case StateNativeExtracting:
		return "native_extracting"
	case StateRecognizing:
		return "recognizing"
	case StateAggregating:
		return "aggregating"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// needsOCR is the single fallback rule: a PDF whose text layer has no
// non-whitespace character anywhere is treated as a scan.
func needsOCR(aggregate string) bool {
	return trimmed(aggregate) == ""
}
