package batch

// Summary counts the outcome of every entry in a run.
type Summary struct {
	// Submitted deposits were broadcast and confirmed this run. In a dry
	// run it counts the entries that would have been submitted.
	Submitted int
	// AlreadyDone entries were found in the ledger and skipped.
	AlreadyDone int
	// SkippedFunds entries were not attempted because the account balance
	// ran out.
	SkippedFunds int
	// Unknown entries have a broadcast in the journal whose inclusion is
	// not yet decided.
	Unknown int
	// Failed entries hit a permanent rejection or exhausted their retries.
	Failed int
	// Invalid entries did not pass field validation.
	Invalid int
}

// Success reports whether every entry ended as Submitted or AlreadyDone.
// The process exit code keys off this.
func (s *Summary) Success() bool {
	return s.SkippedFunds == 0 && s.Unknown == 0 && s.Failed == 0 && s.Invalid == 0
}

// Total is the number of entries accounted for.
func (s *Summary) Total() int {
	return s.Submitted + s.AlreadyDone + s.SkippedFunds + s.Unknown + s.Failed + s.Invalid
}
