package log

import (
	"runtime"
	"strconv"
)

// LazyEval defers building a log argument until the event is actually
// emitted. Pass it through a "%v" verb.
type LazyEval func() string

func (l LazyEval) String() string {
	return l()
}

// DoLazyEval wraps c as a LazyEval.
func DoLazyEval(c func() string) LazyEval {
	return LazyEval(c)
}

// SkipCaller returns the file and line of the caller skip frames up the
// stack, for tagging slow-path warnings with their origin.
func SkipCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "?"
	}
	return file + ":" + strconv.Itoa(line)
}
