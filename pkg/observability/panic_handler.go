package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with its stack trace.
// It must be called directly in a defer statement:
//
//	func (m *Monitor) run() {
//	    defer observability.RecoverPanic(logger, "anomaly check")
//	    ...
//	}
//
// The panic is not re-raised.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logPanic(logger, context, r)
	}
}

// RecoverPanicWithCallback is RecoverPanic followed by callback, which only
// runs when a panic was recovered.
func RecoverPanicWithCallback(logger *Logger, context string, callback func(recovered interface{})) {
	if r := recover(); r != nil {
		logPanic(logger, context, r)
		if callback != nil {
			callback(r)
		}
	}
}

// PanicError converts a recovered value into an error, nil when r is nil
//
//	defer func() {
//	    if perr := observability.PanicError(recover()); perr != nil {
//	        err = perr
//	    }
//	}()
func PanicError(r interface{}) error {
	if r == nil {
		return nil
	}
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}

func logPanic(logger *Logger, context string, r interface{}) {
	if logger == nil {
		logger = NewLogger(ErrorLevel, nil)
	}
	logger.WithFields(map[string]interface{}{
		"panic":   fmt.Sprintf("%v", r),
		"stack":   string(debug.Stack()),
		"context": context,
	}).Error("PANIC recovered")
}
