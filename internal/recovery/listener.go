package recovery

// Listener observes the engine. Calls are made synchronously from
// HandleError; a panicking listener is logged and skipped.
type Listener interface {
	OnError(rec Record)
	OnRecoveryCompleted(err MenuError, result Result)
	OnRecoveryFailed(err MenuError, result Result)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are no-ops.
type ListenerFuncs struct {
	Error     func(rec Record)
	Completed func(err MenuError, result Result)
	Failed    func(err MenuError, result Result)
}

func (f ListenerFuncs) OnError(rec Record) {
	if f.Error != nil {
		f.Error(rec)
	}
}

func (f ListenerFuncs) OnRecoveryCompleted(err MenuError, result Result) {
	if f.Completed != nil {
		f.Completed(err, result)
	}
}

func (f ListenerFuncs) OnRecoveryFailed(err MenuError, result Result) {
	if f.Failed != nil {
		f.Failed(err, result)
	}
}
