package session

// Input is one stimulus applied to the fallback machine: a user intent,
// a decoder status change, a timer firing or a process death.
type Input interface{ isInput() }

type (
	// Tune supersedes the current session with a new target.
	Tune struct{ Request TuneRequest }
	// Stop retires the current session.
	Stop struct{}
	// SyncAcquired reports HD lock from the digital decoder.
	SyncAcquired struct{}
	// SyncLost reports the digital decoder dropped its lock.
	SyncLost struct{}
	// TimerExpired reports the acquisition window ran out.
	TimerExpired struct{}
	// ProcessDied reports the live pipeline exited on its own.
	ProcessDied struct{}
)

func (Tune) isInput()         {}
func (Stop) isInput()         {}
func (SyncAcquired) isInput() {}
func (SyncLost) isInput()     {}
func (TimerExpired) isInput() {}
func (ProcessDied) isInput()  {}

// Action is an effect the machine asks its driver to perform. The
// machine itself never touches a pipeline or a clock. ArmTimer implies
// replacing any timer already running, so double timers cannot happen.
type Action interface{ isAction() }

type (
	StartDigital   struct{ Request TuneRequest }
	StartAnalog    struct{ Request TuneRequest }
	StopPipeline   struct{}
	ArmTimer       struct{}
	DisarmTimer    struct{}
	ReportNoSignal struct{}
	// ReportFailure marks a terminal session failure, such as the
	// analog pipeline dying with nothing to fall back to.
	ReportFailure struct{ Reason string }
)

func (StartDigital) isAction()   {}
func (StartAnalog) isAction()    {}
func (StopPipeline) isAction()   {}
func (ArmTimer) isAction()       {}
func (DisarmTimer) isAction()    {}
func (ReportNoSignal) isAction() {}
func (ReportFailure) isAction()  {}

// Machine is the fallback state machine. It is pure: Apply maps the
// current state and one input to a list of actions and the next state,
// so a replayed input sequence always yields the same trace. The driver
// owns every side effect.
type Machine struct {
	state        State
	req          TuneRequest
	autoFallback bool
	trace        []State
}

// NewMachine creates a machine in Idle.
func NewMachine(autoFallback bool) *Machine {
	return &Machine{autoFallback: autoFallback, trace: []State{Idle}}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Request returns the tune request the current session was built from.
func (m *Machine) Request() TuneRequest { return m.req }

// SetAutoFallback toggles analog fallback on acquisition timeout.
func (m *Machine) SetAutoFallback(on bool) { m.autoFallback = on }

// Trace returns every state entered since creation, Stopping included.
func (m *Machine) Trace() []State {
	out := make([]State, len(m.trace))
	copy(out, m.trace)
	return out
}

func (m *Machine) enter(s State) {
	m.state = s
	m.trace = append(m.trace, s)
}

// Apply feeds one input through the transition table and returns the
// actions the driver must perform, in order. Inputs that make no sense
// in the current state (a stale timer, sync chatter while analog) are
// dropped.
func (m *Machine) Apply(in Input) []Action {
	switch in := in.(type) {
	case Tune:
		return m.applyTune(in.Request)
	case Stop:
		return m.applyStop()
	case SyncAcquired:
		if m.state == AcquiringDigital {
			m.enter(DigitalActive)
			return []Action{DisarmTimer{}}
		}
	case SyncLost:
		if m.state == DigitalActive {
			m.enter(AcquiringDigital)
			return []Action{ArmTimer{}}
		}
	case TimerExpired:
		if m.state == AcquiringDigital {
			return m.applyTimeout()
		}
	case ProcessDied:
		return m.applyDeath()
	}
	return nil
}

func (m *Machine) applyTune(req TuneRequest) []Action {
	var actions []Action
	if m.state != Idle {
		m.enter(Stopping)
		actions = append(actions, StopPipeline{}, DisarmTimer{})
	}
	m.req = req
	if req.AnalogOnly {
		m.enter(AnalogActive)
		return append(actions, StartAnalog{Request: req})
	}
	m.enter(AcquiringDigital)
	return append(actions, StartDigital{Request: req}, ArmTimer{})
}

func (m *Machine) applyStop() []Action {
	if m.state == Idle {
		return nil
	}
	m.enter(Stopping)
	m.enter(Idle)
	return []Action{StopPipeline{}, DisarmTimer{}}
}

func (m *Machine) applyTimeout() []Action {
	m.enter(Stopping)
	if m.autoFallback && !m.req.AnalogOnly {
		m.enter(AnalogActive)
		return []Action{StopPipeline{}, StartAnalog{Request: m.req}}
	}
	m.enter(Idle)
	return []Action{StopPipeline{}, ReportNoSignal{}}
}

func (m *Machine) applyDeath() []Action {
	switch m.state {
	case AcquiringDigital, DigitalActive:
		// A dead digital decoder is handled like losing sync: relaunch
		// and give acquisition a fresh window.
		m.enter(Stopping)
		m.enter(AcquiringDigital)
		return []Action{StopPipeline{}, StartDigital{Request: m.req}, ArmTimer{}}
	case AnalogActive:
		m.enter(Stopping)
		m.enter(Idle)
		return []Action{StopPipeline{}, DisarmTimer{}, ReportFailure{Reason: "analog pipeline exited"}}
	}
	return nil
}
