package dot1x

import (
	"log/slog"
	"sync"
	"time"
)

// MethodTimeout is the default retransWhile duration (§4.7): "implementation
// MAY use the value returned by the method or carry Session-Timeout from
// RADIUS". This core always uses the default unless a Session-Timeout
// attribute was relayed, in which case the session's sessionTimeout field
// overrides it.
const MethodTimeout = 1 * time.Second

// EapTxItem is what the EapStateMachine enqueues onto the eap_tx queue: an
// EAP PDU, the supplicant it is addressed to, and the port it arrived on.
type EapTxItem struct {
	Message EapMessage
	Dst     MacAddress
	Port    PortID
}

// RadiusTxItem is what the EapStateMachine enqueues onto the radius_tx
// queue: an EAP response to wrap in an Access-Request, plus the identity
// and routing context radius_tx needs to build the request (§4.8).
type RadiusTxItem struct {
	EapResponse EapMessage
	Supplicant  MacAddress
	Port        PortID
	Identity    string
	State       []byte // echoed State attribute from a prior Access-Challenge, or nil
	Accounting  bool
}

// AuthExtras carries attributes relayed from an Access-Accept that the
// upstream policy hook may want, without the core interpreting them
// (§3 supplemented fields; MPPE keys are never processed, only forwarded).
type AuthExtras struct {
	SessionTimeout   time.Duration
	MppeSendKey      []byte
	MppeRecvKey      []byte
}

// SuccessHook, FailureHook, LogoffHook are the upstream policy callbacks
// (§6), modeled as plain function values passed in at construction so the
// caller can wire accounting, metrics, or logging without the session
// package depending on any of them. Each fires at most once per outcome
// per session.
type (
	SuccessHook    func(supplicant MacAddress, port PortID, extras AuthExtras)
	FailureHook    func(supplicant MacAddress, port PortID)
	LogoffHook     func(supplicant MacAddress, port PortID)
	TransitionHook func(port PortID, from, to State)
)

// Hooks bundles the upstream policy callbacks plus an optional transition
// observer for metrics/introspection. A nil hook is legal and treated as a
// no-op.
type Hooks struct {
	Success    SuccessHook
	Failure    FailureHook
	Logoff     LogoffHook
	Transition TransitionHook
}

func (h Hooks) fireSuccess(mac MacAddress, port PortID, extras AuthExtras) {
	if h.Success != nil {
		h.Success(mac, port, extras)
	}
}

func (h Hooks) fireFailure(mac MacAddress, port PortID) {
	if h.Failure != nil {
		h.Failure(mac, port)
	}
}

func (h Hooks) fireLogoff(mac MacAddress, port PortID) {
	if h.Logoff != nil {
		h.Logoff(mac, port)
	}
}

func (h Hooks) fireTransition(port PortID, from, to State) {
	if h.Transition != nil && from != to {
		h.Transition(port, from, to)
	}
}

// SupplicantSession is the per (port, supplicant-MAC) runtime state (§3):
// the state-machine variables, the last-known RADIUS State attribute, the
// last seen identity, and the EapStateMachine driving it. Every mutation
// happens under mu so that eap_rx and radius_rx — which may run
// concurrently — never interleave events for the same session (§5).
type SupplicantSession struct {
	mu sync.Mutex

	Supplicant MacAddress
	Port       PortID

	state State
	v     vars

	radiusState    []byte
	identity       string
	sessionTimeout time.Duration
	extras         AuthExtras

	hookFired            bool // at-most-once guard for success/failure/logoff
	suppressOutcomeHooks bool // true while a logoff-driven run is in flight

	retransTimer TimerHandle
	hasTimer     bool

	policy PolicyFunc
	hooks  Hooks

	eapTx    chan<- EapTxItem
	radiusTx chan<- RadiusTxItem
	scheduler *TimerScheduler

	log *slog.Logger
}

// newSupplicantSession builds a fresh session with eapRestart=true,
// portEnabled=true (§4.6's get_or_create contract).
func newSupplicantSession(mac MacAddress, port PortID, policy PolicyFunc, hooks Hooks,
	eapTx chan<- EapTxItem, radiusTx chan<- RadiusTxItem, scheduler *TimerScheduler, log *slog.Logger,
) *SupplicantSession {
	if policy == nil {
		policy = DefaultPolicy
	}
	s := &SupplicantSession{
		Supplicant: mac,
		Port:       port,
		state:      StateNoState,
		policy:     policy,
		hooks:      hooks,
		eapTx:      eapTx,
		radiusTx:   radiusTx,
		scheduler:  scheduler,
		log:        log,
	}
	s.v.portEnabled = true
	s.v.eapRestart = true
	s.run()
	return s
}

// run executes the fixed-point loop and flushes outputs (§4.7: "the event
// handler flushes outputs"). Caller must hold mu.
func (s *SupplicantSession) run() {
	before := s.state
	s.state = Run(s.policy, s.state, &s.v)
	s.hooks.fireTransition(s.Port, before, s.state)
	s.flushOutputs()
}

// flushOutputs enqueues EAP/RADIUS tx items, (re)arms the retrans timer,
// and fires upstream hooks for this run's side effects. Caller holds mu.
func (s *SupplicantSession) flushOutputs() {
	if s.v.eapReq {
		msg := s.v.eapReqData
		dst := s.Supplicant
		s.enqueueEapTx(EapTxItem{Message: msg, Dst: dst, Port: s.Port})
		s.v.eapReq = false
		s.armRetransTimer()
	}

	if s.v.aaaEapResp && s.v.aaaEapRespData.Code == EapCodeResponse {
		s.enqueueRadiusTx(RadiusTxItem{
			EapResponse: s.v.aaaEapRespData,
			Supplicant:  s.Supplicant,
			Port:        s.Port,
			Identity:    s.v.aaaIdentity,
			State:       s.radiusState,
		})
		s.v.aaaEapResp = false
	}

	if s.suppressOutcomeHooks {
		return
	}

	if s.v.eapSuccess && !s.hookFired {
		s.hookFired = true
		s.cancelRetransTimer()
		s.hooks.fireSuccess(s.Supplicant, s.Port, s.extras)
	}
	if s.v.eapFail && !s.hookFired {
		s.hookFired = true
		s.cancelRetransTimer()
		s.hooks.fireFailure(s.Supplicant, s.Port)
	}
}

func (s *SupplicantSession) enqueueEapTx(item EapTxItem) {
	if s.eapTx == nil {
		return
	}
	select {
	case s.eapTx <- item:
	default:
		if s.log != nil {
			s.log.Warn("eap tx queue full, dropping", "supplicant", s.Supplicant, "port", s.Port)
		}
	}
}

func (s *SupplicantSession) enqueueRadiusTx(item RadiusTxItem) {
	if s.radiusTx == nil {
		return
	}
	select {
	case s.radiusTx <- item:
	default:
		if s.log != nil {
			s.log.Warn("radius tx queue full, dropping", "supplicant", s.Supplicant, "port", s.Port)
		}
	}
}

func (s *SupplicantSession) armRetransTimer() {
	s.cancelRetransTimer()
	if s.scheduler == nil {
		return
	}
	timeout := MethodTimeout
	if s.sessionTimeout > 0 {
		timeout = s.sessionTimeout
	}
	s.v.retransWhile = 1
	handle := s.scheduler.Schedule(time.Now().Add(timeout), s, func(token any) {
		sess, ok := token.(*SupplicantSession)
		if !ok {
			return
		}
		sess.HandleRetransTick()
	})
	s.retransTimer = handle
	s.hasTimer = true
}

func (s *SupplicantSession) cancelRetransTimer() {
	if s.hasTimer && s.scheduler != nil {
		s.scheduler.Cancel(s.retransTimer)
	}
	s.hasTimer = false
}

// HandleMessageReceived delivers an EventMessageReceived for msg, the
// EAP/EAPOL frame just parsed off the wire by eap_rx (§4.8).
func (s *SupplicantSession) HandleMessageReceived(msg EapMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Kind {
	case KindEapolLogoff:
		// Synthesizes the LOGOFF event (§4.7): forces
		// FAILURE and invokes the dedicated logoff hook exactly once,
		// distinct from an ordinary auth_failure outcome.
		s.cancelRetransTimer()
		s.v.logoff = true
		s.suppressOutcomeHooks = true
		s.run()
		s.suppressOutcomeHooks = false
		if !s.hookFired {
			s.hookFired = true
			s.hooks.fireLogoff(s.Supplicant, s.Port)
		}
		return
	case KindEapolStart:
		// EapolStart is delivered as an ordinary response, not as an
		// eapRestart event: eapRestart is reserved for get_or_create's
		// construction-time kick (§4.6). Routing it through eapResp
		// instead lets RECEIVED/SELECT_ACTION see it and Policy decide
		// (DefaultPolicy continues locally for it), producing the
		// Identity Request a supplicant's EAPOL-Start expects.
		s.cancelRetransTimer()
		s.v.eapResp = true
		s.v.eapRespData = msg
	default:
		s.cancelRetransTimer()
		s.v.eapResp = true
		s.v.eapRespData = msg
	}
	s.run()
	s.v.eapResp = false
}

// HandleRadiusReceived delivers the relayed server response (from radius_rx,
// via PacketIdAllocator resolution) to the pass-through half. If challenge
// carries a State attribute, it is stored for the next Access-Request (I4).
func (s *SupplicantSession) HandleRadiusReceived(p *RadiusPacket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelRetransTimer()

	if st, ok := p.Get(AttrState); ok {
		s.radiusState = append([]byte(nil), st.Value...)
	}
	if to, ok := p.Get(AttrSessionTimeout); ok && len(to.Value) == 4 {
		s.sessionTimeout = time.Duration(beUint32(to.Value)) * time.Second
	}

	eap := p.EapMessage()
	var eapMsg EapMessage
	if len(eap) > 0 {
		if msg, err := UnmarshalEap(eap, s.Supplicant); err == nil {
			eapMsg = msg
		}
	}

	switch p.Code {
	case RadiusAccessAccept:
		s.extras = extractExtras(p, s.sessionTimeout)
		s.v.aaaSuccess = true
		if eapMsg.Code == EapCodeSuccess || eapMsg.Raw != nil {
			s.v.aaaEapReq = true
			s.v.aaaEapReqData = eapMsg
		}
	case RadiusAccessReject:
		s.v.aaaFail = true
		s.v.aaaEapReqData = eapMsg
	case RadiusAccessChallenge:
		s.v.aaaEapReq = true
		s.v.aaaEapReqData = eapMsg
	}

	s.run()
	s.v.aaaSuccess = false
	s.v.aaaFail = false
	s.v.aaaEapReq = false
}

// HandleRetransTick delivers the retrans-timeout tick the TimerScheduler
// posts when retransWhile's deadline fires (§4.7's "Timer re-drives the
// machine": a synthetic tick, not an in-lined per-state check).
func (s *SupplicantSession) HandleRetransTick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.v.retransWhile = 0
	s.run()
}

// HandleRadiusTimeout delivers an AAA-side timeout (no response from the
// RADIUS server within the expected window), escalating to TIMEOUT_FAILURE2.
func (s *SupplicantSession) HandleRadiusTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelRetransTimer()
	s.v.aaaTimeout = true
	s.run()
	s.v.aaaTimeout = false
}

// SetPortEnabled delivers a PortStatusChange event (§4.6, §6).
func (s *SupplicantSession) SetPortEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.v.portEnabled = enabled
	s.run()
}

// State returns the session's current FSM state (for introspection/tests).
func (s *SupplicantSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Terminal reports whether the session has reached a terminal state and is
// eligible for eviction from SupplicantTable.
func (s *SupplicantSession) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Terminal()
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func extractExtras(p *RadiusPacket, sessionTimeout time.Duration) AuthExtras {
	extras := AuthExtras{SessionTimeout: sessionTimeout}
	for _, a := range p.Attributes {
		if a.Type == AttrVendorSpecific {
			// MPPE keys are relayed opaquely (Non-goal: no key
			// derivation); the raw Vendor-Specific bytes are handed
			// to the upstream hook unparsed beyond this split.
			if extras.MppeSendKey == nil {
				extras.MppeSendKey = append([]byte(nil), a.Value...)
			} else {
				extras.MppeRecvKey = append([]byte(nil), a.Value...)
			}
		}
	}
	return extras
}
