package dot1x

import (
	"log/slog"
	"sync"
)

// SupplicantTable is the two-level map §4.6 describes: port -> src-mac ->
// SupplicantSession. An RWMutex-guarded map, a write lock for
// creation/eviction, a read lock for lookup: the natural key here is
// (port, mac), with no single scalar id to index by, so the map is
// genuinely two levels rather than flat with a composite-key fallback.
type SupplicantTable struct {
	mu       sync.RWMutex
	sessions map[PortID]map[MacAddress]*SupplicantSession

	policy    PolicyFunc
	hooks     Hooks
	eapTx     chan<- EapTxItem
	radiusTx  chan<- RadiusTxItem
	scheduler *TimerScheduler
	log       *slog.Logger
}

// NewSupplicantTable creates an empty table. policy/hooks/eapTx/radiusTx/
// scheduler are threaded into every session it creates (§9: "Global mutable
// state... belongs inside one owning value constructed at startup, passed
// into tasks as a shared handle" — here SupplicantTable is that value for
// everything a session needs to talk back to the Dispatcher).
func NewSupplicantTable(policy PolicyFunc, hooks Hooks, eapTx chan<- EapTxItem, radiusTx chan<- RadiusTxItem, scheduler *TimerScheduler, log *slog.Logger) *SupplicantTable {
	return &SupplicantTable{
		sessions:  make(map[PortID]map[MacAddress]*SupplicantSession),
		policy:    policy,
		hooks:     hooks,
		eapTx:     eapTx,
		radiusTx:  radiusTx,
		scheduler: scheduler,
		log:       log,
	}
}

// GetOrCreate returns the existing session for (port, mac), or creates one
// with eapRestart=true, portEnabled=true (§4.6). Satisfies I1: double-check
// under the write lock ensures at most one session per (port, mac) ever
// exists at a time.
func (t *SupplicantTable) GetOrCreate(port PortID, mac MacAddress) *SupplicantSession {
	t.mu.RLock()
	if byMac, ok := t.sessions[port]; ok {
		if s, ok := byMac[mac]; ok {
			t.mu.RUnlock()
			return s
		}
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	byMac, ok := t.sessions[port]
	if !ok {
		byMac = make(map[MacAddress]*SupplicantSession)
		t.sessions[port] = byMac
	}
	if s, ok := byMac[mac]; ok {
		return s
	}

	s := newSupplicantSession(mac, port, t.policy, t.hooks, t.eapTx, t.radiusTx, t.scheduler, t.log)
	byMac[mac] = s
	if t.log != nil {
		t.log.Info("supplicant session created", "supplicant", mac, "port", port)
	}
	return s
}

// Lookup returns the session for (port, mac), if one exists, without
// creating it.
func (t *SupplicantTable) Lookup(port PortID, mac MacAddress) (*SupplicantSession, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	byMac, ok := t.sessions[port]
	if !ok {
		return nil, false
	}
	s, ok := byMac[mac]
	return s, ok
}

// Evict removes (port, mac)'s session, if present. Called when a session
// reaches a terminal state and the caller chooses to discard it, or when a
// logoff frame arrives (§4.7 Logoff).
func (t *SupplicantTable) Evict(port PortID, mac MacAddress) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if byMac, ok := t.sessions[port]; ok {
		delete(byMac, mac)
		if len(byMac) == 0 {
			delete(t.sessions, port)
		}
	}
}

// SetPortStatus delivers a PortStatusChange event to every session under
// port (§4.6, §6). When up is false, every session under the port is
// evicted after being driven to DISABLED: a subsequent GetOrCreate for
// the same MAC produces a fresh session, satisfying I1.
func (t *SupplicantTable) SetPortStatus(port PortID, up bool) {
	t.mu.Lock()
	byMac, ok := t.sessions[port]
	var toNotify []*SupplicantSession
	if ok {
		toNotify = make([]*SupplicantSession, 0, len(byMac))
		for _, s := range byMac {
			toNotify = append(toNotify, s)
		}
		if !up {
			delete(t.sessions, port)
		}
	}
	t.mu.Unlock()

	for _, s := range toNotify {
		s.SetPortEnabled(up)
	}
}

// Sessions returns a snapshot of all live sessions, for introspection.
func (t *SupplicantTable) Sessions() []*SupplicantSession {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*SupplicantSession
	for _, byMac := range t.sessions {
		for _, s := range byMac {
			out = append(out, s)
		}
	}
	return out
}

// ReapTerminal evicts every session that has reached a terminal state.
// cmd/dot1x-authenticatord calls this periodically so a long-running authenticator does
// not accumulate sessions whose conversation already ended in
// SUCCESS2/FAILURE2/TIMEOUT_FAILURE2.
func (t *SupplicantTable) ReapTerminal() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	reaped := 0
	for port, byMac := range t.sessions {
		for mac, s := range byMac {
			if s.Terminal() {
				delete(byMac, mac)
				reaped++
			}
		}
		if len(byMac) == 0 {
			delete(t.sessions, port)
		}
	}
	return reaped
}
