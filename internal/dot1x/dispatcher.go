package dot1x

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// QueueCapacity is the minimum bounded-queue capacity §5 requires.
const QueueCapacity = 1024

// Config bundles everything the Dispatcher needs to wire up the five
// cooperative tasks (§4.8): the authenticator's own identity, the shared
// secret, and the two links.
type Config struct {
	ChewieID   MacAddress // the authenticator's own id, for Called-Station-Id
	Secret     string
	EapolLink  EapolLink
	RadiusLink RadiusLink
	Policy     PolicyFunc
	Hooks      Hooks
	Log        *slog.Logger
}

// Dispatcher owns the five long-running tasks (eap_rx, eap_tx, radius_tx,
// radius_rx, timer) and the two bounded MPMC queues (eap_tx, radius_tx)
// that glue them together (§4.8, §5), run under one errgroup.WithContext
// so any task's fatal error tears the rest down.
type Dispatcher struct {
	cfg Config

	table     *SupplicantTable
	ids       *PacketIdAllocator
	scheduler *TimerScheduler

	eapTxQ    chan EapTxItem
	radiusTxQ chan RadiusTxItem

	log *slog.Logger
}

// NewDispatcher builds a Dispatcher and its owned SupplicantTable,
// PacketIdAllocator and TimerScheduler (§9: "both belong inside one owning
// value constructed at startup, passed into tasks as a shared handle").
func NewDispatcher(cfg Config) *Dispatcher {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	d := &Dispatcher{
		cfg:       cfg,
		ids:       NewPacketIdAllocator(),
		scheduler: NewTimerScheduler(),
		eapTxQ:    make(chan EapTxItem, QueueCapacity),
		radiusTxQ: make(chan RadiusTxItem, QueueCapacity),
		log:       log,
	}
	d.table = NewSupplicantTable(cfg.Policy, cfg.Hooks, d.eapTxQ, d.radiusTxQ, d.scheduler, log)
	return d
}

// Table exposes the SupplicantTable for port-status ingress (§6) and
// introspection.
func (d *Dispatcher) Table() *SupplicantTable { return d.table }

// TriggerAccounting drives an out-of-band Accounting-Request for (mac,
// port), resolving the §9 open question on the stubbed accounting path:
// the core emits an Accounting-Request only when explicitly told to by a
// caller, never as a policy decision of its own.
func (d *Dispatcher) TriggerAccounting(mac MacAddress, port PortID, identity string) {
	select {
	case d.radiusTxQ <- RadiusTxItem{Supplicant: mac, Port: port, Identity: identity, Accounting: true}:
	default:
		d.log.Warn("radius tx queue full, dropping accounting trigger", "supplicant", mac, "port", port)
	}
}

// Run launches the five tasks under one errgroup.Group and blocks until ctx
// is canceled or a task returns a non-nil (fatal) error (§5: "process
// shutdown cancels all tasks cooperatively").
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { d.scheduler.Run(ctx); return nil })
	g.Go(func() error { return d.runEapRx(ctx) })
	g.Go(func() error { return d.runEapTx(ctx) })
	g.Go(func() error { return d.runRadiusTx(ctx) })
	g.Go(func() error { return d.runRadiusRx(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runEapRx: receive EAPOL frame, parse, locate session, deliver
// EventMessageReceived (§4.8). Wrapped in a defer/recover per task
// invocation so a malformed frame can never stop the dispatcher (§7).
func (d *Dispatcher) runEapRx(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		frame, err := d.cfg.EapolLink.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.log.Warn("eapol receive error", "err", err)
			continue
		}
		d.handleEapRx(frame)
	}
}

func (d *Dispatcher) handleEapRx(frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("eap_rx task recovered from panic", "panic", r)
		}
	}()

	f, err := UnmarshalFrame(frame)
	if err != nil {
		if errors.Is(err, ErrUnknownEtherType) {
			return // not EAPOL, silently ignore
		}
		d.log.Warn("eapol frame parse error", "err", err)
		return
	}

	port := d.cfg.ChewieID // single-port core: NAS-Port context is the authenticator's own id
	sess := d.table.GetOrCreate(PortID(port), f.Src)
	sess.HandleMessageReceived(f.Message)
	if f.Message.Kind == KindEapolLogoff {
		d.table.Evict(PortID(port), f.Src)
	}
}

// runEapTx: dequeue, serialize to Ethernet+EAPOL+EAP, send (§4.8).
func (d *Dispatcher) runEapTx(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case item := <-d.eapTxQ:
			d.handleEapTx(ctx, item)
		}
	}
}

func (d *Dispatcher) handleEapTx(ctx context.Context, item EapTxItem) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("eap_tx task recovered from panic", "panic", r)
		}
	}()

	frame := MarshalFrame(item.Dst, d.cfg.ChewieID, item.Message)
	if err := d.cfg.EapolLink.Send(ctx, frame); err != nil && ctx.Err() == nil {
		d.log.Warn("eapol send error", "err", err, "dst", item.Dst)
	}
}

// runRadiusTx: dequeue, allocate a packet id, serialize Access-Request (or
// Accounting-Request), send (§4.8).
func (d *Dispatcher) runRadiusTx(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case item := <-d.radiusTxQ:
			d.handleRadiusTx(ctx, item)
		}
	}
}

func (d *Dispatcher) handleRadiusTx(ctx context.Context, item RadiusTxItem) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("radius_tx task recovered from panic", "panic", r)
		}
	}()

	if item.Accounting {
		d.sendAccounting(ctx, item)
		return
	}

	id, reqAuth, err := d.ids.Allocate(item.Supplicant, item.Port)
	if err != nil {
		d.log.Warn("packet id allocation failed", "err", err)
		return
	}

	p := &RadiusPacket{Code: RadiusAccessRequest, Identifier: id}
	p.Add(AttrUserName, []byte(item.Identity))
	p.AddUint32(AttrNASPort, item.Port.NASPort())
	p.AddUint32(AttrNASPortType, NASPortTypeEthernet)
	p.Add(AttrNASIdentifier, []byte(d.cfg.ChewieID.Hyphenated()))
	p.Add(AttrCalledStationId, []byte(d.cfg.ChewieID.Hyphenated()))
	p.Add(AttrCallingStationId, []byte(item.Supplicant.Hyphenated()))
	p.AddEapMessage(MarshalEap(item.EapResponse))
	if item.State != nil {
		p.Add(AttrState, item.State) // I4/I5: echoed verbatim
	}

	buf, err := MarshalRadius(p, d.cfg.Secret, reqAuth)
	if err != nil {
		d.log.Warn("radius marshal error", "err", err)
		d.ids.Release(id)
		return
	}

	if err := d.cfg.RadiusLink.SendAuth(ctx, buf); err != nil && ctx.Err() == nil {
		d.log.Warn("radius send error", "err", err)
	}
}

func (d *Dispatcher) sendAccounting(ctx context.Context, item RadiusTxItem) {
	p := &RadiusPacket{Code: RadiusAccountingRequest}
	p.Add(AttrUserName, []byte(item.Identity))
	p.AddUint32(AttrNASPort, item.Port.NASPort())
	p.AddUint32(AttrNASPortType, NASPortTypeEthernet)
	p.Add(AttrNASIdentifier, []byte(d.cfg.ChewieID.Hyphenated()))
	p.Add(AttrCallingStationId, []byte(item.Supplicant.Hyphenated()))

	buf, err := MarshalRadius(p, d.cfg.Secret, [16]byte{})
	if err != nil {
		d.log.Warn("accounting marshal error", "err", err)
		return
	}
	if err := d.cfg.RadiusLink.SendAcct(ctx, buf); err != nil && ctx.Err() == nil {
		d.log.Warn("accounting send error", "err", err)
	}
}

// runRadiusRx: receive, parse with request-authenticator lookup, locate
// session via the allocator's reverse map, deliver
// EventRadiusMessageReceived (§4.8).
func (d *Dispatcher) runRadiusRx(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		buf, err := d.cfg.RadiusLink.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.log.Warn("radius receive error", "err", err)
			continue
		}
		d.handleRadiusRx(buf)
	}
}

func (d *Dispatcher) handleRadiusRx(buf []byte) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("radius_rx task recovered from panic", "panic", r)
		}
	}()

	if len(buf) < 2 {
		d.log.Warn("radius frame too short")
		return
	}
	id := buf[1]
	binding, ok := d.ids.Resolve(id)
	if !ok {
		d.log.Warn("radius response for unbound id", "id", id)
		return
	}

	p, err := UnmarshalRadius(buf, d.cfg.Secret, binding.ReqAuth)
	if err != nil {
		if kind, ok := KindOf(err); ok && kind == KindCrypto {
			d.log.Warn("radius authenticator mismatch, dropping", "id", id)
		} else {
			d.log.Warn("radius parse error", "err", err)
		}
		return
	}

	switch p.Code {
	case RadiusAccessAccept, RadiusAccessReject:
		d.ids.Release(id)
	case RadiusAccessChallenge:
		// §4.5 binds per in-flight request, so the id is released here;
		// the next Access-Request in the conversation allocates a fresh id.
		d.ids.Release(id)
	}

	sess, ok := d.table.Lookup(binding.Port, binding.Supplicant)
	if !ok {
		d.log.Warn("radius response for unknown session", "supplicant", binding.Supplicant, "port", binding.Port)
		return
	}
	sess.HandleRadiusReceived(p)
}
