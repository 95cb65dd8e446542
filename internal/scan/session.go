package scan

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// StatusFunc renders pipeline status for the operator. kind is one of
// "info", "error", "not-found".
type StatusFunc func(kind, message string)

// Session owns one scan flow end to end: the decoder adapter, the debounced
// event stream, identity resolution, the confirmation gate and the guarded
// claim transitions. All cross-invocation state lives here rather than in
// package scope, so closing a session leaves nothing behind for the next one.
//
// A generation counter is bumped on every begin/close; async results carrying
// a stale generation are discarded instead of being applied to a UI context
// that no longer exists.
type Session struct {
	adapter   *Adapter
	debouncer *Debouncer
	resolver  *Resolver
	gate      Gate
	claimer   *Claimer
	board     *Board
	onStatus  StatusFunc

	generation uint64

	mu      sync.Mutex
	runCtx  context.Context
	target  *VisitCard
	source  string
	current *ClaimSession
}

func NewSession(device Device, debouncer *Debouncer, resolver *Resolver, gate Gate,
	claimer *Claimer, board *Board, onStatus StatusFunc) *Session {
	if debouncer == nil {
		debouncer = NewDebouncer(0, 0, 0)
	}
	s := &Session{
		debouncer: debouncer,
		resolver:  resolver,
		gate:      gate,
		claimer:   claimer,
		board:     board,
		onStatus:  onStatus,
	}
	s.adapter = NewAdapter(device, s.handleDecode)
	return s
}

func (s *Session) Board() *Board { return s.board }

// BeginScan starts the decoder for one visit card's claim or verify action.
// A pending confirmation blocks a new scan; a running scan is restarted
// cleanly (stop then start).
func (s *Session) BeginScan(ctx context.Context, visitID int64, sourceID string) error {
	card := s.board.Find(visitID)
	if card == nil {
		return fmt.Errorf("no card for visit %d", visitID)
	}

	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return fmt.Errorf("a confirmation is already pending")
	}
	s.runCtx = ctx
	s.target = card
	s.source = sourceID
	s.mu.Unlock()

	atomic.AddUint64(&s.generation, 1)
	s.debouncer.Reset()

	if err := s.adapter.Start(ctx, sourceID); err != nil {
		s.status("error", "Camera unavailable. Use manual email entry.")
		return err
	}
	s.debouncer.Arm(time.Now())
	s.status("info", "Scanner ready")

	return nil
}

// SubmitManual enters the pipeline at the resolver with a typed email,
// bypassing the decoder and debouncer. Blocks until the operator decides.
func (s *Session) SubmitManual(ctx context.Context, visitID int64, email string) error {
	card := s.board.Find(visitID)
	if card == nil {
		return fmt.Errorf("no card for visit %d", visitID)
	}

	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return fmt.Errorf("a confirmation is already pending")
	}
	s.mu.Unlock()

	gen := atomic.LoadUint64(&s.generation)
	s.resolveAndConfirm(ctx, gen, card, email, true)

	return nil
}

// Finish issues the finish transition for a claimed card.
func (s *Session) Finish(ctx context.Context, visitID int64) error {
	card := s.board.Find(visitID)
	if card == nil {
		return fmt.Errorf("no card for visit %d", visitID)
	}

	if err := s.claimer.Finish(ctx, card); err != nil {
		s.status("error", "Finish failed. Try again.")
		return err
	}

	s.status("info", "Visit finished.")
	return nil
}

// Close stops the capture device and clears every in-flight flag so a
// reopened session starts from a clean slate. Late async results from before
// the close are dropped by the generation check.
func (s *Session) Close() {
	atomic.AddUint64(&s.generation, 1)
	s.adapter.Stop()
	s.debouncer.Reset()

	s.mu.Lock()
	s.current = nil
	s.target = nil
	s.source = ""
	s.mu.Unlock()
}

func (s *Session) handleDecode(d Decode) {
	ev, ok := s.debouncer.Accept(d.Payload, d.At)
	if !ok {
		return
	}

	// pause capture until the in-flight event resolves or is cancelled
	s.adapter.Stop()

	gen := atomic.LoadUint64(&s.generation)
	s.mu.Lock()
	ctx := s.runCtx
	card := s.target
	s.mu.Unlock()

	if ctx == nil || card == nil {
		s.debouncer.Release()
		return
	}

	go s.resolveAndConfirm(ctx, gen, card, ev.Payload, false)
}

func (s *Session) resolveAndConfirm(ctx context.Context, gen uint64, card *VisitCard, raw string, manual bool) {
	identity, err := s.resolver.Resolve(ctx, raw)
	if s.stale(gen) {
		return // session closed while the lookup was out
	}
	if err != nil {
		log.Errorf("identity lookup failed: %s", err)
		s.status("error", "Lookup unavailable. Re-scan or retry.")
		s.resume(ctx, gen, manual)
		return
	}
	if !identity.Found {
		s.status("not-found", "No patient record exists for this code.")
		s.resume(ctx, gen, manual)
		return
	}

	cs := &ClaimSession{
		Token:    uuid.New().String(),
		Card:     card,
		Identity: identity,
		OpenedAt: time.Now(),
	}

	s.mu.Lock()
	if s.current != nil {
		// lost the race to another confirmation; only a scan-originated
		// event owns the in-flight flag
		s.mu.Unlock()
		if !manual {
			s.debouncer.Release()
		}
		return
	}
	s.current = cs
	s.mu.Unlock()

	decision, err := s.gate.Present(ctx, cs.Token, identity)
	if s.stale(gen) {
		s.clear(cs)
		return
	}
	s.clear(cs)

	if err != nil || decision != Accepted {
		if err != nil {
			log.Warnf("confirmation ended without a decision: %s", err)
		}
		s.status("info", "Cancelled.")
		s.resume(ctx, gen, manual)
		return
	}

	// Operator accepted: run the guarded transition bound to the card's
	// current action. The confirmation closes in place; the scanner stays
	// stopped until the operator begins the next scan.
	s.debouncer.Release()

	_, _, action := card.Snapshot()
	switch action {
	case ActionClaim:
		err = s.claimer.Claim(ctx, card)
	case ActionVerify:
		err = s.claimer.Verify(ctx, card, identity.Patient.Email)
	default:
		err = fmt.Errorf("no scan action bound to visit %d", card.VisitID)
	}

	if err != nil {
		log.Errorf("visit %d transition failed: %s", card.VisitID, err)
		s.status("error", "Request failed. The action can be retried.")
		return
	}

	s.status("info", "Done.")
}

// resume re-enables scanning after a non-accepted outcome, on the same
// capture source the scan began with. Manual entries are not scan-driven, so
// the device stays released for those.
func (s *Session) resume(ctx context.Context, gen uint64, manual bool) {
	if manual {
		return
	}
	s.debouncer.Release()
	if s.stale(gen) {
		return
	}

	s.mu.Lock()
	source := s.source
	s.mu.Unlock()

	if err := s.adapter.Start(ctx, source); err != nil {
		s.status("error", "Camera unavailable. Use manual email entry.")
		return
	}
	s.debouncer.Arm(time.Now())
}

func (s *Session) stale(gen uint64) bool {
	return atomic.LoadUint64(&s.generation) != gen
}

func (s *Session) clear(cs *ClaimSession) {
	s.mu.Lock()
	if s.current == cs {
		s.current = nil
	}
	s.mu.Unlock()
}

func (s *Session) status(kind, message string) {
	if s.onStatus == nil {
		return
	}
	s.onStatus(kind, message)
}

// ConfirmationPending reports whether a ClaimSession is open.
func (s *Session) ConfirmationPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}
