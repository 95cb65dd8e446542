package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

type CardState string

const (
	StateUnclaimed CardState = "unclaimed"
	StateClaiming  CardState = "claiming"
	StateClaimed   CardState = "claimed"
	StateFinishing CardState = "finishing"
	StateFinished  CardState = "finished"
	StateFailed    CardState = "failed"
)

type Column string

const (
	ColumnUnclaimed Column = "unclaimed"
	ColumnClaimed   Column = "claimed"
	ColumnFinished  Column = "finished"
)

type ActionKind string

const (
	ActionClaim  ActionKind = "claim"
	ActionVerify ActionKind = "verify"
	ActionFinish ActionKind = "finish"
)

// VisitCard is one front-desk queue entry as the dashboard sees it. The card
// only changes column after the server confirms the transition; a failed
// request leaves it where it was with the action re-enabled.
//
// State, ContainerKey and Action are mutated from the claim goroutine while
// control goroutines read them; mu guards all three plus the in-flight flag.
// Direct field access is only safe before the card is shared, e.g. while
// building the board.
type VisitCard struct {
	VisitID      int64
	State        CardState
	ClaimURL     string
	VerifyURL    string
	FinishURL    string
	ContainerKey Column
	Action       ActionKind
	PatientName  string

	mu       sync.Mutex
	inFlight bool
}

func NewVisitCard(visitID int64, claimURL, verifyURL, finishURL string) *VisitCard {
	return &VisitCard{
		VisitID:      visitID,
		State:        StateUnclaimed,
		ClaimURL:     claimURL,
		VerifyURL:    verifyURL,
		FinishURL:    finishURL,
		ContainerKey: ColumnUnclaimed,
		Action:       ActionClaim,
	}
}

// Snapshot returns the card's mutable state as one consistent read.
func (c *VisitCard) Snapshot() (CardState, Column, ActionKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.State, c.ContainerKey, c.Action
}

type beginOutcome int

const (
	beginOK beginOutcome = iota
	beginBusy
	beginRefused
)

// beginClaim checks the claim guard and marks the card's single outstanding
// mutation in one locked step, so a concurrent transition cannot slip in
// between check and start. Busy means a request is already in flight and the
// control is disabled; a double click cannot double-submit.
func (c *VisitCard) beginClaim() beginOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State != StateUnclaimed && !(c.State == StateFailed && c.ContainerKey == ColumnUnclaimed) {
		return beginRefused
	}
	if c.inFlight {
		return beginBusy
	}
	c.inFlight = true
	c.State = StateClaiming
	return beginOK
}

// beginFollowUp is the claimed-column counterpart for verify and finish.
// during is the state shown while the request is out.
func (c *VisitCard) beginFollowUp(during CardState) beginOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State != StateClaimed && !(c.State == StateFailed && c.ContainerKey == ColumnClaimed) {
		return beginRefused
	}
	if c.inFlight {
		return beginBusy
	}
	c.inFlight = true
	c.State = during
	return beginOK
}

// fail ends the transition in place: state failed, column untouched, action
// still retryable.
func (c *VisitCard) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.State = StateFailed
	c.inFlight = false
}

// succeed ends the transition with the confirmed state and the next action.
func (c *VisitCard) succeed(state CardState, action ActionKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.State = state
	c.Action = action
	c.inFlight = false
}

func (c *VisitCard) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Claimer drives the visit lifecycle against the reception endpoints bound to
// each card. No transition is applied until the server confirms it.
type Claimer struct {
	client *http.Client
	board  *Board
}

func NewClaimer(client *http.Client, board *Board) *Claimer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Claimer{client: client, board: board}
}

// Claim moves a card through unclaimed -> claiming -> claimed. On failure the
// card stays in the unclaimed column, state failed, and the action is
// retryable.
func (c *Claimer) Claim(ctx context.Context, card *VisitCard) error {
	switch card.beginClaim() {
	case beginBusy:
		return nil // request already in flight, control is disabled
	case beginRefused:
		state, _, _ := card.Snapshot()
		return fmt.Errorf("visit %d cannot be claimed from state %s", card.VisitID, state)
	}

	ok, err := c.post(ctx, card.ClaimURL, card.VisitID)
	if err != nil || !ok {
		card.fail() // column unchanged
		if err != nil {
			return fmt.Errorf("%w: %v", ErrClaimFailed, err)
		}
		return ErrClaimFailed
	}

	card.succeed(StateClaimed, ActionVerify)
	c.board.MoveCard(card, ColumnClaimed)

	return nil
}

// Verify confirms the patient's arrival on a claimed card. The card stays in
// the claimed column; on success its primary action advances to finish.
func (c *Claimer) Verify(ctx context.Context, card *VisitCard, email string) error {
	switch card.beginFollowUp(StateClaimed) {
	case beginBusy:
		return nil
	case beginRefused:
		state, _, _ := card.Snapshot()
		return fmt.Errorf("visit %d cannot be verified from state %s", card.VisitID, state)
	}

	form := url.Values{}
	form.Set("visit_id", strconv.FormatInt(card.VisitID, 10))
	form.Set("patient_email", email)

	ok, err := c.postForm(ctx, card.VerifyURL, form)
	if err != nil || !ok {
		card.fail()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrVerifyFailed, err)
		}
		return ErrVerifyFailed
	}

	card.succeed(StateClaimed, ActionFinish)

	return nil
}

// Finish moves a card through claimed -> finishing -> finished. Failure keeps
// it in the claimed column with a retryable action.
func (c *Claimer) Finish(ctx context.Context, card *VisitCard) error {
	switch card.beginFollowUp(StateFinishing) {
	case beginBusy:
		return nil
	case beginRefused:
		state, _, _ := card.Snapshot()
		return fmt.Errorf("visit %d cannot be finished from state %s", card.VisitID, state)
	}

	ok, err := c.post(ctx, card.FinishURL, card.VisitID)
	if err != nil || !ok {
		card.fail() // stays in claimed column
		if err != nil {
			return fmt.Errorf("%w: %v", ErrFinishFailed, err)
		}
		return ErrFinishFailed
	}

	card.succeed(StateFinished, "")
	c.board.MoveCard(card, ColumnFinished)

	return nil
}

func (c *Claimer) post(ctx context.Context, endpoint string, visitID int64) (bool, error) {
	form := url.Values{}
	form.Set("visit_id", strconv.FormatInt(visitID, 10))
	return c.postForm(ctx, endpoint, form)
}

func (c *Claimer) postForm(ctx context.Context, endpoint string, form url.Values) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	var body struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, err
	}

	return body.Success, nil
}
