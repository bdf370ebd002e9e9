package action

import (
	"context"
	"fmt"
	"runtime"

	"github.com/kysee/zkpool/utils"
	"github.com/kysee/zkpool/zk-pool/poolerr"
	"github.com/kysee/zkpool/zk-pool/sct"
	"github.com/kysee/zkpool/zk-pool/store"
	"github.com/kysee/zkpool/zk-pool/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Phase string

const (
	PhaseStateless Phase = "check_stateless"
	PhaseStateful  Phase = "check_stateful"
	PhaseExecute   Phase = "execute"
)

// Error is a failure of one phase. Index is the position of the failing
// action, or -1 for a check of the transaction itself.
type Error struct {
	Index int
	Kind  Kind
	Phase Phase
	Err   error
}

func (e *Error) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("transaction %s: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("action %d (%s) %s: %v", e.Index, e.Kind, e.Phase, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Pipeline drives the phases of every action in a transaction.
//
// Checks of one phase run concurrently and all of them run to completion;
// when several actions fail, the failure of the lowest action index is
// reported. Execute runs sequentially in action order and stops at the
// first failure. Each phase takes the ticket returned by the one before it.
type Pipeline struct {
	chainID string
	workers int
	logger  zerolog.Logger
}

func NewPipeline(chainID string, workers int) *Pipeline {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pipeline{
		chainID: chainID,
		workers: workers,
		logger:  utils.NewLogger("pipeline"),
	}
}

func (p *Pipeline) ChainID() string {
	return p.chainID
}

// ticket ties a checked transaction to the pipeline that checked it.
type ticket struct {
	pipeline *Pipeline
	tx       *Transaction
	id       [types.HashSize]byte
}

func (t *ticket) Transaction() *Transaction {
	return t.tx
}

// check fails unless t was issued by p and its transaction is unchanged since.
func (t *ticket) check(p *Pipeline) error {
	if t.pipeline != p || t.tx == nil {
		return fmt.Errorf("%w: transaction was not checked by this pipeline", poolerr.ErrPreconditionViolation)
	}
	if t.tx.ID() != t.id {
		return fmt.Errorf("%w: transaction changed after its checks", poolerr.ErrPreconditionViolation)
	}
	return nil
}

// StatelessChecked is a transaction that passed CheckStateless. Only
// CheckStateful accepts it.
type StatelessChecked struct {
	ticket
}

// Checked is a transaction that passed both checks, the stateful one against
// the snapshot at Version. Only Execute accepts it.
type Checked struct {
	ticket
	version uint64
}

// Version is the state version the stateful checks ran against.
func (c *Checked) Version() uint64 {
	return c.version
}

var errNotChecked = fmt.Errorf("%w: transaction was not checked", poolerr.ErrPreconditionViolation)

// CheckStateless checks the transaction shape and then every action
// against the transaction context.
func (p *Pipeline) CheckStateless(ctx context.Context, tx *Transaction) (*StatelessChecked, error) {
	if len(tx.Actions) == 0 {
		return nil, &Error{Index: -1, Phase: PhaseStateless, Err: poolerr.ErrEmptyTransaction}
	}
	if len(tx.Actions) > MaxActions {
		return nil, &Error{Index: -1, Phase: PhaseStateless, Err: fmt.Errorf("%w: %d actions", poolerr.ErrMalformed, len(tx.Actions))}
	}
	if tx.ChainID != p.chainID {
		return nil, &Error{Index: -1, Phase: PhaseStateless, Err: fmt.Errorf("%w: expected(%s), got(%s)", poolerr.ErrChainIDMismatch, p.chainID, tx.ChainID)}
	}

	handlers, err := p.handlers(tx, PhaseStateless)
	if err != nil {
		return nil, err
	}
	txCtx, err := tx.Context()
	if err != nil {
		return nil, &Error{Index: -1, Phase: PhaseStateless, Err: err}
	}

	err = p.runConcurrently(ctx, tx, PhaseStateless, func(ctx context.Context, i int) error {
		return handlers[i].CheckStateless(ctx, txCtx)
	})
	if err != nil {
		return nil, err
	}
	return &StatelessChecked{ticket{pipeline: p, tx: tx, id: tx.ID()}}, nil
}

// CheckStateful checks the anchor and then every action against the same
// snapshot of committed state.
func (p *Pipeline) CheckStateful(ctx context.Context, snap *store.Snapshot, sc *StatelessChecked) (*Checked, error) {
	if sc == nil {
		return nil, &Error{Index: -1, Phase: PhaseStateful, Err: errNotChecked}
	}
	if err := sc.check(p); err != nil {
		return nil, &Error{Index: -1, Phase: PhaseStateful, Err: err}
	}
	tx := sc.tx

	if err := sct.CheckClaimedAnchor(ctx, snap, tx.Anchor); err != nil {
		return nil, &Error{Index: -1, Phase: PhaseStateful, Err: err}
	}

	handlers, err := p.handlers(tx, PhaseStateful)
	if err != nil {
		return nil, err
	}
	err = p.runConcurrently(ctx, tx, PhaseStateful, func(ctx context.Context, i int) error {
		return handlers[i].CheckStateful(ctx, snap)
	})
	if err != nil {
		return nil, err
	}
	return &Checked{ticket: sc.ticket, version: snap.Version()}, nil
}

// Execute stages the effects of every action into ws, in action order.
// ws must be the first scope opened after the snapshot the stateful checks
// ran against. Committing or discarding ws is up to the caller.
func (p *Pipeline) Execute(ctx context.Context, ws *store.WriteScope, c *Checked, height uint64) error {
	if c == nil {
		return &Error{Index: -1, Phase: PhaseExecute, Err: errNotChecked}
	}
	if err := c.check(p); err != nil {
		return &Error{Index: -1, Phase: PhaseExecute, Err: err}
	}
	if ws.Version() != c.version+1 {
		return &Error{Index: -1, Phase: PhaseExecute, Err: fmt.Errorf("%w: checked at version %d, writing version %d",
			poolerr.ErrPreconditionViolation, c.version, ws.Version())}
	}
	tx := c.tx

	handlers, err := p.handlers(tx, PhaseExecute)
	if err != nil {
		return err
	}

	for i, h := range handlers {
		src := types.TransactionSource(c.id, uint32(i), height)
		err := h.Execute(ctx, ws, src)
		observe(tx.Actions[i].Kind, PhaseExecute, err)
		if err != nil {
			return &Error{Index: i, Kind: tx.Actions[i].Kind, Phase: PhaseExecute, Err: err}
		}
	}
	return nil
}

func (p *Pipeline) handlers(tx *Transaction, phase Phase) ([]Handler, error) {
	handlers := make([]Handler, len(tx.Actions))
	for i := range tx.Actions {
		h, err := tx.Actions[i].Handler()
		if err != nil {
			return nil, &Error{Index: i, Kind: tx.Actions[i].Kind, Phase: phase, Err: err}
		}
		handlers[i] = h
	}
	return handlers, nil
}

func (p *Pipeline) runConcurrently(ctx context.Context, tx *Transaction, phase Phase, check func(context.Context, int) error) error {
	errs := make([]error, len(tx.Actions))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i := range tx.Actions {
		g.Go(func() error {
			errs[i] = check(ctx, i)
			observe(tx.Actions[i].Kind, phase, errs[i])
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err != nil {
			failed := 0
			for _, e := range errs {
				if e != nil {
					failed++
				}
			}
			p.logger.Debug().Err(err).Int("index", i).Int("failed", failed).Str("phase", string(phase)).Msg("action rejected")
			return &Error{Index: i, Kind: tx.Actions[i].Kind, Phase: phase, Err: err}
		}
	}
	return nil
}
