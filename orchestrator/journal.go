package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"ckbridge/types"
)

// Journal records the progress of each withdrawal.
type Journal interface {
	Upsert(ctx context.Context, op *types.WithdrawalOperation) error
	ChangeStatus(ctx context.Context, op *types.WithdrawalOperation, prevStatus string) error
	FindByStatus(ctx context.Context, status string) ([]*types.WithdrawalOperation, error)
}

// begin assigns an id and stores the first status. Journal failures are
// logged only; the external calls are the source of truth.
func (o *Orchestrator) begin(ctx context.Context, op *types.WithdrawalOperation, status string) {
	now := o.now().Unix()
	op.ID = uuid.New().String()
	op.Status = status
	op.TsCreated = now
	op.TsUpdated = now

	if err := o.journal.Upsert(context.WithoutCancel(ctx), op); err != nil {
		o.log.Error().Err(err).Str("operation", op.ID).Str("status", status).Msg("cannot journal withdrawal")
	}
}

func (o *Orchestrator) advance(ctx context.Context, op *types.WithdrawalOperation, status, message string) {
	prev := op.Status
	op.Status = status
	op.Message = message
	op.TsUpdated = o.now().Unix()

	if err := o.journal.ChangeStatus(context.WithoutCancel(ctx), op, prev); err != nil {
		o.log.Error().Err(err).Str("operation", op.ID).Str("status", status).Msg("cannot journal withdrawal")
	}

	ev := o.log.Info()
	if status == types.StatusApproveFail || status == types.StatusWithdrawFail {
		ev = o.log.Warn().Str("reason", message)
	}
	ev.Str("operation", op.ID).Str("asset", op.Asset).Str("from", prev).Str("to", status).Msg("withdrawal status changed")

	if o.observe != nil && types.IsTerminalStatus(status) {
		o.observe(op.Asset, status)
	}
}

// MemoryJournal is the in-process journal used with the memory backend.
type MemoryJournal struct {
	mu  sync.Mutex
	ops map[string]types.WithdrawalOperation
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{ops: make(map[string]types.WithdrawalOperation)}
}

func (m *MemoryJournal) Upsert(_ context.Context, op *types.WithdrawalOperation) error {
	if op == nil {
		return errors.New("null object to store")
	}
	if op.Status == "" {
		return errors.New("withdrawal operation cannot have empty status")
	}
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	m.mu.Lock()
	m.ops[op.ID] = *op
	m.mu.Unlock()
	return nil
}

func (m *MemoryJournal) ChangeStatus(ctx context.Context, op *types.WithdrawalOperation, _ string) error {
	return m.Upsert(ctx, op)
}

func (m *MemoryJournal) FindByStatus(_ context.Context, status string) ([]*types.WithdrawalOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.WithdrawalOperation, 0)
	for _, op := range m.ops {
		if op.Status == status {
			op := op
			out = append(out, &op)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TsCreated != out[j].TsCreated {
			return out[i].TsCreated < out[j].TsCreated
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
