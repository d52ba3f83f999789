// Package shareholders keeps the roster and the manual side of the ledger.
package shareholders

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"profitshare/internal/core"
	"profitshare/internal/ledger"
	applog "profitshare/internal/log"
	"profitshare/internal/validate"
)

var ErrNotFound = errors.New("shareholder not found")

// Update carries the fields to change; nil fields are left untouched.
type Update struct {
	Name           *string
	StakePercent   *decimal.Decimal
	InitialBalance *decimal.Decimal
}

type Registry struct {
	mu        sync.Mutex
	byID      map[string]*core.Shareholder
	order     []string
	ledger    *ledger.Ledger
	validator *validate.Validator
	locks     *KeyedMutex
	now       func() time.Time
}

func NewRegistry(l *ledger.Ledger, v *validate.Validator) *Registry {
	if v == nil {
		v = validate.New()
	}
	return &Registry{
		byID:      make(map[string]*core.Shareholder),
		ledger:    l,
		validator: v,
		locks:     NewKeyedMutex(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the creation timestamp source. Intended for tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
	return r
}

// Locks exposes the per-shareholder serialization used by distribution.
func (r *Registry) Locks() *KeyedMutex {
	return r.locks
}

// Add validates and registers a new shareholder.
func (r *Registry) Add(name string, initialBalance, stakePercent decimal.Decimal) (core.Shareholder, error) {
	in := validate.ShareholderInput{Name: name, StakePercent: stakePercent, InitialBalance: initialBalance}
	if err := r.validator.Shareholder(&in); err != nil {
		return core.Shareholder{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.nameTaken(in.Name, "") {
		return core.Shareholder{}, core.Invalid("name", core.ReasonDuplicateName, in.Name)
	}
	s := &core.Shareholder{
		ID:             uuid.NewString(),
		Name:           in.Name,
		StakePercent:   in.StakePercent,
		Balance:        in.InitialBalance,
		InitialBalance: in.InitialBalance,
		CreatedAt:      r.now(),
	}
	r.byID[s.ID] = s
	r.order = append(r.order, s.ID)

	slog.Info("Shareholder added", "id", s.ID, "name", s.Name, "stake_percent", s.StakePercent.String())
	return *s, nil
}

// Update applies the same validation as Add. Changing the initial balance of
// a shareholder with no ledger history also resets the running balance.
func (r *Registry) Update(id string, u Update) (core.Shareholder, error) {
	r.mu.Lock()
	current, ok := r.byID[id]
	if !ok || current.Removed {
		r.mu.Unlock()
		return core.Shareholder{}, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	in := validate.ShareholderInput{
		Name:           current.Name,
		StakePercent:   current.StakePercent,
		InitialBalance: current.InitialBalance,
	}
	r.mu.Unlock()

	if u.Name != nil {
		in.Name = *u.Name
	}
	if u.StakePercent != nil {
		in.StakePercent = *u.StakePercent
	}
	if u.InitialBalance != nil {
		in.InitialBalance = *u.InitialBalance
	}
	if err := r.validator.Shareholder(&in); err != nil {
		return core.Shareholder{}, err
	}

	unlock := r.locks.Lock(id)
	defer unlock()
	hasHistory := r.ledger != nil && r.ledger.HasHistory(id)

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok || s.Removed {
		return core.Shareholder{}, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	if r.nameTaken(in.Name, id) {
		return core.Shareholder{}, core.Invalid("name", core.ReasonDuplicateName, in.Name)
	}
	s.Name = in.Name
	s.StakePercent = in.StakePercent
	if !in.InitialBalance.Equal(s.InitialBalance) {
		s.InitialBalance = in.InitialBalance
		if !hasHistory {
			s.Balance = in.InitialBalance
		}
	}
	return *s, nil
}

// Remove hides the shareholder from the roster. Ledger history stays
// addressable by id.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok || s.Removed {
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	s.Removed = true
	slog.Info("Shareholder removed from roster", "id", id, "name", s.Name)
	return nil
}

// ManualAdjust appends a manual ledger entry and moves the balance by delta.
func (r *Registry) ManualAdjust(id string, delta decimal.Decimal, note string) (core.ShareTransaction, error) {
	delta = core.RoundMoney(delta)
	if delta.Abs().LessThanOrEqual(decimal.Zero) {
		return core.ShareTransaction{}, core.Invalid("delta", core.ReasonOutOfRange, delta.String())
	}
	if r.ledger == nil {
		return core.ShareTransaction{}, errors.New("registry has no ledger")
	}

	unlock := r.locks.Lock(id)
	defer unlock()

	current, err := r.Get(id)
	if err != nil {
		return core.ShareTransaction{}, err
	}
	entry, err := r.ledger.Append(core.ShareTransaction{
		ShareholderID: id,
		FromAmount:    current.Balance,
		ToAmount:      current.Balance.Add(delta),
		Delta:         delta,
		Note:          strings.TrimSpace(note),
	})
	if err != nil {
		return core.ShareTransaction{}, fmt.Errorf("append manual entry: %w", err)
	}
	if err := r.SetBalance(id, entry.ToAmount); err != nil {
		return core.ShareTransaction{}, err
	}

	fields := applog.NewFields().
		WithOperation(applog.OpAdjust).
		WithMovement(id, delta, entry.ToAmount)
	slog.Info("Manual adjustment recorded", fields.ToSlice()...)
	return entry, nil
}

// Get returns a roster shareholder.
func (r *Registry) Get(id string) (core.Shareholder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok || s.Removed {
		return core.Shareholder{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return *s, nil
}

// List returns the roster in creation order.
func (r *Registry) List() []core.Shareholder {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Shareholder, 0, len(r.order))
	for _, id := range r.order {
		if s := r.byID[id]; !s.Removed {
			out = append(out, *s)
		}
	}
	return out
}

// SetBalance overwrites the running balance. Callers hold the shareholder lock.
func (r *Registry) SetBalance(id string, balance decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("set balance %s: %w", id, ErrNotFound)
	}
	s.Balance = balance
	return nil
}

// Snapshot copies every shareholder, removed ones included.
func (r *Registry) Snapshot() []core.Shareholder {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Shareholder, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}
	return out
}

// Restore replaces the roster with persisted shareholders.
func (r *Registry) Restore(list []core.Shareholder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]*core.Shareholder, len(list))
	r.order = r.order[:0]
	for i := range list {
		s := list[i]
		if _, dup := r.byID[s.ID]; dup || s.ID == "" {
			continue
		}
		r.byID[s.ID] = &s
		r.order = append(r.order, s.ID)
	}
}

func (r *Registry) nameTaken(name, exceptID string) bool {
	for _, id := range r.order {
		s := r.byID[id]
		if s.Removed || id == exceptID {
			continue
		}
		if strings.EqualFold(s.Name, name) {
			return true
		}
	}
	return false
}
