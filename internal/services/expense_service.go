package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ledgerlens/internal/ingest"
	ledgerlog "ledgerlens/internal/log"
	"ledgerlens/internal/remote"
)

var (
	// ErrInvalidExpense wraps every validation failure of an expense draft.
	ErrInvalidExpense = errors.New("invalid expense")
	ErrInvalidProfile = errors.New("invalid profile")
)

// ExpenseAPI is the upstream that owns expense records and the profile.
type ExpenseAPI interface {
	CreateExpense(ctx context.Context, in remote.ExpenseInput) error
	UpdateExpense(ctx context.Context, id string, in remote.ExpenseInput) error
	DeleteExpense(ctx context.Context, id string) error
	Profile(ctx context.Context) (remote.Profile, error)
	UpdateProfile(ctx context.Context, p remote.Profile) error
}

// Refresher drops derived state after the upstream changed.
type Refresher interface {
	Refresh(ctx context.Context, reason string) (RefreshOutcome, error)
}

var _ ExpenseAPI = (*remote.Client)(nil)

// ExpenseDraft is an expense as submitted by a client. Date defaults to
// today when empty.
type ExpenseDraft struct {
	Title       string `json:"title"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
}

// ExpenseService forwards expense and profile writes to the upstream API and
// refreshes analytics after each successful write.
type ExpenseService struct {
	api       ExpenseAPI
	refresher Refresher
	logger    *ledgerlog.Logger
	now       func() time.Time
}

func NewExpenseService(api ExpenseAPI, refresher Refresher, logger *ledgerlog.Logger) *ExpenseService {
	if logger == nil {
		logger = ledgerlog.New(ledgerlog.Config{Component: ledgerlog.ComponentRemote})
	}
	return &ExpenseService{
		api:       api,
		refresher: refresher,
		logger:    logger,
		now:       time.Now,
	}
}

// Input validates d and converts it to the upstream body.
func (s *ExpenseService) Input(d ExpenseDraft) (remote.ExpenseInput, error) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return remote.ExpenseInput{}, fmt.Errorf("%w: title is required", ErrInvalidExpense)
	}
	if len(title) > 200 {
		return remote.ExpenseInput{}, fmt.Errorf("%w: title too long (max 200 characters)", ErrInvalidExpense)
	}
	amount, err := ingest.ParseAmountString(d.Amount)
	if err != nil {
		return remote.ExpenseInput{}, fmt.Errorf("%w: amount: %v", ErrInvalidExpense, err)
	}
	date := strings.TrimSpace(d.Date)
	if date == "" {
		date = s.now().Format("2006-01-02")
	}
	parsed, err := ingest.ParseDate(date)
	if err != nil {
		return remote.ExpenseInput{}, fmt.Errorf("%w: date: %v", ErrInvalidExpense, err)
	}
	return remote.ExpenseInput{
		Title:       title,
		Amount:      amount.String(),
		Date:        parsed.String(),
		Category:    strings.TrimSpace(d.Category),
		Description: strings.TrimSpace(d.Description),
	}, nil
}

func (s *ExpenseService) CreateExpense(ctx context.Context, d ExpenseDraft) error {
	in, err := s.Input(d)
	if err != nil {
		return err
	}
	if err := s.api.CreateExpense(ctx, in); err != nil {
		return err
	}
	s.afterWrite(ctx, "expense_created")
	return nil
}

func (s *ExpenseService) UpdateExpense(ctx context.Context, id string, d ExpenseDraft) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidExpense)
	}
	in, err := s.Input(d)
	if err != nil {
		return err
	}
	if err := s.api.UpdateExpense(ctx, id, in); err != nil {
		return err
	}
	s.afterWrite(ctx, "expense_updated")
	return nil
}

func (s *ExpenseService) DeleteExpense(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidExpense)
	}
	if err := s.api.DeleteExpense(ctx, id); err != nil {
		return err
	}
	s.afterWrite(ctx, "expense_deleted")
	return nil
}

func (s *ExpenseService) Profile(ctx context.Context) (remote.Profile, error) {
	return s.api.Profile(ctx)
}

func (s *ExpenseService) UpdateProfile(ctx context.Context, p remote.Profile) (remote.Profile, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
	p.Bio = strings.TrimSpace(p.Bio)
	if p.Email != "" && !strings.Contains(p.Email, "@") {
		return remote.Profile{}, fmt.Errorf("%w: email %q", ErrInvalidProfile, p.Email)
	}
	if err := s.api.UpdateProfile(ctx, p); err != nil {
		return remote.Profile{}, err
	}
	return s.api.Profile(ctx)
}

// afterWrite refreshes analytics. The write already succeeded upstream, so a
// failed refresh is only logged.
func (s *ExpenseService) afterWrite(ctx context.Context, reason string) {
	if s.refresher == nil {
		return
	}
	if _, err := s.refresher.Refresh(ctx, reason); err != nil {
		s.logger.WarnContext(ctx, "Failed to refresh analytics after write",
			ledgerlog.FieldOperation, ledgerlog.OpRefresh,
			ledgerlog.FieldRefreshReason, reason,
			ledgerlog.FieldError, err)
	}
}
