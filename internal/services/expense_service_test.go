package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ledgerlens/internal/analytics"
	"ledgerlens/internal/remote"
)

type fakeExpenseAPI struct {
	mu      sync.Mutex
	calls   []string
	inputs  []remote.ExpenseInput
	profile remote.Profile
	err     error
}

func (a *fakeExpenseAPI) record(call string, in *remote.ExpenseInput) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.calls = append(a.calls, call)
	if in != nil {
		a.inputs = append(a.inputs, *in)
	}
	return nil
}

func (a *fakeExpenseAPI) CreateExpense(_ context.Context, in remote.ExpenseInput) error {
	return a.record("create", &in)
}

func (a *fakeExpenseAPI) UpdateExpense(_ context.Context, id string, in remote.ExpenseInput) error {
	return a.record("update:"+id, &in)
}

func (a *fakeExpenseAPI) DeleteExpense(_ context.Context, id string) error {
	return a.record("delete:"+id, nil)
}

func (a *fakeExpenseAPI) Profile(_ context.Context) (remote.Profile, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.profile, a.err
}

func (a *fakeExpenseAPI) UpdateProfile(_ context.Context, p remote.Profile) error {
	if err := a.record("profile", nil); err != nil {
		return err
	}
	a.mu.Lock()
	a.profile = p
	a.mu.Unlock()
	return nil
}

func TestExpenseServiceInput(t *testing.T) {
	svc := NewExpenseService(&fakeExpenseAPI{}, nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) }

	tests := []struct {
		name    string
		draft   ExpenseDraft
		want    remote.ExpenseInput
		wantErr bool
	}{
		{
			name:  "normalizes fields",
			draft: ExpenseDraft{Title: " Lunch ", Amount: "12,345", Date: "2024-03-02", Category: " Food "},
			want:  remote.ExpenseInput{Title: "Lunch", Amount: "12.35", Date: "2024-03-02", Category: "Food"},
		},
		{
			name:  "date defaults to today",
			draft: ExpenseDraft{Title: "Bus", Amount: "2"},
			want:  remote.ExpenseInput{Title: "Bus", Amount: "2.00", Date: "2024-06-01"},
		},
		{name: "missing title", draft: ExpenseDraft{Amount: "1"}, wantErr: true},
		{name: "long title", draft: ExpenseDraft{Title: strings.Repeat("x", 201), Amount: "1"}, wantErr: true},
		{name: "missing amount", draft: ExpenseDraft{Title: "x"}, wantErr: true},
		{name: "negative amount", draft: ExpenseDraft{Title: "x", Amount: "-3"}, wantErr: true},
		{name: "bad date", draft: ExpenseDraft{Title: "x", Amount: "1", Date: "02/03/2024"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Input(tt.draft)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidExpense) {
					t.Fatalf("expected ErrInvalidExpense, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExpenseServiceWritesRefreshAnalytics(t *testing.T) {
	src := &countingSource{snap: sampleSnapshot()}
	analyticsSvc := NewAnalyticsService(src, nil, DefaultAnalyticsConfig())
	api := &fakeExpenseAPI{}
	svc := NewExpenseService(api, analyticsSvc, nil)
	ctx := context.Background()
	f := analytics.Filter{Year: 2024, Month: analytics.AllMonths}

	if _, err := analyticsSvc.Report(ctx, f); err != nil {
		t.Fatalf("report: %v", err)
	}
	draft := ExpenseDraft{Title: "Lunch", Amount: "10", Date: "2024-01-05", Category: "Food"}
	if err := svc.CreateExpense(ctx, draft); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.UpdateExpense(ctx, "a", draft); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := svc.DeleteExpense(ctx, "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteExpense(ctx, " "); !errors.Is(err, ErrInvalidExpense) {
		t.Fatalf("expected ErrInvalidExpense for blank id, got %v", err)
	}

	want := []string{"create", "update:a", "delete:b"}
	if strings.Join(api.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", api.calls, want)
	}
	if _, err := analyticsSvc.Report(ctx, f); err != nil {
		t.Fatalf("report: %v", err)
	}
	// One initial load plus one after the last invalidation.
	if got := atomic.LoadInt32(&src.loads); got != 2 {
		t.Fatalf("expected snapshot reload after writes, got %d loads", got)
	}
}

func TestExpenseServiceUpstreamErrorSkipsRefresh(t *testing.T) {
	pub := &fakePublisher{}
	analyticsSvc := NewAnalyticsService(&countingSource{snap: sampleSnapshot()}, pub, DefaultAnalyticsConfig())
	api := &fakeExpenseAPI{err: &remote.APIError{StatusCode: 404, Method: "DELETE", Path: "/expenses/x"}}
	svc := NewExpenseService(api, analyticsSvc, nil)

	err := svc.DeleteExpense(context.Background(), "x")
	var apiErr *remote.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 404 {
		t.Fatalf("expected upstream 404, got %v", err)
	}
	if len(pub.requests) != 0 {
		t.Fatalf("no refresh expected after a failed write, got %v", pub.requests)
	}
}

func TestExpenseServiceUpdateProfile(t *testing.T) {
	api := &fakeExpenseAPI{profile: remote.Profile{Name: "Old", Email: "old@example.com"}}
	svc := NewExpenseService(api, nil, nil)
	ctx := context.Background()

	if _, err := svc.UpdateProfile(ctx, remote.Profile{Email: "nope"}); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile, got %v", err)
	}
	got, err := svc.UpdateProfile(ctx, remote.Profile{Name: " Ada ", Email: "ada@example.com", Bio: "hi"})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if got.Name != "Ada" || got.Email != "ada@example.com" {
		t.Fatalf("unexpected profile: %+v", got)
	}
}
