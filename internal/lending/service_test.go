package lending

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/internal/inventory"
	"github.com/angelmondragon/library-backend/internal/loans"
	"github.com/angelmondragon/library-backend/pkg/auth"
	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/db/dbtest"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/metrics"
	"github.com/angelmondragon/library-backend/pkg/outbox"
)

type harness struct {
	svc    Service
	client *db.Client
	conn   *gorm.DB
	now    time.Time
}

func newHarness(t *testing.T, publisher outboxPublisher) *harness {
	t.Helper()
	client, conn := dbtest.OpenClient(t)
	h := &harness{client: client, conn: conn, now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	h.svc = h.serviceWith(t, publisher)
	return h
}

// serviceWith builds another service over the harness database. A nil
// publisher means the real outbox.
func (h *harness) serviceWith(t *testing.T, publisher outboxPublisher) Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	if publisher == nil {
		publisher = outbox.NewService(outbox.NewRepository(h.conn), logg)
	}
	svc, err := NewService(ServiceParams{
		TxRunner:  h.client,
		Inventory: inventory.NewRepository(h.conn),
		Loans:     loans.NewRepository(h.conn),
		Outbox:    publisher,
		Logger:    logg,
		Metrics:   metrics.NewLendingMetrics(prometheus.NewRegistry()),
		Now:       func() time.Time { return h.now },
	})
	require.NoError(t, err)
	return svc
}

func (h *harness) principal(t *testing.T, name string) auth.Principal {
	t.Helper()
	user := dbtest.SeedUser(t, h.conn, name, enums.RoleUser)
	return auth.Principal{UserID: user.ID, Role: user.Role}
}

func (h *harness) available(t *testing.T, bookID uuid.UUID) int {
	t.Helper()
	var book models.Book
	require.NoError(t, h.conn.First(&book, "id = ?", bookID).Error)
	return book.AvailableCopies
}

func (h *harness) countLoans(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, h.conn.Model(&models.Loan{}).Count(&count).Error)
	return count
}

type failingPublisher struct{}

func (failingPublisher) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return errors.New("outbox unavailable")
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestBorrowCreatesLoanAndDecrements(t *testing.T) {
	h := newHarness(t, nil)
	book := dbtest.SeedBook(t, h.conn, "Dune", 2, 2)
	alice := h.principal(t, "alice")

	snap, err := h.svc.Borrow(context.Background(), alice, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.AvailableCopies)
	assert.Equal(t, alice.UserID, snap.UserID)
	assert.True(t, snap.BorrowedAt.Equal(h.now))
	assert.True(t, snap.DueDate.Equal(h.now.Add(14*24*time.Hour)))
	assert.Equal(t, 1, h.available(t, book.ID))

	var events []models.OutboxEvent
	require.NoError(t, h.conn.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventLoanBorrowed, events[0].EventType)
	assert.Equal(t, snap.LoanID, events[0].AggregateID)
}

func TestBorrowThenReturnRestoresAvailability(t *testing.T) {
	h := newHarness(t, nil)
	book := dbtest.SeedBook(t, h.conn, "Emma", 3, 3)
	alice := h.principal(t, "alice")
	ctx := context.Background()

	_, err := h.svc.Borrow(ctx, alice, book.ID)
	require.NoError(t, err)

	h.now = h.now.Add(24 * time.Hour)
	ack, err := h.svc.Return(ctx, alice, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, ack.AvailableCopies)
	assert.False(t, ack.Late)
	assert.Equal(t, 3, h.available(t, book.ID))
}

func TestLendingScenario(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	book := dbtest.SeedBook(t, h.conn, "Ulysses", 2, 2)
	a := h.principal(t, "a")
	b := h.principal(t, "b")
	c := h.principal(t, "c")

	snap, err := h.svc.Borrow(ctx, a, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.AvailableCopies)

	snap, err = h.svc.Borrow(ctx, b, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.AvailableCopies)

	_, err = h.svc.Borrow(ctx, c, book.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeUnavailable, pkgerrors.CodeOf(err))

	ack, err := h.svc.Return(ctx, a, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, ack.AvailableCopies)

	snap, err = h.svc.Borrow(ctx, c, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.AvailableCopies)
	assert.Equal(t, 0, h.available(t, book.ID))
}

func TestBorrowTwiceConflicts(t *testing.T) {
	h := newHarness(t, nil)
	book := dbtest.SeedBook(t, h.conn, "Dune", 3, 3)
	alice := h.principal(t, "alice")
	ctx := context.Background()

	_, err := h.svc.Borrow(ctx, alice, book.ID)
	require.NoError(t, err)

	_, err = h.svc.Borrow(ctx, alice, book.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
	assert.Equal(t, 2, h.available(t, book.ID))
	assert.Equal(t, int64(1), h.countLoans(t))
}

func TestReturnWithoutBorrowIsNotFound(t *testing.T) {
	h := newHarness(t, nil)
	book := dbtest.SeedBook(t, h.conn, "Dune", 1, 1)
	alice := h.principal(t, "alice")

	_, err := h.svc.Return(context.Background(), alice, book.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
	assert.Equal(t, 1, h.available(t, book.ID))
}

func TestDoubleReturnIsAlreadyClosed(t *testing.T) {
	h := newHarness(t, nil)
	book := dbtest.SeedBook(t, h.conn, "Dune", 1, 1)
	alice := h.principal(t, "alice")
	ctx := context.Background()

	_, err := h.svc.Borrow(ctx, alice, book.ID)
	require.NoError(t, err)
	_, err = h.svc.Return(ctx, alice, book.ID)
	require.NoError(t, err)

	_, err = h.svc.Return(ctx, alice, book.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeAlreadyClosed, pkgerrors.CodeOf(err))
	assert.Equal(t, 1, h.available(t, book.ID))
}

func TestReturnLoanByID(t *testing.T) {
	h := newHarness(t, nil)
	book := dbtest.SeedBook(t, h.conn, "Dune", 1, 1)
	alice := h.principal(t, "alice")
	bob := h.principal(t, "bob")
	ctx := context.Background()

	snap, err := h.svc.Borrow(ctx, alice, book.ID)
	require.NoError(t, err)

	_, err = h.svc.ReturnLoan(ctx, bob, snap.LoanID)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err), "other users must not close the loan")

	h.now = h.now.Add(15 * 24 * time.Hour)
	ack, err := h.svc.ReturnLoan(ctx, alice, snap.LoanID)
	require.NoError(t, err)
	assert.True(t, ack.Late)
	assert.Equal(t, 1, ack.AvailableCopies)

	_, err = h.svc.ReturnLoan(ctx, alice, snap.LoanID)
	assert.Equal(t, pkgerrors.CodeAlreadyClosed, pkgerrors.CodeOf(err))

	_, err = h.svc.ReturnLoan(ctx, alice, uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestUnauthenticatedAndUnknownBook(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.svc.Borrow(ctx, auth.Principal{}, uuid.New())
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))
	_, err = h.svc.Return(ctx, auth.Principal{}, uuid.New())
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))
	_, err = h.svc.ReturnLoan(ctx, auth.Principal{}, uuid.New())
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))

	alice := h.principal(t, "alice")
	_, err = h.svc.Borrow(ctx, alice, uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
	_, err = h.svc.Return(ctx, alice, uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestFailedEmitRollsBackBorrow(t *testing.T) {
	h := newHarness(t, failingPublisher{})
	book := dbtest.SeedBook(t, h.conn, "Dune", 1, 1)
	alice := h.principal(t, "alice")

	_, err := h.svc.Borrow(context.Background(), alice, book.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInternal, pkgerrors.CodeOf(err))
	assert.Equal(t, 1, h.available(t, book.ID))
	assert.Equal(t, int64(0), h.countLoans(t))
}

func TestFailedEmitRollsBackReturn(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	book := dbtest.SeedBook(t, h.conn, "Dune", 1, 1)
	alice := h.principal(t, "alice")

	snap, err := h.svc.Borrow(ctx, alice, book.ID)
	require.NoError(t, err)
	require.Equal(t, 0, h.available(t, book.ID))

	broken := h.serviceWith(t, failingPublisher{})

	_, err = broken.Return(ctx, alice, book.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInternal, pkgerrors.CodeOf(err))
	h.assertStillBorrowed(t, snap.LoanID, book.ID)

	_, err = broken.ReturnLoan(ctx, alice, snap.LoanID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInternal, pkgerrors.CodeOf(err))
	h.assertStillBorrowed(t, snap.LoanID, book.ID)

	_, err = h.svc.Return(ctx, alice, book.ID)
	require.NoError(t, err, "the loan must still be returnable once the outbox recovers")
	assert.Equal(t, 1, h.available(t, book.ID))
}

func (h *harness) assertStillBorrowed(t *testing.T, loanID, bookID uuid.UUID) {
	t.Helper()
	var loan models.Loan
	require.NoError(t, h.conn.First(&loan, "id = ?", loanID).Error)
	assert.Nil(t, loan.DateReturn, "loan must stay open after a failed return")
	assert.Equal(t, 0, h.available(t, bookID), "copies must not be released by a failed return")
}

func TestReturnClampsToTotalAfterShrink(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	book := dbtest.SeedBook(t, h.conn, "Dune", 2, 2)
	alice := h.principal(t, "alice")

	_, err := h.svc.Borrow(ctx, alice, book.ID)
	require.NoError(t, err)

	// Shrink to one copy while the loan is open: available=clamp(1+1-2)=0.
	_, err = inventory.NewRepository(h.conn).Resize(ctx, book.ID, 1)
	require.NoError(t, err)
	require.NoError(t, h.conn.Model(&models.Book{}).Where("id = ?", book.ID).Update("available_copies", 1).Error)

	ack, err := h.svc.Return(ctx, alice, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, ack.AvailableCopies, "increment must clamp to total_copies")
}

func TestConcurrentBorrowOfLastCopy(t *testing.T) {
	h := newHarness(t, nil)
	book := dbtest.SeedBook(t, h.conn, "Dune", 1, 1)

	const workers = 8
	principals := make([]auth.Principal, workers)
	for i := range principals {
		principals[i] = h.principal(t, "reader")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		codes     []pkgerrors.Code
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(p auth.Principal) {
			defer wg.Done()
			_, err := h.svc.Borrow(context.Background(), p, book.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			codes = append(codes, pkgerrors.CodeOf(err))
		}(principals[i])
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	for _, code := range codes {
		assert.Contains(t, []pkgerrors.Code{pkgerrors.CodeUnavailable, pkgerrors.CodeConflict}, code)
	}
	assert.Equal(t, 0, h.available(t, book.ID))
	assert.Equal(t, int64(1), h.countLoans(t))
}

func TestConcurrentBorrowSameUser(t *testing.T) {
	h := newHarness(t, nil)
	book := dbtest.SeedBook(t, h.conn, "Dune", 5, 5)
	alice := h.principal(t, "alice")

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.Borrow(context.Background(), alice, book.ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 4, h.available(t, book.ID))
}

func TestAvailabilityStaysInBounds(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	book := dbtest.SeedBook(t, h.conn, "Dune", 2, 2)
	inv := inventory.NewRepository(h.conn)
	users := []auth.Principal{h.principal(t, "a"), h.principal(t, "b"), h.principal(t, "c")}

	steps := []func(){
		func() { _, _ = h.svc.Borrow(ctx, users[0], book.ID) },
		func() { _, _ = h.svc.Borrow(ctx, users[1], book.ID) },
		func() { _, _ = h.svc.Borrow(ctx, users[2], book.ID) },
		func() { _, _ = inv.Resize(ctx, book.ID, 1) },
		func() { _, _ = h.svc.Return(ctx, users[0], book.ID) },
		func() { _, _ = h.svc.Return(ctx, users[0], book.ID) },
		func() { _, _ = inv.Resize(ctx, book.ID, 4) },
		func() { _, _ = h.svc.Borrow(ctx, users[2], book.ID) },
		func() { _, _ = h.svc.Return(ctx, users[1], book.ID) },
		func() { _, _ = h.svc.Return(ctx, users[2], book.ID) },
	}
	for i, step := range steps {
		step()
		var b models.Book
		require.NoError(t, h.conn.First(&b, "id = ?", book.ID).Error)
		assert.GreaterOrEqual(t, b.AvailableCopies, 0, "step %d", i)
		assert.LessOrEqual(t, b.AvailableCopies, b.TotalCopies, "step %d", i)
	}
}
