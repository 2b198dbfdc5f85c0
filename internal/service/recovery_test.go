package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/codewithrichardb/ecommerce-backend/internal/domain"
	"github.com/codewithrichardb/ecommerce-backend/internal/mailer"
	"github.com/codewithrichardb/ecommerce-backend/internal/repository"
	"github.com/codewithrichardb/ecommerce-backend/pkg/clock"
	apperrors "github.com/codewithrichardb/ecommerce-backend/pkg/errors"
)

// --- Mock Repositories ---

type mockCartRepository struct {
	mock.Mock
}

func (m *mockCartRepository) Create(ctx context.Context, cart *domain.AbandonedCart) error {
	args := m.Called(ctx, cart)
	return args.Error(0)
}

func (m *mockCartRepository) GetByID(ctx context.Context, id string) (*domain.AbandonedCart, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AbandonedCart), args.Error(1)
}

func (m *mockCartRepository) GetByToken(ctx context.Context, token string) (*domain.AbandonedCart, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AbandonedCart), args.Error(1)
}

func (m *mockCartRepository) GetActiveByEmail(ctx context.Context, email string) (*domain.AbandonedCart, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AbandonedCart), args.Error(1)
}

func (m *mockCartRepository) Update(ctx context.Context, cart *domain.AbandonedCart) error {
	args := m.Called(ctx, cart)
	return args.Error(0)
}

func (m *mockCartRepository) MarkRecovered(ctx context.Context, id string, at time.Time) (bool, error) {
	args := m.Called(ctx, id, at)
	return args.Bool(0), args.Error(1)
}

func (m *mockCartRepository) MarkConvertedByEmail(ctx context.Context, email string, at time.Time) (int, error) {
	args := m.Called(ctx, email, at)
	return args.Int(0), args.Error(1)
}

func (m *mockCartRepository) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func (m *mockCartRepository) IncrementOpened(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockCartRepository) IncrementClicked(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockCartRepository) Stats(ctx context.Context) (*repository.CartStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.CartStats), args.Error(1)
}

type mockEmailRepository struct {
	mock.Mock
}

func (m *mockEmailRepository) Create(ctx context.Context, email *domain.RecoveryEmail) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *mockEmailRepository) GetByID(ctx context.Context, id string) (*domain.RecoveryEmail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RecoveryEmail), args.Error(1)
}

func (m *mockEmailRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.RecoveryEmail, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]domain.RecoveryEmail), args.Error(1)
}

func (m *mockEmailRepository) ClaimSending(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockEmailRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *mockEmailRepository) MarkFailed(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockEmailRepository) MarkOpened(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *mockEmailRepository) MarkClicked(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

type mockLiveCartStore struct {
	mock.Mock
}

func (m *mockLiveCartStore) Save(ctx context.Context, cart *domain.LiveCart) error {
	args := m.Called(ctx, cart)
	return args.Error(0)
}

func (m *mockLiveCartStore) Get(ctx context.Context, email string) (*domain.LiveCart, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LiveCart), args.Error(1)
}

func (m *mockLiveCartStore) Delete(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

// fakeSender records sent messages and can be told to fail.
type fakeSender struct {
	sent []*mailer.Message
	err  error
}

func (s *fakeSender) Name() string { return "fake" }

func (s *fakeSender) Send(_ context.Context, msg *mailer.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

// --- Test Helpers ---

func newTestRecoveryService(t *testing.T, carts *mockCartRepository, emails *mockEmailRepository, live *mockLiveCartStore, couponRepo *mockCouponRepository) (*RecoveryService, *clock.MockClock, *fakeSender) {
	t.Helper()

	logger := newTestLogger()
	clk := clock.NewMockClock(svcNow)
	sender := &fakeSender{}

	renderer, err := mailer.NewRenderer()
	require.NoError(t, err)

	coupons := NewCouponService(couponRepo, newTestProducer(), clk, logger)
	svc := NewRecoveryService(carts, emails, live, coupons, sender, renderer, newTestProducer(), clk, logger, RecoveryConfig{
		StoreName: "Test Store",
		BaseURL:   "https://shop.example.com",
		BatchSize: 50,
	})

	return svc, clk, sender
}

func sampleItems() []domain.CartItem {
	return []domain.CartItem{
		{ProductID: "prod-1", ProductName: "Sneakers", Quantity: 2, Price: 4500},
		{ProductID: "prod-2", ProductName: "Socks", Quantity: 1, Price: 1000},
	}
}

func activeCart() *domain.AbandonedCart {
	return &domain.AbandonedCart{
		ID:            "cart-1",
		Email:         "shopper@example.com",
		Items:         sampleItems(),
		Subtotal:      10000,
		Total:         10000,
		Status:        domain.CartStatusActive,
		RecoveryToken: "abc123",
		RecoveryURL:   "https://shop.example.com/cart/recover/abc123",
		ExpiresAt:     svcNow.Add(6 * 24 * time.Hour),
		CreatedAt:     svcNow.Add(-2 * time.Hour),
		UpdatedAt:     svcNow.Add(-2 * time.Hour),
	}
}

// --- Capture ---

func TestSaveAbandonedCart_CreatesAndSchedulesFirstReminder(t *testing.T) {
	carts := new(mockCartRepository)
	emails := new(mockEmailRepository)
	couponRepo := new(mockCouponRepository)
	svc, _, _ := newTestRecoveryService(t, carts, emails, new(mockLiveCartStore), couponRepo)
	ctx := context.Background()

	carts.On("GetActiveByEmail", ctx, "shopper@example.com").
		Return(nil, apperrors.NotFound("cart", "shopper@example.com"))

	var created *domain.AbandonedCart
	carts.On("Create", ctx, mock.AnythingOfType("*domain.AbandonedCart")).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*domain.AbandonedCart)
		}).
		Return(nil)

	var scheduled *domain.RecoveryEmail
	emails.On("Create", ctx, mock.AnythingOfType("*domain.RecoveryEmail")).
		Run(func(args mock.Arguments) {
			scheduled = args.Get(1).(*domain.RecoveryEmail)
		}).
		Return(nil)

	carts.On("Update", ctx, mock.AnythingOfType("*domain.AbandonedCart")).Return(nil)

	cart, err := svc.SaveAbandonedCart(ctx, &SaveAbandonedCartInput{
		Email: "  Shopper@Example.COM ",
		Items: sampleItems(),
	})

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "shopper@example.com", cart.Email)
	assert.Equal(t, int64(10000), cart.Subtotal)
	assert.Equal(t, int64(10000), cart.Total)
	assert.Equal(t, domain.CartStatusActive, cart.Status)
	assert.Len(t, cart.RecoveryToken, 40)
	assert.Equal(t, "https://shop.example.com/cart/recover/"+cart.RecoveryToken, cart.RecoveryURL)
	assert.Equal(t, svcNow.Add(7*24*time.Hour), cart.ExpiresAt)
	assert.Equal(t, 1, cart.EmailsSent)

	require.NotNil(t, scheduled)
	assert.Equal(t, domain.EmailTypeFirstReminder, scheduled.EmailType)
	assert.Equal(t, domain.EmailStatusPending, scheduled.Status)
	assert.Equal(t, svcNow.Add(time.Hour), scheduled.ScheduledFor)
	assert.Empty(t, scheduled.CouponCode)

	carts.AssertExpectations(t)
	emails.AssertExpectations(t)
}

func TestSaveAbandonedCart_RefreshesExistingCart(t *testing.T) {
	carts := new(mockCartRepository)
	emails := new(mockEmailRepository)
	svc, _, _ := newTestRecoveryService(t, carts, emails, new(mockLiveCartStore), new(mockCouponRepository))
	ctx := context.Background()

	existing := activeCart()
	existing.EmailsSent = 1
	carts.On("GetActiveByEmail", ctx, "shopper@example.com").Return(existing, nil)
	carts.On("Update", ctx, existing).Return(nil)

	newItems := []domain.CartItem{
		{ProductID: "prod-3", ProductName: "Hat", Quantity: 1, Price: 2500},
	}

	cart, err := svc.SaveAbandonedCart(ctx, &SaveAbandonedCartInput{
		Email: "shopper@example.com",
		Items: newItems,
	})

	require.NoError(t, err)
	assert.Equal(t, "cart-1", cart.ID)
	assert.Equal(t, int64(2500), cart.Subtotal)
	// Reminder state is preserved; no new reminder is scheduled on refresh.
	assert.Equal(t, 1, cart.EmailsSent)
	carts.AssertNotCalled(t, "Create")
	emails.AssertNotCalled(t, "Create")
}

func TestSaveAbandonedCart_RequiresEmailAndItems(t *testing.T) {
	svc, _, _ := newTestRecoveryService(t, new(mockCartRepository), new(mockEmailRepository), new(mockLiveCartStore), new(mockCouponRepository))
	ctx := context.Background()

	_, err := svc.SaveAbandonedCart(ctx, &SaveAbandonedCartInput{Items: sampleItems()})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.SaveAbandonedCart(ctx, &SaveAbandonedCartInput{Email: "shopper@example.com"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

// --- Scheduling ---

func TestScheduleNextReminder_FinalReminderMintsCoupon(t *testing.T) {
	carts := new(mockCartRepository)
	emails := new(mockEmailRepository)
	couponRepo := new(mockCouponRepository)
	svc, _, _ := newTestRecoveryService(t, carts, emails, new(mockLiveCartStore), couponRepo)
	ctx := context.Background()

	lastSent := svcNow.Add(-time.Hour)
	cart := activeCart()
	cart.EmailsSent = 2
	cart.LastEmailSentAt = &lastSent

	couponRepo.On("Create", ctx, mock.AnythingOfType("*domain.Coupon")).Return(nil)
	var scheduled *domain.RecoveryEmail
	emails.On("Create", ctx, mock.AnythingOfType("*domain.RecoveryEmail")).
		Run(func(args mock.Arguments) {
			scheduled = args.Get(1).(*domain.RecoveryEmail)
		}).
		Return(nil)
	carts.On("Update", ctx, cart).Return(nil)

	email, err := svc.ScheduleNextReminder(ctx, cart)

	require.NoError(t, err)
	require.NotNil(t, scheduled)
	assert.Equal(t, domain.EmailTypeFinalReminder, email.EmailType)
	assert.Equal(t, "Last chance to complete your purchase!", email.Subject)
	assert.Equal(t, lastSent.Add(72*time.Hour), email.ScheduledFor)
	assert.True(t, strings.HasPrefix(email.CouponCode, "RECOVER"))
	assert.Equal(t, int64(10), email.DiscountValue)
	assert.Equal(t, 3, cart.EmailsSent)
}

func TestScheduleNextReminder_ExhaustedSequence(t *testing.T) {
	carts := new(mockCartRepository)
	emails := new(mockEmailRepository)
	svc, _, _ := newTestRecoveryService(t, carts, emails, new(mockLiveCartStore), new(mockCouponRepository))

	cart := activeCart()
	cart.EmailsSent = 3

	email, err := svc.ScheduleNextReminder(context.Background(), cart)

	require.NoError(t, err)
	assert.Nil(t, email)
	emails.AssertNotCalled(t, "Create")
	carts.AssertNotCalled(t, "Update")
}

func TestScheduleNextReminder_MintFailureSendsWithoutCoupon(t *testing.T) {
	carts := new(mockCartRepository)
	emails := new(mockEmailRepository)
	couponRepo := new(mockCouponRepository)
	svc, _, _ := newTestRecoveryService(t, carts, emails, new(mockLiveCartStore), couponRepo)
	ctx := context.Background()

	lastSent := svcNow.Add(-time.Hour)
	cart := activeCart()
	cart.EmailsSent = 2
	cart.LastEmailSentAt = &lastSent

	couponRepo.On("Create", ctx, mock.AnythingOfType("*domain.Coupon")).
		Return(errors.New("db down"))
	emails.On("Create", ctx, mock.AnythingOfType("*domain.RecoveryEmail")).Return(nil)
	carts.On("Update", ctx, cart).Return(nil)

	email, err := svc.ScheduleNextReminder(ctx, cart)

	require.NoError(t, err)
	assert.Equal(t, domain.EmailTypeFinalReminder, email.EmailType)
	assert.Empty(t, email.CouponCode)
}

// --- Sweep ---

func TestProcessDueReminders_SendsAndSchedulesNext(t *testing.T) {
	carts := new(mockCartRepository)
	emails := new(mockEmailRepository)
	svc, _, sender := newTestRecoveryService(t, carts, emails, new(mockLiveCartStore), new(mockCouponRepository))
	ctx := context.Background()

	cart := activeCart()
	cart.EmailsSent = 1

	due := domain.RecoveryEmail{
		ID:           "email-1",
		CartID:       "cart-1",
		EmailType:    domain.EmailTypeFirstReminder,
		Status:       domain.EmailStatusPending,
		ScheduledFor: svcNow.Add(-time.Minute),
		Subject:      "Did you forget something? Your cart is waiting!",
	}

	carts.On("ExpireStale", ctx, svcNow).Return(0, nil)
	emails.On("ListDue", ctx, svcNow, 50).Return([]domain.RecoveryEmail{due}, nil)
	emails.On("ClaimSending", ctx, "email-1").Return(true, nil)
	carts.On("GetByID", ctx, "cart-1").Return(cart, nil)
	emails.On("MarkSent", ctx, "email-1", svcNow).Return(nil)
	carts.On("Update", ctx, mock.AnythingOfType("*domain.AbandonedCart")).Return(nil)

	var next *domain.RecoveryEmail
	emails.On("Create", ctx, mock.AnythingOfType("*domain.RecoveryEmail")).
		Run(func(args mock.Arguments) {
			next = args.Get(1).(*domain.RecoveryEmail)
		}).
		Return(nil)

	sent, err := svc.ProcessDueReminders(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "shopper@example.com", sender.sent[0].To)
	assert.Equal(t, due.Subject, sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].HTMLBody, "Sneakers")
	assert.Contains(t, sender.sent[0].HTMLBody, "/api/v1/abandoned-carts/track/open/email-1")
	assert.Contains(t, sender.sent[0].HTMLBody, "/api/v1/abandoned-carts/track/click/email-1")

	// The second reminder is queued 24h after this send.
	require.NotNil(t, next)
	assert.Equal(t, domain.EmailTypeSecondReminder, next.EmailType)
	assert.Equal(t, svcNow.Add(24*time.Hour), next.ScheduledFor)
	assert.Equal(t, 2, cart.EmailsSent)

	carts.AssertExpectations(t)
	emails.AssertExpectations(t)
}

func TestProcessDueReminders_SkipsAlreadyClaimed(t *testing.T) {
	carts := new(mockCartRepository)
	emails := new(mockEmailRepository)
	svc, _, sender := newTestRecoveryService(t, carts, emails, new(mockLiveCartStore), new(mockCouponRepository))
	ctx := context.Background()

	due := domain.RecoveryEmail{ID: "email-1", CartID: "cart-1", EmailType: domain.EmailTypeFirstReminder}

	carts.On("ExpireStale", ctx, svcNow).Return(0, nil)
	emails.On("ListDue", ctx, svcNow, 50).Return([]domain.RecoveryEmail{due}, nil)
	emails.On("ClaimSending", ctx, "email-1").Return(false, nil)

	sent, err := svc.ProcessDueReminders(ctx)

	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Empty(t, sender.sent)
	carts.AssertNotCalled(t, "GetByID")
}

func TestProcessDueReminders_MarksFailedOnSendError(t *testing.T) {
	carts := new(mockCartRepository)
	emails := new(mockEmailRepository)
	svc, _, sender := newTestRecoveryService(t, carts, emails, new(mockLiveCartStore), new(mockCouponRepository))
	sender.err = errors.New("smtp relay refused")
	ctx := context.Background()

	due := domain.RecoveryEmail{
		ID:        "email-1",
		CartID:    "cart-1",
		EmailType: domain.EmailTypeFirstReminder,
		Subject:   "Did you forget something? Your cart is waiting!",
	}

	carts.On("ExpireStale", ctx, svcNow).Return(0, nil)
	emails.On("ListDue", ctx, svcNow, 50).Return([]domain.RecoveryEmail{due}, nil)
	emails.On("ClaimSending", ctx, "email-1").Return(true, nil)
	carts.On("GetByID", ctx, "cart-1").Return(activeCart(), nil)
	emails.On("MarkFailed", ctx, "email-1").Return(nil)

	sent, err := svc.ProcessDueReminders(ctx)

	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	emails.AssertNotCalled(t, "MarkSent")
	emails.AssertExpectations(t)
}

func TestProcessDueReminders_ExpiresStaleFirst(t *testing.T) {
	carts := new(mockCartRepository)
	emails := new(mockEmailRepository)
	svc, _, _ := newTestRecoveryService(t, carts, emails, new(mockLiveCartStore), new(mockCouponRepository))
	ctx := context.Background()

	carts.On("ExpireStale", ctx, svcNow).Return(4, nil)
	emails.On("ListDue", ctx, svcNow, 50).Return([]domain.RecoveryEmail{}, nil)

	sent, err := svc.ProcessDueReminders(ctx)

	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	carts.AssertExpectations(t)
}

// --- Recovery ---

func TestRecoverCart_Success(t *testing.T) {
	carts := new(mockCartRepository)
	live := new(mockLiveCartStore)
	svc, _, _ := newTestRecoveryService(t, carts, new(mockEmailRepository), live, new(mockCouponRepository))
	ctx := context.Background()

	cart := activeCart()
	carts.On("GetByToken", ctx, "abc123").Return(cart, nil)
	carts.On("MarkRecovered", ctx, "cart-1", svcNow).Return(true, nil)

	var rehydrated *domain.LiveCart
	live.On("Save", ctx, mock.AnythingOfType("*domain.LiveCart")).
		Run(func(args mock.Arguments) {
			rehydrated = args.Get(1).(*domain.LiveCart)
		}).
		Return(nil)

	recovered, err := svc.RecoverCart(ctx, "abc123")

	require.NoError(t, err)
	assert.Equal(t, domain.CartStatusRecovered, recovered.Status)
	require.NotNil(t, recovered.RecoveredAt)
	assert.Equal(t, svcNow, *recovered.RecoveredAt)

	require.NotNil(t, rehydrated)
	assert.Equal(t, "shopper@example.com", rehydrated.Email)
	assert.Equal(t, "cart-1", rehydrated.RecoveredFrom)
	assert.Len(t, rehydrated.Items, 2)

	carts.AssertExpectations(t)
	live.AssertExpectations(t)
}

func TestRecoverCart_AlreadySettled(t *testing.T) {
	carts := new(mockCartRepository)
	svc, _, _ := newTestRecoveryService(t, carts, new(mockEmailRepository), new(mockLiveCartStore), new(mockCouponRepository))
	ctx := context.Background()

	cart := activeCart()
	cart.Status = domain.CartStatusRecovered
	carts.On("GetByToken", ctx, "abc123").Return(cart, nil)

	_, err := svc.RecoverCart(ctx, "abc123")

	assert.ErrorIs(t, err, apperrors.ErrGone)
	carts.AssertNotCalled(t, "MarkRecovered")
}

func TestRecoverCart_Expired(t *testing.T) {
	carts := new(mockCartRepository)
	svc, _, _ := newTestRecoveryService(t, carts, new(mockEmailRepository), new(mockLiveCartStore), new(mockCouponRepository))
	ctx := context.Background()

	cart := activeCart()
	cart.ExpiresAt = svcNow.Add(-time.Hour)
	carts.On("GetByToken", ctx, "abc123").Return(cart, nil)

	_, err := svc.RecoverCart(ctx, "abc123")

	assert.ErrorIs(t, err, apperrors.ErrGone)
	carts.AssertNotCalled(t, "MarkRecovered")
}

func TestRecoverCart_LostRace(t *testing.T) {
	carts := new(mockCartRepository)
	svc, _, _ := newTestRecoveryService(t, carts, new(mockEmailRepository), new(mockLiveCartStore), new(mockCouponRepository))
	ctx := context.Background()

	carts.On("GetByToken", ctx, "abc123").Return(activeCart(), nil)
	carts.On("MarkRecovered", ctx, "cart-1", svcNow).Return(false, nil)

	_, err := svc.RecoverCart(ctx, "abc123")

	assert.ErrorIs(t, err, apperrors.ErrGone)
}

func TestRecoverCart_CacheFailureIsNotFatal(t *testing.T) {
	carts := new(mockCartRepository)
	live := new(mockLiveCartStore)
	svc, _, _ := newTestRecoveryService(t, carts, new(mockEmailRepository), live, new(mockCouponRepository))
	ctx := context.Background()

	carts.On("GetByToken", ctx, "abc123").Return(activeCart(), nil)
	carts.On("MarkRecovered", ctx, "cart-1", svcNow).Return(true, nil)
	live.On("Save", ctx, mock.AnythingOfType("*domain.LiveCart")).
		Return(errors.New("redis down"))

	recovered, err := svc.RecoverCart(ctx, "abc123")

	require.NoError(t, err)
	assert.Equal(t, domain.CartStatusRecovered, recovered.Status)
}

// --- Tracking ---

func TestTrackOpen(t *testing.T) {
	carts := new(mockCartRepository)
	emails := new(mockEmailRepository)
	svc, _, _ := newTestRecoveryService(t, carts, emails, new(mockLiveCartStore), new(mockCouponRepository))
	ctx := context.Background()

	emails.On("GetByID", ctx, "email-1").
		Return(&domain.RecoveryEmail{ID: "email-1", CartID: "cart-1"}, nil)
	emails.On("MarkOpened", ctx, "email-1", svcNow).Return(nil)
	carts.On("IncrementOpened", ctx, "cart-1").Return(nil)

	require.NoError(t, svc.TrackOpen(ctx, "email-1"))
	emails.AssertExpectations(t)
	carts.AssertExpectations(t)
}

func TestTrackOpen_RepeatOpensCountEachTime(t *testing.T) {
	carts := new(mockCartRepository)
	emails := new(mockEmailRepository)
	svc, _, _ := newTestRecoveryService(t, carts, emails, new(mockLiveCartStore), new(mockCouponRepository))
	ctx := context.Background()

	// Mail clients refetch the pixel on every render. The reminder status
	// only advances once, but the cart counter goes up per open.
	emails.On("GetByID", ctx, "email-1").
		Return(&domain.RecoveryEmail{ID: "email-1", CartID: "cart-1"}, nil).Twice()
	emails.On("MarkOpened", ctx, "email-1", svcNow).Return(nil).Twice()
	carts.On("IncrementOpened", ctx, "cart-1").Return(nil).Twice()

	require.NoError(t, svc.TrackOpen(ctx, "email-1"))
	require.NoError(t, svc.TrackOpen(ctx, "email-1"))

	emails.AssertExpectations(t)
	carts.AssertNumberOfCalls(t, "IncrementOpened", 2)
}

func TestTrackClick(t *testing.T) {
	carts := new(mockCartRepository)
	emails := new(mockEmailRepository)
	svc, _, _ := newTestRecoveryService(t, carts, emails, new(mockLiveCartStore), new(mockCouponRepository))
	ctx := context.Background()

	emails.On("GetByID", ctx, "email-1").
		Return(&domain.RecoveryEmail{ID: "email-1", CartID: "cart-1"}, nil)
	emails.On("MarkClicked", ctx, "email-1", svcNow).Return(nil)
	carts.On("IncrementClicked", ctx, "cart-1").Return(nil)

	email, err := svc.TrackClick(ctx, "email-1")

	require.NoError(t, err)
	assert.Equal(t, "cart-1", email.CartID)
}

func TestTrackOpen_UnknownEmail(t *testing.T) {
	emails := new(mockEmailRepository)
	svc, _, _ := newTestRecoveryService(t, new(mockCartRepository), emails, new(mockLiveCartStore), new(mockCouponRepository))
	ctx := context.Background()

	emails.On("GetByID", ctx, "ghost").Return(nil, apperrors.NotFound("recovery email", "ghost"))

	err := svc.TrackOpen(ctx, "ghost")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// --- Conversion ---

func TestMarkConverted(t *testing.T) {
	carts := new(mockCartRepository)
	svc, _, _ := newTestRecoveryService(t, carts, new(mockEmailRepository), new(mockLiveCartStore), new(mockCouponRepository))
	ctx := context.Background()

	carts.On("MarkConvertedByEmail", ctx, "shopper@example.com", svcNow).Return(1, nil)

	n, err := svc.MarkConverted(ctx, "  Shopper@Example.com ")

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	carts.AssertExpectations(t)
}

func TestMarkConverted_NoActiveCart(t *testing.T) {
	carts := new(mockCartRepository)
	svc, _, _ := newTestRecoveryService(t, carts, new(mockEmailRepository), new(mockLiveCartStore), new(mockCouponRepository))
	ctx := context.Background()

	carts.On("MarkConvertedByEmail", ctx, "other@example.com", svcNow).Return(0, nil)

	n, err := svc.MarkConverted(ctx, "other@example.com")

	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// --- Stats ---

func TestRecoveryCartStats(t *testing.T) {
	carts := new(mockCartRepository)
	svc, _, _ := newTestRecoveryService(t, carts, new(mockEmailRepository), new(mockLiveCartStore), new(mockCouponRepository))
	ctx := context.Background()

	carts.On("Stats", ctx).Return(&repository.CartStats{
		TotalCarts:     20,
		ActiveCarts:    5,
		RecoveredCarts: 4,
		TotalValue:     200000,
	}, nil)

	stats, err := svc.CartStats(ctx)

	require.NoError(t, err)
	assert.Equal(t, 20, stats.TotalCarts)
	assert.Equal(t, 4, stats.RecoveredCarts)
}
