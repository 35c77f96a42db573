package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"venuebook/internal/booking"
	"venuebook/internal/database"
	"venuebook/internal/domain"
	"venuebook/internal/events"
	"venuebook/internal/export"
	"venuebook/internal/identity"
	"venuebook/internal/metrics"
	"venuebook/internal/models"

	"github.com/rs/zerolog"
)

const (
	SubmitSuccessMessage = "Booking request submitted successfully! Awaiting admin approval."
	SubmitFailureMessage = "Failed to submit booking request. Please try again."
)

var (
	ErrForbidden   = identity.ErrForbidden
	ErrRateLimited = errors.New("too many booking requests, try again later")
)

// BookingOptions tunes BookingService.
type BookingOptions struct {
	SubmissionLimit           int
	SubmissionWindow          time.Duration
	RecheckConflictsOnApprove bool
	Location                  *time.Location
	Clock                     booking.Clock
}

type BookingService struct {
	repo      domain.Repository
	policy    identity.Policy
	state     domain.StateRepository
	locker    domain.SlotLocker
	eventBus  domain.EventPublisher
	tasks     domain.TaskQueue
	validator *booking.Validator
	clock     booking.Clock
	opts      BookingOptions
	logger    *zerolog.Logger
}

// NewBookingService wires the booking workflow. state, locker, eventBus and
// tasks may be nil.
func NewBookingService(
	repo domain.Repository,
	policy identity.Policy,
	state domain.StateRepository,
	locker domain.SlotLocker,
	eventBus domain.EventPublisher,
	tasks domain.TaskQueue,
	opts BookingOptions,
	logger *zerolog.Logger,
) *BookingService {
	if opts.Clock == nil {
		opts.Clock = booking.SystemClock
	}
	if opts.SubmissionLimit <= 0 {
		opts.SubmissionLimit = models.DefaultSubmissionLimit
	}
	if opts.SubmissionWindow <= 0 {
		opts.SubmissionWindow = models.DefaultSubmissionWindow * time.Second
	}
	return &BookingService{
		repo:      repo,
		policy:    policy,
		state:     state,
		locker:    locker,
		eventBus:  eventBus,
		tasks:     tasks,
		validator: booking.NewValidator(opts.Clock, opts.Location),
		clock:     opts.Clock,
		opts:      opts,
		logger:    logger,
	}
}

// Submit validates req for the caller and stores it as a pending booking.
func (s *BookingService) Submit(ctx context.Context, p identity.Principal, req booking.Request) (*models.Booking, error) {
	req.RequesterID = p.UserID
	req.RequesterEmail = p.Email
	req.RequesterName = p.DisplayName()

	var existing []*models.Booking
	if venue, ok := models.ParseVenue(req.Venue); ok {
		if day, perr := models.ParseDate(req.Date); perr == nil {
			slot, err := s.repo.GetSlotBookings(ctx, venue, day.Format(models.DateLayout))
			if err != nil {
				metrics.IncSubmission(venue, "error")
				return nil, fmt.Errorf("failed to load existing bookings: %w", err)
			}
			existing = slot
		}
	}

	b, err := s.validator.Validate(req, existing)
	if err != nil {
		metrics.IncSubmission(venueLabel(req.Venue), string(booking.KindOf(err)))
		return nil, err
	}

	// only requests that pass validation spend the submission quota
	if s.state != nil {
		allowed, err := s.state.CheckRateLimit(ctx, "submit:"+p.UserID, s.opts.SubmissionLimit, s.opts.SubmissionWindow)
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", p.UserID).Msg("Submission rate limit check failed")
		} else if !allowed {
			metrics.IncSubmission(b.Venue, "rate_limited")
			return nil, ErrRateLimited
		}
	}

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, b.Venue, b.Date)
		if err != nil {
			metrics.IncSubmission(b.Venue, "error")
			return nil, fmt.Errorf("failed to lock slot: %w", err)
		}
		defer unlock()
	}

	if err := s.repo.CreateBookingWithLock(ctx, b); err != nil {
		if errors.Is(err, database.ErrNotAvailable) {
			metrics.IncSubmission(b.Venue, string(booking.KindVenueConflict))
			return nil, booking.ConflictError(b.FacilityName)
		}
		metrics.IncSubmission(b.Venue, "error")
		return nil, err
	}

	metrics.IncSubmission(b.Venue, "accepted")
	s.logger.Info().
		Str("booking_id", b.ID).
		Str("user_id", b.RequesterID).
		Str("venue", b.Venue).
		Str("date", b.Date).
		Msg("Booking request submitted")

	s.publishEvent(events.EventBookingCreated, b)
	s.enqueue(ctx, models.TaskSheetsUpsert, b, nil)

	return b, nil
}

// CheckAvailability runs the conflict detector for a prospective slot and
// returns the bookings it overlaps.
func (s *BookingService) CheckAvailability(ctx context.Context, venue, date, start, end string) ([]*models.Booking, error) {
	slot, err := booking.ParseSlot(venue, date, start, end)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetSlotBookings(ctx, slot.Venue, slot.Date)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing bookings: %w", err)
	}
	return booking.FindConflicts(slot.Venue, slot.Date, slot.Start, slot.End, existing), nil
}

// Decide approves or rejects a pending booking on behalf of an administrator.
func (s *BookingService) Decide(ctx context.Context, p identity.Principal, bookingID, decision, reason string) (*models.Booking, error) {
	if err := identity.RequireAdmin(ctx, s.policy, p); err != nil {
		return nil, err
	}

	current, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	decided, n, err := booking.ApplyDecision(current, decision, reason, p.UserID, s.clock())
	if err != nil {
		metrics.IncDecision(string(booking.KindOf(err)))
		return nil, err
	}

	if decided.Status == models.StatusApproved && s.opts.RecheckConflictsOnApprove {
		if err := s.recheck(ctx, decided); err != nil {
			metrics.IncDecision(string(booking.KindOf(err)))
			return nil, err
		}
	}

	if err := s.repo.DecideBooking(ctx, decided, n); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			metrics.IncDecision(string(booking.KindAlreadyDecided))
			return nil, s.alreadyDecided(ctx, bookingID)
		}
		return nil, err
	}

	metrics.IncDecision(decided.Status)
	s.logger.Info().
		Str("booking_id", decided.ID).
		Str("status", decided.Status).
		Str("decided_by", decided.DecidedBy).
		Msg("Booking decided")

	s.publishEvent(events.DecisionEventType(decided.Status), decided)
	s.enqueue(ctx, models.TaskNotify, decided, n)
	s.enqueue(ctx, models.TaskSheetsStatus, decided, nil)

	return decided, nil
}

func (s *BookingService) recheck(ctx context.Context, b *models.Booking) error {
	slot, err := s.repo.GetSlotBookings(ctx, b.Venue, b.Date)
	if err != nil {
		return fmt.Errorf("failed to load existing bookings: %w", err)
	}
	others := make([]*models.Booking, 0, len(slot))
	for _, e := range slot {
		if e.ID != b.ID {
			others = append(others, e)
		}
	}
	if booking.DetectConflict(b.Venue, b.Date, b.StartTime, b.EndTime, others) {
		return booking.ConflictError(b.FacilityName)
	}
	return nil
}

func (s *BookingService) alreadyDecided(ctx context.Context, id string) error {
	latest, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return booking.AlreadyDecidedError("decided")
	}
	return booking.AlreadyDecidedError(latest.Status)
}

// Get returns a booking to its requester or to an administrator.
func (s *BookingService) Get(ctx context.Context, p identity.Principal, id string) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.RequesterID == p.UserID {
		return b, nil
	}
	if err := identity.RequireAdmin(ctx, s.policy, p); err != nil {
		return nil, err
	}
	return b, nil
}

// ListMine returns the caller's bookings, newest first.
func (s *BookingService) ListMine(ctx context.Context, p identity.Principal, search string) ([]*models.Booking, error) {
	all, err := s.repo.GetUserBookings(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	out := booking.ApplyFilter(all, booking.Filter{Status: booking.StatusAll, Search: search}, booking.MatchesUserSearch)
	booking.SortByCreatedDesc(out)
	return out, nil
}

// ListAll returns every booking matching f, newest first. Admin only.
func (s *BookingService) ListAll(ctx context.Context, p identity.Principal, f booking.Filter) ([]*models.Booking, error) {
	if err := identity.RequireAdmin(ctx, s.policy, p); err != nil {
		return nil, err
	}
	all, err := s.repo.ListBookings(ctx)
	if err != nil {
		return nil, err
	}
	out := booking.ApplyFilter(all, f, booking.MatchesAdminSearch)
	booking.SortByCreatedDesc(out)
	return out, nil
}

// Stats counts bookings per status. Admin only.
func (s *BookingService) Stats(ctx context.Context, p identity.Principal) (map[string]int, error) {
	if err := identity.RequireAdmin(ctx, s.policy, p); err != nil {
		return nil, err
	}
	counts, err := s.repo.CountBookingsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	for _, status := range []string{models.StatusPending, models.StatusApproved, models.StatusRejected} {
		if _, ok := counts[status]; !ok {
			counts[status] = 0
		}
	}
	return counts, nil
}

// Export writes the ListAll result as an XLSX workbook. Admin only.
func (s *BookingService) Export(ctx context.Context, p identity.Principal, f booking.Filter, w io.Writer) error {
	bookings, err := s.ListAll(ctx, p, f)
	if err != nil {
		return err
	}
	return export.WriteBookings(w, bookings)
}

func (s *BookingService) Notifications(ctx context.Context, p identity.Principal, unreadOnly bool) ([]*models.Notification, error) {
	return s.repo.ListNotifications(ctx, p.UserID, unreadOnly)
}

func (s *BookingService) MarkNotificationRead(ctx context.Context, p identity.Principal, id string) error {
	return s.repo.MarkNotificationRead(ctx, id, p.UserID)
}

// venueLabel keeps metric labels to the known venues.
func venueLabel(raw string) string {
	if v, ok := models.ParseVenue(raw); ok {
		return v
	}
	return "unknown"
}

func (s *BookingService) publishEvent(eventType string, b *models.Booking) {
	if s.eventBus == nil {
		return
	}

	payload := events.NewBookingPayload(b, s.clock().UTC())
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", b.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueue(ctx context.Context, taskType string, b *models.Booking, payload any) {
	if s.tasks == nil {
		return
	}

	if err := s.tasks.EnqueueTask(ctx, taskType, b, payload); err != nil {
		s.logger.Error().Err(err).Str("booking_id", b.ID).Str("task", taskType).Msg("task enqueue error")
	}
}
