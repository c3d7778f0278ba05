package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/diagnosis/photo-challenges/internal/domain"
	"github.com/diagnosis/photo-challenges/internal/notify"
	"github.com/diagnosis/photo-challenges/pkg/config"
	"github.com/diagnosis/photo-challenges/pkg/events"
	"github.com/diagnosis/photo-challenges/pkg/logger"
	"github.com/google/uuid"
)

type ChallengeService interface {
	Create(ctx context.Context, req domain.CreateChallengeReq) (*domain.Challenge, error)
	View(ctx context.Context, link string) (*domain.Challenge, error)
	Decide(ctx context.Context, link string, req domain.DecisionReq) (*DecisionResult, error)
	Get(ctx context.Context, id int64) (*domain.Challenge, error)
	List(ctx context.Context, f domain.ChallengeFilter) ([]domain.Challenge, error)
	AdminUpdate(ctx context.Context, id int64, patch domain.AdminPatch) (*AdminUpdateResult, error)
	Timeline(ctx context.Context, id int64) ([]domain.TimelineEvent, error)
}

type DecisionResult struct {
	Message   string            `json:"message"`
	Token     string            `json:"token,omitempty"`
	Challenge *domain.Challenge `json:"challenge,omitempty"`
}

type AdminUpdateResult struct {
	Challenge      *domain.Challenge `json:"challenge"`
	Booking        *domain.Booking   `json:"booking,omitempty"`
	BookingCreated bool              `json:"booking_created"`
}

type Deps struct {
	Tx         Transactor
	Challenges ChallengeStore
	Accounts   AccountStore
	Bookings   BookingStore
	Catalog    CatalogStore
	Timeline   Timeline
	Notifier   Notifier
	Tokens     TokenIssuer
	Events     Publisher
	Identity   *Identity
	Config     config.ChallengeConfig
	Now        func() time.Time
}

type challengeService struct {
	tx           Transactor
	challenges   ChallengeStore
	catalog      CatalogStore
	timeline     Timeline
	notifier     Notifier
	tokens       TokenIssuer
	events       Publisher
	identity     *Identity
	materializer *Materializer
	cfg          config.ChallengeConfig
	now          func() time.Time
}

func NewChallengeService(d Deps) ChallengeService {
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.Identity == nil {
		d.Identity = NewIdentity(d.Accounts, nil)
	}
	return &challengeService{
		tx:           d.Tx,
		challenges:   d.Challenges,
		catalog:      d.Catalog,
		timeline:     d.Timeline,
		notifier:     d.Notifier,
		tokens:       d.Tokens,
		events:       d.Events,
		identity:     d.Identity,
		materializer: NewMaterializer(d.Bookings, d.Timeline, d.Config.SessionLength),
		cfg:          d.Config,
		now:          d.Now,
	}
}

// afterCommit collects side effects that must only run once the transaction
// has committed.
type afterCommit []func()

func (a *afterCommit) add(fn func()) { *a = append(*a, fn) }

func (a afterCommit) run() {
	for _, fn := range a {
		fn()
	}
}

func (s *challengeService) Create(ctx context.Context, req domain.CreateChallengeReq) (*domain.Challenge, error) {
	now := s.now()
	req.Normalize()
	if err := req.Validate(now); err != nil {
		return nil, err
	}
	deadline := now.Add(s.cfg.DefaultDeadline)
	if req.AcceptanceDeadline != nil {
		deadline = req.AcceptanceDeadline.UTC()
	}

	var (
		created     *domain.Challenge
		packageName string
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		pkg, err := s.catalog.GetPackage(ctx, req.PackageID)
		if err != nil {
			return fmt.Errorf("load package: %w", err)
		}
		if pkg == nil || !pkg.Active {
			return fmt.Errorf("%w: package %d is not available", domain.ErrValidation, req.PackageID)
		}
		if req.LocationID != nil {
			loc, err := s.catalog.GetLocation(ctx, *req.LocationID)
			if err != nil {
				return fmt.Errorf("load location: %w", err)
			}
			if loc == nil {
				return fmt.Errorf("%w: unknown location %d", domain.ErrValidation, *req.LocationID)
			}
		}

		packageName = pkg.Name
		amount, pct := pkg.ChallengeDiscount()
		created, err = s.challenges.Create(ctx, &domain.Challenge{
			UniqueLink:         uuid.NewString(),
			InviterName:        req.InviterName,
			InviterContact:     req.InviterContact,
			InviterContactType: req.InviterContactType,
			InviteeName:        req.InviteeName,
			InviteeContact:     req.InviteeContact,
			InviteeContactType: req.InviteeContactType,
			PackageID:          pkg.ID,
			LocationID:         req.LocationID,
			CustomLocation:     req.CustomLocation,
			DiscountAmount:     amount,
			DiscountPercentage: pct,
			PreferredDates:     req.PreferredDates,
			AcceptanceDeadline: deadline,
		})
		if err != nil {
			return fmt.Errorf("create challenge: %w", err)
		}
		return s.timeline.Append(ctx, created.ID, domain.EventCreated,
			fmt.Sprintf("Challenge sent by %s to %s", created.InviterName, created.InviteeName), nil)
	})
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Challenge created", "challenge_id", created.ID)
	s.notifier.Send(ctx, notify.Message{
		Template:  notify.TemplateChallengeInvitation,
		Recipient: created.InviteeEmail(),
		Name:      created.InviteeName,
		Data: map[string]any{
			"inviter_name": created.InviterName,
			"package_name": packageName,
			"deadline":     created.AcceptanceDeadline.Format(time.RFC3339),
			"link":         s.challengeURL(created.UniqueLink),
		},
	})
	s.publish(ctx, events.ChallengeCreated, created)
	return created, nil
}

// View returns the challenge behind link, marking it viewed on first read
// and expiring it when the deadline passed while it was still open.
func (s *challengeService) View(ctx context.Context, link string) (*domain.Challenge, error) {
	var (
		c     *domain.Challenge
		after afterCommit
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		after = nil
		var err error
		if c, err = s.loadByLink(ctx, link); err != nil {
			return err
		}
		now := s.now()

		if c.Status == domain.ChallengeSent && c.ViewedAt == nil {
			ok, err := s.challenges.MarkViewed(ctx, c.ID, now)
			if err != nil {
				return fmt.Errorf("mark viewed: %w", err)
			}
			if ok {
				c.Status, c.ViewedAt = domain.ChallengeViewed, &now
				if err := s.timeline.Append(ctx, c.ID, domain.EventViewed, "Challenge viewed by invitee", nil); err != nil {
					return err
				}
				viewed := *c
				after.add(func() { s.publish(ctx, events.ChallengeViewed, &viewed) })
			}
		}

		expired, err := s.expireIfDue(ctx, c, now)
		if err != nil {
			return err
		}
		if expired {
			snapshot := *c
			after.add(func() { s.publish(ctx, events.ChallengeExpired, &snapshot) })
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	after.run()
	return c, nil
}

// expireIfDue moves an open challenge past its deadline to expired.
func (s *challengeService) expireIfDue(ctx context.Context, c *domain.Challenge, now time.Time) (bool, error) {
	if !c.Status.IsOpen() || !c.DeadlinePassed(now) {
		return false, nil
	}
	ok, err := s.challenges.Expire(ctx, c.ID)
	if err != nil {
		return false, fmt.Errorf("expire challenge: %w", err)
	}
	if !ok {
		return false, nil
	}
	c.Status = domain.ChallengeExpired
	if err := s.timeline.Append(ctx, c.ID, domain.EventExpired,
		fmt.Sprintf("Acceptance deadline %s passed", c.AcceptanceDeadline.Format(time.RFC3339)), nil); err != nil {
		return false, err
	}
	logger.InfoContext(ctx, "Challenge expired", "challenge_id", c.ID)
	return true, nil
}

func (s *challengeService) Decide(ctx context.Context, link string, req domain.DecisionReq) (*DecisionResult, error) {
	req.Action = domain.DecisionAction(strings.ToLower(strings.TrimSpace(string(req.Action))))
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		sessionDate time.Time
		creds       *Credentials
		err         error
	)
	if req.Action == domain.ActionAccept {
		if sessionDate, err = domain.ParseSessionDate(req.SelectedDate); err != nil {
			return nil, err
		}
		if creds, err = s.identity.Prepare(req.AuthRequest); err != nil {
			return nil, err
		}
	}

	var (
		c       *domain.Challenge
		result  *DecisionResult
		expired bool
		after   afterCommit
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		after, expired = nil, false
		var err error
		if c, err = s.loadByLink(ctx, link); err != nil {
			return err
		}
		now := s.now()

		// the expiry must commit even though the decision is refused
		if expired, err = s.expireIfDue(ctx, c, now); err != nil || expired {
			return err
		}
		if !c.Status.IsOpen() {
			return fmt.Errorf("%w: challenge already %s", domain.ErrConflict, c.Status)
		}

		if req.Action == domain.ActionReject {
			result, err = s.reject(ctx, c, now, &after)
		} else {
			result, err = s.accept(ctx, c, creds, sessionDate, now, &after)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if expired {
		snapshot := *c
		s.publish(ctx, events.ChallengeExpired, &snapshot)
		return nil, fmt.Errorf("%w: challenge expired", domain.ErrConflict)
	}
	after.run()
	return result, nil
}

func (s *challengeService) reject(ctx context.Context, c *domain.Challenge, now time.Time, after *afterCommit) (*DecisionResult, error) {
	ok, err := s.challenges.Reject(ctx, c.ID, now)
	if err != nil {
		return nil, fmt.Errorf("reject challenge: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: challenge already decided", domain.ErrConflict)
	}
	c.Status, c.RejectedAt = domain.ChallengeRejected, &now
	if err := s.timeline.Append(ctx, c.ID, domain.EventRejected, "Challenge rejected by invitee", nil); err != nil {
		return nil, err
	}

	snapshot := *c
	after.add(func() {
		logger.InfoContext(ctx, "Challenge rejected", "challenge_id", snapshot.ID)
		s.publish(ctx, events.ChallengeRejected, &snapshot)
	})
	return &DecisionResult{Message: "Challenge rejected", Challenge: c}, nil
}

func (s *challengeService) accept(ctx context.Context, c *domain.Challenge, creds *Credentials, sessionDate, now time.Time, after *afterCommit) (*DecisionResult, error) {
	if len(c.PreferredDates) > 0 && !c.OffersDate(sessionDate) {
		return nil, fmt.Errorf("%w: selected_date is not one of the preferred dates", domain.ErrValidation)
	}

	account, err := s.identity.Resolve(ctx, creds)
	if err != nil {
		return nil, err
	}

	ok, err := s.challenges.Accept(ctx, c.ID, domain.AcceptParams{
		AcceptedAt:    now,
		InviteeUserID: account.ID,
		SessionDate:   sessionDate,
	})
	if err != nil {
		return nil, fmt.Errorf("accept challenge: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: challenge already decided", domain.ErrConflict)
	}
	c.Status, c.AcceptedAt, c.SessionDate, c.InviteeUserID = domain.ChallengeAccepted, &now, &sessionDate, &account.ID

	if err := s.timeline.Append(ctx, c.ID, domain.EventAccepted,
		fmt.Sprintf("Challenge accepted for %s", sessionDate.Format("2006-01-02 15:04")),
		map[string]any{"session_date": sessionDate.Format(time.RFC3339), "invitee_user_id": account.ID},
	); err != nil {
		return nil, err
	}

	token, err := s.tokens.IssueInviteeToken(account.ID, account.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: issue token: %v", domain.ErrExternalService, err)
	}

	snapshot := *c
	after.add(func() {
		logger.InfoContext(ctx, "Challenge accepted", "challenge_id", snapshot.ID, "invitee_user_id", account.ID)
		s.notifier.Send(ctx, notify.Message{
			Template:  notify.TemplateChallengeAccepted,
			Recipient: snapshot.InviterEmail(),
			Name:      snapshot.InviterName,
			Data: map[string]any{
				"invitee_name": snapshot.InviteeName,
				"session_date": sessionDate.Format("2006-01-02 15:04"),
			},
		})
		s.publish(ctx, events.ChallengeAccepted, &snapshot)
	})
	return &DecisionResult{Message: "Challenge accepted", Token: token, Challenge: c}, nil
}

func (s *challengeService) Get(ctx context.Context, id int64) (*domain.Challenge, error) {
	c, err := s.challenges.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: challenge %d", domain.ErrNotFound, id)
	}
	return c, nil
}

func (s *challengeService) List(ctx context.Context, f domain.ChallengeFilter) ([]domain.Challenge, error) {
	return s.challenges.List(ctx, f)
}

// AdminUpdate writes the supplied fields without transition checks. A
// scheduled challenge with a session date gets its booking in the same
// transaction.
func (s *challengeService) AdminUpdate(ctx context.Context, id int64, patch domain.AdminPatch) (*AdminUpdateResult, error) {
	if patch.IsEmpty() {
		return nil, fmt.Errorf("%w: nothing to update", domain.ErrValidation)
	}

	var (
		res   *AdminUpdateResult
		after afterCommit
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		after = nil
		before, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if _, err := s.challenges.AdminUpdate(ctx, id, patch); err != nil {
			return fmt.Errorf("update challenge: %w", err)
		}
		if patch.Status != nil {
			if err := s.timeline.Append(ctx, id, domain.StatusEventType(*patch.Status),
				fmt.Sprintf("Status changed from %s to %s by admin", before.Status, *patch.Status), nil); err != nil {
				return err
			}
		}

		c, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		res = &AdminUpdateResult{Challenge: c}

		if patch.SessionDate != nil && c.Status == domain.ChallengeScheduled {
			b, created, err := s.materializer.Materialize(ctx, c)
			if err != nil {
				return err
			}
			res.Booking, res.BookingCreated = b, created
			if created {
				after.add(func() { s.bookingCreated(ctx, c, b) })
			}
		}
		if patch.Status != nil {
			after.add(func() { s.publish(ctx, events.ChallengeUpdated, c) })
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Challenge updated by admin", "challenge_id", id, "booking_created", res.BookingCreated)
	after.run()
	return res, nil
}

func (s *challengeService) bookingCreated(ctx context.Context, c *domain.Challenge, b *domain.Booking) {
	s.notifier.Send(ctx, notify.Message{
		Template:  notify.TemplateChallengeScheduled,
		Recipient: b.ClientEmail,
		Name:      b.ClientName,
		Data: map[string]any{
			"package_name": b.PackageName,
			"session_date": b.StartsAt.Format("2006-01-02 15:04"),
			"location":     c.LocationLabel(),
		},
	})
	if err := s.events.Publish(ctx, events.BookingCreated, events.BookingCreatedEvent{
		BookingID:   b.ID,
		ChallengeID: c.ID,
		ClientEmail: b.ClientEmail,
		ClientName:  b.ClientName,
		PackageName: b.PackageName,
		Price:       b.Price.String(),
		StartsAt:    b.StartsAt,
		CreatedAt:   b.CreatedAt,
	}); err != nil {
		logger.ErrorContext(ctx, "Failed to publish booking created event", "error", err, "booking_id", b.ID)
	}
}

func (s *challengeService) Timeline(ctx context.Context, id int64) ([]domain.TimelineEvent, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.timeline.List(ctx, id)
}

func (s *challengeService) loadByLink(ctx context.Context, link string) (*domain.Challenge, error) {
	c, err := s.challenges.GetByLink(ctx, strings.TrimSpace(link))
	if err != nil {
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: challenge not found", domain.ErrNotFound)
	}
	return c, nil
}

func (s *challengeService) challengeURL(link string) string {
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/challenge/" + link
}

func (s *challengeService) publish(ctx context.Context, subject string, c *domain.Challenge) {
	if err := s.events.Publish(ctx, subject, events.ChallengeEvent{
		ChallengeID: c.ID,
		UniqueLink:  c.UniqueLink,
		Status:      string(c.Status),
		SessionDate: c.SessionDate,
		OccurredAt:  s.now(),
	}); err != nil {
		logger.ErrorContext(ctx, "Failed to publish challenge event", "error", err, "subject", subject, "challenge_id", c.ID)
	}
}
