package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dtroode/membership-server/internal/model"
)

// ChangeChannel is the notification channel fed by the registrations insert trigger.
const ChangeChannel = "registrations_changed"

var _ model.RegistrationStore = (*RegistrationRepository)(nil)

type RegistrationRepository struct {
	db       *Connection
	accounts model.AccountStore
}

// NewRegistrationRepository creates a repository. Subscription access is granted
// to identities whose account in accounts can read registrations.
func NewRegistrationRepository(db *Connection, accounts model.AccountStore) *RegistrationRepository {
	return &RegistrationRepository{
		db:       db,
		accounts: accounts,
	}
}

func (r *RegistrationRepository) Create(ctx context.Context, registration model.Registration) (model.Registration, error) {
	if registration.ID == uuid.Nil {
		registration.ID = uuid.New()
	}

	query := `INSERT INTO registrations (id, full_name, cnie, phone, email, region, province, city, profession, uid, user_agent)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			  RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		registration.ID, registration.FullName, registration.CNIE, registration.Phone, registration.Email,
		registration.Region, registration.Province, registration.City, registration.Profession,
		registration.UID, registration.UserAgent,
	).Scan(&registration.CreatedAt)
	if err != nil {
		return model.Registration{}, fmt.Errorf("failed to create registration: %w", err)
	}

	return registration, nil
}

// List returns registrations newest first, at most limit rows when limit is positive.
func (r *RegistrationRepository) List(ctx context.Context, limit int) ([]model.Registration, error) {
	var lim *int64
	if limit > 0 {
		l := int64(limit)
		lim = &l
	}

	query := `SELECT id, full_name, cnie, phone, email, region, province, city, profession, uid, user_agent, created_at
			  FROM registrations
			  ORDER BY created_at DESC, id DESC
			  LIMIT $1`

	rows, err := r.db.Query(ctx, query, lim)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer rows.Close()

	registrations := make([]model.Registration, 0)
	for rows.Next() {
		var reg model.Registration
		err := rows.Scan(
			&reg.ID, &reg.FullName, &reg.CNIE, &reg.Phone, &reg.Email,
			&reg.Region, &reg.Province, &reg.City, &reg.Profession,
			&reg.UID, &reg.UserAgent, &reg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		registrations = append(registrations, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate registrations: %w", err)
	}

	return registrations, nil
}

// Subscribe opens a live query. The first snapshot is sent immediately and a new
// one after every insert notification.
func (r *RegistrationRepository) Subscribe(ctx context.Context, identity model.Identity, query model.Query) (model.Subscription, error) {
	if err := model.AuthorizeRegistrations(ctx, r.accounts, identity); err != nil {
		return nil, err
	}

	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen for changes: %w", err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		snapshots: make(chan []model.Registration, 1),
		errs:      make(chan error, 1),
		cancel:    cancel,
		done:      make(chan struct{}),
		conn:      conn,
	}
	go sub.run(subCtx, func(ctx context.Context) ([]model.Registration, error) {
		return r.List(ctx, query.Limit)
	})

	return sub, nil
}

type subscription struct {
	snapshots chan []model.Registration
	errs      chan error
	cancel    context.CancelFunc
	done      chan struct{}
	conn      *pgxpool.Conn
	closeOnce sync.Once
}

func (s *subscription) Snapshots() <-chan []model.Registration { return s.snapshots }

func (s *subscription) Errors() <-chan error { return s.errs }

func (s *subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done

		// A wait interrupted by cancellation closes the underlying connection.
		if !s.conn.Conn().IsClosed() {
			_, err = s.conn.Exec(context.Background(), "UNLISTEN "+ChangeChannel)
		}
		s.conn.Release()
	})
	if err != nil {
		return fmt.Errorf("failed to stop listening: %w", err)
	}
	return nil
}

func (s *subscription) run(ctx context.Context, load func(context.Context) ([]model.Registration, error)) {
	defer close(s.done)

	for {
		records, err := load(ctx)
		if err != nil {
			s.fail(ctx, err)
			return
		}
		s.publish(records)

		if _, err := s.conn.Conn().WaitForNotification(ctx); err != nil {
			s.fail(ctx, err)
			return
		}
	}
}

// publish replaces an unread snapshot so readers always see the latest one.
func (s *subscription) publish(records []model.Registration) {
	select {
	case <-s.snapshots:
	default:
	}
	s.snapshots <- records
}

func (s *subscription) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	s.errs <- fmt.Errorf("registrations subscription: %w", err)
}
