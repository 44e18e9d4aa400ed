package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"odanna-bot/internal/domain"
	"odanna-bot/internal/domain/model"
	"odanna-bot/internal/domain/ports/repository"
	"odanna-bot/internal/infra/logging"
	"odanna-bot/internal/infra/metrics"
)

// Compile-time check
var _ UserUseCase = (*userUC)(nil)

// UserUseCase exposes user-related operations used by bot/admin flows.
type UserUseCase interface {
	RegisterOrFetch(ctx context.Context, tgID int64, username, firstName string) (*model.User, error)
	Get(ctx context.Context, tgID int64) (*model.User, error)
	SetGender(ctx context.Context, tgID int64, g model.Gender) (*model.User, error)
}

type userUC struct {
	users repository.UserRepository
	tm    repository.TransactionManager
	log   *zerolog.Logger
}

func NewUserUseCase(users repository.UserRepository, tm repository.TransactionManager, logger *zerolog.Logger) *userUC {
	return &userUC{
		users: users,
		tm:    tm,
		log:   logger,
	}
}

// RegisterOrFetch creates the user on first contact and refreshes the
// profile fields and activity time afterwards. Gender and the current chat
// survive a refresh.
func (u *userUC) RegisterOrFetch(ctx context.Context, tgID int64, username, firstName string) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.RegisterOrFetch")()

	var user *model.User
	created := false
	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		existing, err := u.users.FindByID(ctx, tx, tgID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			created = true
			existing = model.NewUser(tgID, username, firstName)
		case err != nil:
			return err
		default:
			if username != "" {
				existing.Username = username
			}
			if firstName != "" {
				existing.FirstName = firstName
			}
			existing.LastActiveAt = time.Now()
		}
		if err := u.users.Upsert(ctx, tx, existing); err != nil {
			return err
		}
		user = existing
		return nil
	})
	if err != nil {
		logging.With(logging.WithTgID(ctx, tgID), u.log).Error().Err(err).Msg("register user failed")
		return nil, err
	}
	if created {
		metrics.IncUsersRegistered()
		logging.With(logging.WithTgID(ctx, tgID), u.log).Info().Msg("user registered")
	}
	return user, nil
}

func (u *userUC) Get(ctx context.Context, tgID int64) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.Get")()
	return u.users.FindByID(ctx, repository.NoTX, tgID)
}

func (u *userUC) SetGender(ctx context.Context, tgID int64, g model.Gender) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.SetGender")()

	if g != model.GenderMale && g != model.GenderFemale && g != model.GenderUnknown {
		return nil, domain.ErrInvalidArgument
	}
	if err := u.users.SetGender(ctx, repository.NoTX, tgID, g); err != nil {
		return nil, err
	}
	return u.users.FindByID(ctx, repository.NoTX, tgID)
}
