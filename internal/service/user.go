package service

import (
	"context"
	"time"

	v1 "scansync/api/v1"
	"scansync/internal/model"
	"scansync/internal/repository"
	"scansync/pkg/log"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type UserService interface {
	Register(ctx context.Context, req *v1.RegisterRequest) error
	Login(ctx context.Context, req *v1.LoginRequest) (string, error)
	GetProfile(ctx context.Context, userId string) (*v1.GetProfileResponseData, error)
}

func NewUserService(
	service *Service,
	userRepo repository.UserRepository,
	logger *log.Logger,
) UserService {
	return &userService{
		userRepo: userRepo,
		Service:  service,
		logger:   logger,
	}
}

type userService struct {
	userRepo repository.UserRepository
	*Service
	logger *log.Logger
}

func (s *userService) Register(ctx context.Context, req *v1.RegisterRequest) error {
	existing, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		s.logger.WithContext(ctx).Error("failed to check username", zap.Error(err))
		return v1.ErrInternalServerError
	}
	if existing != nil {
		return v1.ErrUsernameAlreadyUse
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	userId, err := s.sid.GenString()
	if err != nil {
		return err
	}

	user := &model.User{
		UserId:   userId,
		Username: req.Username,
		Password: string(hashed),
	}
	return s.tm.Transaction(ctx, func(ctx context.Context) error {
		return s.userRepo.Create(ctx, user)
	})
}

func (s *userService) Login(ctx context.Context, req *v1.LoginRequest) (string, error) {
	user, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil || user == nil {
		return "", v1.ErrUnauthorized
	}
	if err = bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return "", v1.ErrUnauthorized
	}

	token, err := s.jwt.GenToken(user.UserId, time.Now().Add(time.Hour*24*90))
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *userService) GetProfile(ctx context.Context, userId string) (*v1.GetProfileResponseData, error) {
	user, err := s.userRepo.GetByID(ctx, userId)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, v1.ErrNotFound
	}
	return &v1.GetProfileResponseData{
		UserId:   user.UserId,
		Username: user.Username,
	}, nil
}
