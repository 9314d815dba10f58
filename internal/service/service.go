// service содержит бизнес-логику account-сервиса:
// аутентификацию, выпуск и ротацию токенов, отзыв, авторизацию
// по ролям и владению, а также операции над аккаунтами.
//
// Основные аспекты:
//   - Service не хранит состояние запроса; экземпляр безопасен для
//     конкурентного использования при потокобезопасном storage.Storage.
//   - Атомарность read-modify-write обеспечивает хранилище (CAS по
//     Account.Version); при конфликте операция ждёт, перечитывает аккаунт
//     и повторяет запись, пока не истечёт контекст.
//   - Ошибки возвращаются как sentinel-значения ниже и маппятся
//     транспортом на HTTP-статусы.
package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pribylovaa/account-service/internal/cache"
	"github.com/pribylovaa/account-service/internal/config"
	"github.com/pribylovaa/account-service/internal/storage"
)

var (
	// ErrInvalidCredentials: email не найден или пароль неверен (одна ошибка на оба случая).
	// Транспорт: HTTP 401.
	ErrInvalidCredentials = errors.New("email or password is incorrect")

	// ErrInvalidToken: refresh-токен пуст, неизвестен, истёк или отозван.
	// Причина не раскрывается. Транспорт: HTTP 400.
	ErrInvalidToken = errors.New("invalid token")

	// ErrEmailTaken: email уже занят другим аккаунтом. Транспорт: HTTP 409.
	ErrEmailTaken = errors.New("email already taken")

	// ErrNotFound: аккаунт с таким ID не существует. Транспорт: HTTP 404.
	ErrNotFound = errors.New("account not found")

	// ErrUnauthenticated: нет валидного access-токена или его аккаунт удалён.
	// Транспорт: HTTP 401.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden: личность установлена, но роли или владения недостаточно.
	// Транспорт: HTTP 403.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidArgument: входные данные не прошли валидацию. Транспорт: HTTP 400.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrRefreshTokenCollision: исчерпаны попытки сохранить уникальный refresh-токен.
	// Транспорт: HTTP 500.
	ErrRefreshTokenCollision = errors.New("refresh token collision")
)

// maxCollisionAttempts: число попыток выпустить уникальный refresh-токен.
// Конфликты версии ограничены не числом попыток, а контекстом запроса.
const maxCollisionAttempts = 3

// Задержка перед повтором после конфликта версии: растёт от
// retryBaseDelay до retryMaxDelay, со случайным разбросом.
const (
	retryBaseDelay = time.Millisecond
	retryMaxDelay  = 50 * time.Millisecond
)

// События аутентификации для метрик.
const (
	EventAuthenticateOK   = "authenticate_ok"
	EventAuthenticateFail = "authenticate_fail"
	EventRotateOK         = "rotate_ok"
	EventRotateFail       = "rotate_fail"
	EventRevokeOK         = "revoke_ok"
	EventRevokeFail       = "revoke_fail"
)

// EventRecorder принимает события аутентификации (реализуется пакетом metrics).
type EventRecorder interface {
	AuthEvent(event string)
}

type noopRecorder struct{}

func (noopRecorder) AuthEvent(string) {}

// Service описывает бизнес-логику account-сервиса.
type Service struct {
	storage storage.Storage
	cfg     config.AuthConfig
	hasher  PasswordHasher
	events  EventRecorder
	rcache  cache.RefreshCache // может быть nil, если кэш не сконфигурирован
	now     func() time.Time

	// registerMu сериализует регистрацию: проверка "первый аккаунт" и
	// вставка должны выполняться без гонки между запросами процесса.
	registerMu sync.Mutex

	dummyOnce sync.Once
	dummyHash string
}

// Option настраивает Service.
type Option func(*Service)

// WithHasher подменяет хэшер паролей.
func WithHasher(h PasswordHasher) Option {
	return func(s *Service) { s.hasher = h }
}

// WithEvents подключает получателя событий аутентификации.
func WithEvents(r EventRecorder) Option {
	return func(s *Service) { s.events = r }
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New создаёт новый экземпляр Service.
func New(storage storage.Storage, cfg config.AuthConfig, opts ...Option) *Service {
	s := &Service{
		storage: storage,
		cfg:     cfg,
		hasher:  NewBcryptHasher(cfg.BcryptCost),
		events:  noopRecorder{},
		now:     func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SetRefreshCache устанавливает кэш refresh-токенов (опционально).
func (s *Service) SetRefreshCache(c cache.RefreshCache) {
	s.rcache = c
}

// dummy возвращает хэш, с которым сравнивается пароль неизвестного email,
// чтобы время ответа не выдавало существование аккаунта.
func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("account-service-dummy-password")
		if err == nil {
			s.dummyHash = h
		}
	})

	return s.dummyHash
}

// waitRetry выдерживает паузу перед попыткой attempt+1 после конфликта версии.
// Возвращает ошибку контекста, если тот завершился раньше.
func waitRetry(ctx context.Context, attempt int) error {
	d := retryBaseDelay << min(attempt, 6)
	if d > retryMaxDelay {
		d = retryMaxDelay
	}
	d = d/2 + rand.N(d/2+1)

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
