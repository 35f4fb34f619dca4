package account

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pelino250/safeboda/internal/auth"
	"github.com/pelino250/safeboda/internal/rider/domain"
)

// codeTTL matches the ten-minute window promised in the verification
// messages.
const codeTTL = 10 * time.Minute

// Service handles registration, verification and login.
type Service struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]Account
	byEmail  map[string]uuid.UUID
	byPhone  map[string]uuid.UUID
	codes    map[uuid.UUID][]VerificationCode
	notifier Notifier
	clock    domain.Clock
	logger   *zap.Logger

	jwtSecret string
	tokenTTL  time.Duration
}

// NewService constructs the account service.
func NewService(notifier Notifier, clock domain.Clock, logger *zap.Logger, jwtSecret string, tokenTTL time.Duration) *Service {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		byID:      make(map[uuid.UUID]Account),
		byEmail:   make(map[string]uuid.UUID),
		byPhone:   make(map[string]uuid.UUID),
		codes:     make(map[uuid.UUID][]VerificationCode),
		notifier:  notifier,
		clock:     clock,
		logger:    logger,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

// RegisterRequest carries the signup payload.
type RegisterRequest struct {
	Email       string
	PhoneNumber string
	FirstName   string
	LastName    string
	UserType    UserType
	Password    string
}

// Register creates an inactive account and sends phone and email
// verification codes.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Account, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	phone := strings.TrimSpace(req.PhoneNumber)
	if email == "" || phone == "" {
		return Account{}, fmt.Errorf("%w: email and phone are required", ErrInvalidCredentials)
	}
	if !req.UserType.Valid() {
		return Account{}, fmt.Errorf("unknown user type %q", req.UserType)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.clock.Now()
	acct := Account{
		ID:           uuid.New(),
		Email:        email,
		PhoneNumber:  phone,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		UserType:     req.UserType,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.mu.Lock()
	if _, taken := s.byEmail[email]; taken {
		s.mu.Unlock()
		return Account{}, ErrEmailTaken
	}
	if _, taken := s.byPhone[phone]; taken {
		s.mu.Unlock()
		return Account{}, ErrPhoneTaken
	}
	s.byID[acct.ID] = acct
	s.byEmail[email] = acct.ID
	s.byPhone[phone] = acct.ID
	phoneCode := s.issueCodeLocked(acct.ID, PurposePhone, now)
	emailCode := s.issueCodeLocked(acct.ID, PurposeEmail, now)
	s.mu.Unlock()

	if err := s.notifier.SendSMSCode(ctx, phone, phoneCode); err != nil {
		s.logger.Warn("sms code delivery failed", zap.String("phone_number", phone), zap.Error(err))
	}
	if err := s.notifier.SendEmailCode(ctx, email, emailCode); err != nil {
		s.logger.Warn("email code delivery failed", zap.String("email", email), zap.Error(err))
	}
	return acct, nil
}

// VerifyPhone redeems a phone OTP. The account activates once both channels
// are verified.
func (s *Service) VerifyPhone(_ context.Context, phoneNumber, code string) (Account, error) {
	return s.verify(s.byPhoneLookup(phoneNumber), PurposePhone, code)
}

// VerifyEmail redeems an email OTP.
func (s *Service) VerifyEmail(_ context.Context, email, code string) (Account, error) {
	return s.verify(s.byEmailLookup(email), PurposeEmail, code)
}

// Login checks credentials against an active account and issues a JWT whose
// role claim is the account's user type (or staff).
func (s *Service) Login(_ context.Context, email, password string) (string, Account, error) {
	s.mu.RLock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		s.mu.RUnlock()
		return "", Account{}, ErrInvalidCredentials
	}
	acct := s.byID[id]
	s.mu.RUnlock()

	if err := bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(password)); err != nil {
		return "", Account{}, ErrInvalidCredentials
	}
	if !acct.Active {
		return "", Account{}, ErrNotActive
	}

	role := string(acct.UserType)
	if acct.IsStaff {
		role = auth.RoleStaff
	}
	token, err := auth.IssueToken(s.jwtSecret, acct.ID.String(), role, s.tokenTTL)
	if err != nil {
		return "", Account{}, err
	}
	return token, acct, nil
}

// Get fetches an account by id.
func (s *Service) Get(_ context.Context, id uuid.UUID) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.byID[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acct, nil
}

// issueCodeLocked generates and records an OTP. Caller holds the write lock.
func (s *Service) issueCodeLocked(accountID uuid.UUID, purpose CodePurpose, now time.Time) string {
	code := generateOTP()
	s.codes[accountID] = append(s.codes[accountID], VerificationCode{
		AccountID: accountID,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: now.Add(codeTTL),
	})
	return code
}

func (s *Service) byPhoneLookup(phone string) func() (uuid.UUID, bool) {
	return func() (uuid.UUID, bool) {
		id, ok := s.byPhone[strings.TrimSpace(phone)]
		return id, ok
	}
}

func (s *Service) byEmailLookup(email string) func() (uuid.UUID, bool) {
	return func() (uuid.UUID, bool) {
		id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
		return id, ok
	}
}

func (s *Service) verify(lookup func() (uuid.UUID, bool), purpose CodePurpose, code string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := lookup()
	if !ok {
		return Account{}, ErrNotFound
	}
	acct := s.byID[id]
	now := s.clock.Now()

	// Redeem the newest matching code; older codes stay unusable once a
	// newer one was issued for the same purpose.
	codes := s.codes[id]
	matched := -1
	for i := len(codes) - 1; i >= 0; i-- {
		if codes[i].Purpose == purpose && codes[i].Code == code && !codes[i].Used {
			matched = i
			break
		}
	}
	if matched < 0 {
		return Account{}, ErrCodeInvalid
	}
	if !codes[matched].Usable(now) {
		return Account{}, ErrCodeExpired
	}
	codes[matched].Used = true

	switch purpose {
	case PurposePhone:
		acct.PhoneVerified = true
	case PurposeEmail:
		acct.EmailVerified = true
	}
	if acct.PhoneVerified && acct.EmailVerified {
		acct.Active = true
	}
	acct.UpdatedAt = now
	s.byID[id] = acct
	return acct, nil
}
