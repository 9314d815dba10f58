package models

import "time"

// Role: роль учётной записи.
type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
)

// Valid сообщает, является ли роль одной из известных.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Account: учётная запись со всеми принадлежащими ей refresh-токенами.
//
// Инварианты:
//   - Email уникален в хранилище (регистрозависимо);
//   - RefreshTokens упорядочены по времени выпуска и не существуют вне аккаунта;
//   - Version принадлежит хранилищу и растёт на каждом успешном UpdateAccount.
type Account struct {
	ID           int64
	Title        string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Role         Role
	AcceptTerms  bool
	CreatedAt    time.Time
	UpdatedAt    *time.Time
	Version      int64

	RefreshTokens []RefreshToken
}

// RefreshToken возвращает указатель на токен аккаунта с данным значением
// или nil, если токен аккаунту не принадлежит.
func (a *Account) RefreshToken(token string) *RefreshToken {
	for i := range a.RefreshTokens {
		if a.RefreshTokens[i].Token == token {
			return &a.RefreshTokens[i]
		}
	}

	return nil
}

// OwnsToken сообщает, принадлежит ли refresh-токен этому аккаунту.
func (a *Account) OwnsToken(token string) bool {
	return token != "" && a.RefreshToken(token) != nil
}

// IsAdmin: сокращение для проверки роли Admin.
func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Clone возвращает глубокую копию аккаунта.
// Хранилища отдают наружу только копии, чтобы изменения вне UpdateAccount
// не затрагивали сохранённое состояние.
func (a *Account) Clone() *Account {
	c := *a
	if a.UpdatedAt != nil {
		u := *a.UpdatedAt
		c.UpdatedAt = &u
	}

	c.RefreshTokens = make([]RefreshToken, len(a.RefreshTokens))
	for i, t := range a.RefreshTokens {
		c.RefreshTokens[i] = t.clone()
	}

	return &c
}

// AccountView: безопасная проекция аккаунта для ответа клиенту:
// без хэша пароля и без refresh-токенов.
type AccountView struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Email     string     `json:"email"`
	Role      Role       `json:"role"`
	Created   time.Time  `json:"created"`
	Updated   *time.Time `json:"updated,omitempty"`
}

// View строит AccountView.
func (a *Account) View() AccountView {
	return AccountView{
		ID:        a.ID,
		Title:     a.Title,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Email:     a.Email,
		Role:      a.Role,
		Created:   a.CreatedAt,
		Updated:   a.UpdatedAt,
	}
}
