package handlers

import (
	"time"

	"github.com/pribylovaa/account-service/internal/models"
	"github.com/pribylovaa/account-service/internal/service"
)

type authenticateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

// authResponse: проекция аккаунта и access-токен. Refresh-токен
// передаётся только в HttpOnly-cookie.
type authResponse struct {
	models.AccountView
	JWTToken         string    `json:"jwtToken"`
	JWTExpiresAt     time.Time `json:"jwtExpires"`
	RefreshExpiresAt time.Time `json:"refreshExpires"`
}

func authFromResult(res *models.AuthResult) authResponse {
	return authResponse{
		AccountView:      res.Account,
		JWTToken:         res.AccessToken,
		JWTExpiresAt:     res.AccessExpiresAt,
		RefreshExpiresAt: res.RefreshExpiresAt,
	}
}

type registerRequest struct {
	Title           string `json:"title"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	AcceptTerms     bool   `json:"acceptTerms"`
}

func (r registerRequest) toInput() service.RegisterInput {
	return service.RegisterInput{
		Title:           r.Title,
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		Email:           r.Email,
		Password:        r.Password,
		ConfirmPassword: r.ConfirmPassword,
		AcceptTerms:     r.AcceptTerms,
	}
}

type createRequest struct {
	Title           string      `json:"title"`
	FirstName       string      `json:"firstName"`
	LastName        string      `json:"lastName"`
	Email           string      `json:"email"`
	Password        string      `json:"password"`
	ConfirmPassword string      `json:"confirmPassword"`
	Role            models.Role `json:"role"`
}

func (r createRequest) toInput() service.CreateInput {
	return service.CreateInput{
		Title:           r.Title,
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		Email:           r.Email,
		Password:        r.Password,
		ConfirmPassword: r.ConfirmPassword,
		Role:            r.Role,
	}
}

type updateRequest struct {
	Title           string      `json:"title"`
	FirstName       string      `json:"firstName"`
	LastName        string      `json:"lastName"`
	Email           string      `json:"email"`
	Password        string      `json:"password"`
	ConfirmPassword string      `json:"confirmPassword"`
	Role            models.Role `json:"role"`
}

func (r updateRequest) toInput() service.UpdateInput {
	return service.UpdateInput{
		Title:           r.Title,
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		Email:           r.Email,
		Password:        r.Password,
		ConfirmPassword: r.ConfirmPassword,
		Role:            r.Role,
	}
}
