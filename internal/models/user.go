package models

// User is the stored account row. PasswordHash never crosses the wire.
type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
}

// Principal is the authenticated identity attached to a live connection.
// It is resolved once during the websocket handshake and used for every
// authorization check afterwards.
type Principal struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

func (u *User) Principal() Principal {
	return Principal{ID: u.ID, Username: u.Username}
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=30"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	CSRFToken    string `json:"csrf_token"`
	TokenType    string `json:"token_type"`
}
