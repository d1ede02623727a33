package domain

// Session representa una sesión del lado servidor asociada a una cuenta.
type Session struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	LoggedIn bool   `json:"logged_in"`
}
