package dto

type RegisterDTO struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required,min=3,max=50,username"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

type LoginDTO struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RefreshTokenDTO is the body of both /refresh and /logout.
type RefreshTokenDTO struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// UpdateProfileDTO has only optional pointer fields.
type UpdateProfileDTO struct {
	Username        *string `json:"username" binding:"omitempty,min=3,max=50,username"`
	Email           *string `json:"email" binding:"omitempty,email"`
	CurrentPassword *string `json:"current_password"`
	NewPassword     *string `json:"new_password" binding:"omitempty,min=6,max=72"`
}
