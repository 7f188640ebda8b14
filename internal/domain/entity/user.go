package entity

// Roles carried by marketplace accounts.
const (
	RoleUser         = "user"
	RoleShelter      = "shelter"
	RoleProfessional = "professional"
	RoleAdmin        = "admin"
)

// User is the authenticated identity a messaging session acts as.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.ID
}

func (u *User) RoleOrDefault() string {
	if u.Role == "" {
		return RoleUser
	}
	return u.Role
}
