package domain

import "time"

// UserType distinguishes the three account roles.
type UserType string

const (
	UserTypeStudent UserType = "student"
	UserTypeParent  UserType = "parent"
	UserTypeAdmin   UserType = "admin"
)

// IsValid checks that the user type is one of the known roles.
func (u UserType) IsValid() bool {
	switch u {
	case UserTypeStudent, UserTypeParent, UserTypeAdmin:
		return true
	default:
		return false
	}
}

// IsStudent reports whether the account belongs to a student.
func (u UserType) IsStudent() bool { return u == UserTypeStudent }

// IsParent reports whether the account belongs to a parent.
func (u UserType) IsParent() bool { return u == UserTypeParent }

// IsAdmin reports whether the account has admin privileges.
func (u UserType) IsAdmin() bool { return u == UserTypeAdmin }

// ParseUserType maps a raw role string to a UserType. Unknown values fall
// back to the least-privileged role.
func ParseUserType(s string) UserType {
	t := UserType(s)
	if !t.IsValid() {
		return UserTypeStudent
	}
	return t
}

// Profile is the current user's account view.
type Profile struct {
	ID           string    `json:"id"`
	UserType     UserType  `json:"userType"`
	DisplayName  string    `json:"displayName"`
	GradeLevelID string    `json:"gradeLevelId"`
	Coins        int       `json:"coins"`
	Food         int       `json:"food"`
	AvatarPath   string    `json:"avatarPath"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasAvatar reports whether a custom avatar has been uploaded.
func (p Profile) HasAvatar() bool {
	return p.AvatarPath != ""
}

// ChildLink connects a parent account to one of its students.
type ChildLink struct {
	ID           string    `json:"id"`
	ParentID     string    `json:"parentId"`
	StudentID    string    `json:"studentId"`
	DisplayName  string    `json:"displayName"`
	GradeLevelID string    `json:"gradeLevelId"`
	CreatedAt    time.Time `json:"createdAt"`
}
