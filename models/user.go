package models

import (
	"context"
	"errors"
	"html"
	"strings"
	"time"

	"github.com/arkline-sg/backoffice_backend/config"
	"github.com/arkline-sg/backoffice_backend/utils"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email     *string   `gorm:"size:100;unique" json:"email"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	IsActive  *bool     `gorm:"not null" json:"is_active"`
	Role      UserRole  `gorm:"type:enum('A','S');default:S" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username string   `json:"username" binding:"required"`
	Name     string   `json:"name" binding:"required"`
	Email    string   `json:"email"`
	Password string   `json:"password" binding:"required"`
	Role     UserRole `json:"role"`
}

/*
caches:
	User:$username
	Token:$token
*/

func (user User) RemoveInstanceRedis() error {
	return config.RemoveRedisKey("User:" + user.Username)
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	username := html.EscapeString(strings.TrimSpace(input.Username))
	if username == "" {
		return nil, errors.New("username is required")
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := User{
		Username: username,
		Name:     input.Name,
		Password: string(hashed),
		IsActive: utils.NewTrue(),
		Role:     input.Role,
	}
	if input.Email != "" {
		email := strings.TrimSpace(input.Email)
		user.Email = &email
	}
	if user.Role == "" {
		user.Role = UserRoleStaff
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Login verifies credentials, issues a session token and caches it in redis.
func Login(ctx context.Context, username string, password string) (string, *User, error) {
	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).Take(&user).Error; err != nil {
		return "", nil, errors.New("invalid username or password")
	}
	if user.IsActive == nil || !*user.IsActive {
		return "", nil, errors.New("user is inactive")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, errors.New("invalid username or password")
	}

	token := uuid.NewString()
	if err := config.SetRedisValue("Token:"+token, user.Username, 24*time.Hour); err != nil {
		return "", nil, err
	}
	if err := config.SetRedisObject("User:"+user.Username, user, 24*time.Hour); err != nil {
		return "", nil, err
	}
	return token, &user, nil
}

func GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return nil, err
	}
	if exists {
		return &user, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Where("username = ?", username).Take(&user).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &user, nil
}
