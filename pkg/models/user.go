package models

import (
	"fmt"
	"regexp"
)

// AdminUserName is the reserved administrator identity. It never has a
// row in the user table: its password lives in configuration and it may
// only authenticate from the loopback address.
const AdminUserName = "admin"

var userNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// User is an account that can own blobs and authenticate.
//
// Hash is sha256(plaintext password followed by Salt) as lowercase hex.
type User struct {
	Name       string `gorm:"column:name;primaryKey;size:255" json:"name"`
	Hash       string `gorm:"column:hash;size:64;not null" json:"-"`
	Salt       string `gorm:"column:salt;size:64;not null" json:"-"`
	Admin      bool   `gorm:"column:admin;not null" json:"admin"`
	UpdateTime int64  `gorm:"column:update_time;not null" json:"update_time"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "user"
}

// ValidateUserName rejects empty names, names outside [A-Za-z0-9_]+,
// and the reserved admin name.
func ValidateUserName(name string) error {
	if name == "" {
		return fmt.Errorf("user name is required")
	}
	if name == AdminUserName {
		return fmt.Errorf("user name %q is reserved", AdminUserName)
	}
	if !userNamePattern.MatchString(name) {
		return fmt.Errorf("invalid user name %q: only letters, digits and underscore are allowed", name)
	}
	return nil
}
