package store

import (
	"time"

	"github.com/fioncat/csync/pkg/models"
)

// CreateUserParams carries the fields of a new user. The password is
// already hashed by the caller.
type CreateUserParams struct {
	Name  string
	Hash  string
	Salt  string
	Admin bool
}

// UserPatch describes a partial user update. Empty Hash/Salt leave the
// credential unchanged; a nil Admin leaves the flag unchanged.
type UserPatch struct {
	Name  string
	Hash  string
	Salt  string
	Admin *bool
}

// CreateUser inserts a new user. Returns models.ErrUserExists when the
// name is taken.
func (tx *Tx) CreateUser(params CreateUserParams, now time.Time) (*models.User, error) {
	user := &models.User{
		Name:       params.Name,
		Hash:       params.Hash,
		Salt:       params.Salt,
		Admin:      params.Admin,
		UpdateTime: now.Unix(),
	}
	if err := tx.db.Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, models.ErrUserExists
		}
		return nil, err
	}
	return user, nil
}

// UpdateUser applies a patch and refreshes update_time.
func (tx *Tx) UpdateUser(patch UserPatch, now time.Time) (*models.User, error) {
	var user models.User
	if err := tx.db.Where("name = ?", patch.Name).First(&user).Error; err != nil {
		return nil, convertNotFoundError(err, models.ErrUserNotFound)
	}

	if patch.Hash != "" {
		user.Hash = patch.Hash
		user.Salt = patch.Salt
	}
	if patch.Admin != nil {
		user.Admin = *patch.Admin
	}
	user.UpdateTime = now.Unix()

	if err := tx.db.Save(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser removes a user row. The caller is responsible for deleting
// the user's blobs in the same transaction.
func (tx *Tx) DeleteUser(name string) error {
	result := tx.db.Where("name = ?", name).Delete(&models.User{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// HasUser reports whether a user with the given name exists.
func (tx *Tx) HasUser(name string) (bool, error) {
	var count int64
	err := tx.db.Model(&models.User{}).Where("name = ?", name).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserPassword loads a user's stored credential for verification.
func (tx *Tx) GetUserPassword(name string) (*models.User, error) {
	var user models.User
	if err := tx.db.Where("name = ?", name).First(&user).Error; err != nil {
		return nil, convertNotFoundError(err, models.ErrUserNotFound)
	}
	return &user, nil
}

// CountUsers counts users matching the query, ignoring pagination.
func (tx *Tx) CountUsers(q models.UserQuery) (int64, error) {
	var count int64
	err := applyUserFilter(tx.db.Model(&models.User{}), q).Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetUsers lists users matching the query in database order.
func (tx *Tx) GetUsers(q models.UserQuery) ([]models.User, error) {
	var users []models.User
	db := applyPage(applyUserFilter(tx.db.Model(&models.User{}), q), q.Query)
	if err := db.Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
