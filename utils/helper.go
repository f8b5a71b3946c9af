package utils

import (
	"context"
	"fmt"
	"reflect"
	"regexp"

	"github.com/arkline-sg/backoffice_backend/config"
	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"
)

var CountryCode = "SG"

func IsValidEmail(email string) bool {
	// Basic email validation regex pattern
	pattern := `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	regex := regexp.MustCompile(pattern)
	return regex.MatchString(email)
}

func ValidatePhoneNumber(phoneNumber, countryCode string) error {
	p, err := libphonenumber.Parse(phoneNumber, countryCode)
	if err != nil {
		return err // Phone number is invalid
	}

	if !libphonenumber.IsValidNumber(p) {
		return fmt.Errorf("phone number is not valid")
	}

	return nil // Phone number is valid for the specified country code
}

func ProcessValidationErrors(err error) map[string]string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"error": err.Error()}
	}

	errorResponse := make(map[string]string)
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

// check if id exists, return ErrorRecordNotFound
func ValidateResourceId[T any](ctx context.Context, id interface{}) error {
	var count int64
	var model T
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}
	return nil
}

func ValidateUnique[T any](ctx context.Context, column string, value interface{}, exceptId interface{}) error {
	var count int64
	var model T
	var err error
	db := config.GetDB()
	if reflect.ValueOf(exceptId).IsZero() {
		err = db.WithContext(ctx).Model(&model).
			Where(column+" = ?", value).
			Count(&count).Error
	} else {
		err = db.WithContext(ctx).Model(&model).
			Where(column+" = ?", value).
			Where("id != ?", exceptId).
			Count(&count).Error
	}
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%s already exists", column)
	}
	return nil
}
