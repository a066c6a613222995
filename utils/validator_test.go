package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Email string   `validate:"required,mailaddr"`
	To    []string `validate:"required,min=1,dive,mailaddr"`
	Port  int      `validate:"omitempty,min=1,max=65535"`
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(sample{Email: "a@b.com", To: []string{"c@d.org"}}))

	err := ValidateStruct(sample{Email: "nope", To: []string{"c@d.org"}})
	assert.EqualError(t, err, "email must be a valid email")

	err = ValidateStruct(sample{Email: "a@b.com", To: []string{}, Port: 70000})
	assert.EqualError(t, err, "to must be at least 1, port must be at most 65535")

	err = ValidateStruct(sample{})
	assert.EqualError(t, err, "email is required, to is required")
}

