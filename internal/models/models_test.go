package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserIsProvider(t *testing.T) {
	assert.True(t, (&User{Role: "provider"}).IsProvider())
	assert.False(t, (&User{Role: "user"}).IsProvider())
	assert.False(t, (&User{}).IsProvider())
}

func TestCredentialsEmpty(t *testing.T) {
	assert.True(t, Credentials{}.Empty())
	assert.True(t, Credentials{RefreshToken: "rt"}.Empty())
	assert.False(t, Credentials{AccessToken: "at"}.Empty())
}
