package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	validation := NewValidationError("enter a viewer name")
	notFound := NewNotFoundError("prize")
	auth := NewAuthorizationError("invalid overlay token")
	store := NewStoreError(errors.New("connection reset"), "insert draw event")

	assert.True(t, IsValidation(validation))
	assert.True(t, IsNotFound(notFound))
	assert.True(t, IsAuthorization(auth))
	assert.True(t, IsStore(store))
	assert.False(t, IsValidation(store))

	assert.Equal(t, "prize not found", notFound.Error())
	assert.Contains(t, store.Error(), "connection reset")
	assert.Equal(t, genericFailureMessage, store.UserMessage)
}

func TestKindOf_WrappedAndPlain(t *testing.T) {
	wrapped := fmt.Errorf("submit: %w", NewValidationError("sold out"))
	assert.Equal(t, KindValidation, KindOf(wrapped))
	assert.Equal(t, "sold out", UserMessage(wrapped))

	plain := errors.New("boom")
	assert.Equal(t, KindStore, KindOf(plain))
	assert.Equal(t, genericFailureMessage, UserMessage(plain))
}
