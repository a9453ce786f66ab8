package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_IsMatchesKind(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := NewNotFoundError("album 7 not found", cause)

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrAccessDenied))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF), "cause must stay reachable")

	wrapped := fmt.Errorf("while loading: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestAppError_Message(t *testing.T) {
	assert.Equal(t, "bad name", NewInvalidInputError("bad name", nil).Error())
	assert.Equal(t, "NOT_FOUND", (&AppError{Kind: KindNotFound}).Error())
	assert.Contains(t, NewGenericError("write failed", errors.New("disk full")).Error(), "disk full")
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, KindGeneric, KindOf(errors.New("raw driver error")))
	assert.Equal(t, KindDuplicateEntry, KindOf(NewDuplicateEntryError("dup", nil)))
	assert.True(t, IsKind(NewConstraintViolationError("x", nil), KindConstraintViolation))
	assert.False(t, IsKind(nil, KindGeneric))
}

func TestErrorKind_HTTPStatus(t *testing.T) {
	cases := map[ErrorKind]int{
		KindNotFound:            http.StatusNotFound,
		KindAccessDenied:        http.StatusForbidden,
		KindNameAlreadyExists:   http.StatusBadRequest,
		KindDuplicateEntry:      http.StatusBadRequest,
		KindConstraintViolation: http.StatusBadRequest,
		KindInvalidContent:      http.StatusBadRequest,
		KindInvalidInput:        http.StatusBadRequest,
		KindGeneric:             http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, kind.HTTPStatus(), string(kind))
	}
}

func TestSendAppError(t *testing.T) {
	app := fiber.New()
	app.Get("/denied", func(c *fiber.Ctx) error {
		return SendAppError(c, NewAccessDeniedError("playlist belongs to another user", nil))
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return SendAppError(c, errors.New("pq: connection reset"))
	})

	t.Run("classified error exposes message", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/denied", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		var body ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "ACCESS_DENIED", body.Kind)
		assert.Equal(t, "playlist belongs to another user", body.Details)
	})

	t.Run("unclassified error is a server error without details", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

		var body ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "GENERIC_ERROR", body.Kind)
		assert.Empty(t, body.Details)
	})
}

func TestFiberErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: FiberErrorHandler})
	app.Get("/missing", func(c *fiber.Ctx) error {
		return NewNotFoundError("album not found", nil)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/no-such-route", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "framework errors keep their status")

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Empty(t, body.Kind)
}
